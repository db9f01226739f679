// Package packet defines the unit of communication exchanged over a bus channel.
package packet

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Action is the application-level kind of a packet. The bus treats it as an
// opaque filter key; the values below are the vocabulary used by the card pages.
type Action string

const (
	Open          Action = "open"
	NeedData      Action = "need data"
	SendNext      Action = "send next"
	OverwriteData Action = "overwrite data"
	Reset         Action = "reset"
	Add           Action = "add"
	TabClosed     Action = "tab closed"
)

// Actions lists the known actions.
var Actions = []Action{Open, NeedData, SendNext, OverwriteData, Reset, Add, TabClosed}

// ParseAction normalizes s into an Action, accepting "need_data" and
// "need-data" spellings for "need data". Unknown actions are returned as is.
func ParseAction(s string) Action {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return Action(s)
}

// Known reports whether a is part of the builtin vocabulary.
func (a Action) Known() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// Packet is one typed message on a channel. SenderID, MessageID, TargetID,
// NeedAck and AcknowledgingPreviousMessage are maintained by the bus.
type Packet struct {
	Action Action      `json:"action,omitempty"`
	Data   interface{} `json:"data,omitempty"`

	SenderID  string `json:"senderId,omitempty"`
	MessageID int    `json:"messageId,omitempty"`
	// TargetID is set on acknowledgment replies to the id of the original sender.
	TargetID string `json:"targetId,omitempty"`
	NeedAck  bool   `json:"needAck,omitempty"`
	// AcknowledgingPreviousMessage marks internal reply packets. They are never
	// delivered to subscribers.
	AcknowledgingPreviousMessage bool `json:"acknowledgingPreviousMessage,omitempty"`
}

// IsAck reports whether p is an acknowledgment reply.
func (p Packet) IsAck() bool {
	return p.AcknowledgingPreviousMessage
}

// Acks reports whether p is the reply to sent: the reply must target the
// sender id of sent and carry the same message id.
func (p Packet) Acks(sent Packet) bool {
	return p.AcknowledgingPreviousMessage &&
		p.TargetID == sent.SenderID &&
		p.MessageID == sent.MessageID
}

func (p Packet) String() string {
	if p.IsAck() {
		return fmt.Sprintf("ack(%s#%d)", p.TargetID, p.MessageID)
	}
	return fmt.Sprintf("%s#%d", p.Action, p.MessageID)
}

// Decode decodes the loosely typed Data payload into v, which must be a
// pointer. Payloads arrive as generic maps, slices and float64 numbers after
// going through a codec, so decoding is weakly typed and honors json tags.
func (p *Packet) Decode(v interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           v,
	})
	if err != nil {
		return fmt.Errorf("packet: %w", err)
	}
	if err := dec.Decode(p.Data); err != nil {
		return fmt.Errorf("packet: mapstructure: %w", err)
	}
	return nil
}
