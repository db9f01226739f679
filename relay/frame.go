package relay

import "fmt"

// FrameType identifies a relay frame.
type FrameType byte

const (
	// FrameJoin attaches a port to a channel. Sent by clients.
	FrameJoin FrameType = iota + 1
	// FrameLeave detaches a port. Sent by clients.
	FrameLeave
	// FramePost carries a message. Clients send it for their own port, the
	// server delivers it addressed to each receiving port.
	FramePost
)

func (t FrameType) String() string {
	switch t {
	case FrameJoin:
		return "join"
	case FrameLeave:
		return "leave"
	case FramePost:
		return "post"
	default:
		return fmt.Sprintf("frame(%d)", byte(t))
	}
}

// Frame is the unit exchanged between relay clients and a relay server.
// Port ids are allocated by each client and only mean something on that
// connection.
type Frame struct {
	_       struct{}  `cbor:",toarray"`
	Type    FrameType `json:"type"`
	Port    uint32    `json:"port"`
	Channel string    `json:"channel,omitempty"`
	Data    []byte    `json:"data,omitempty"`
}

func (f Frame) String() string {
	return fmt.Sprintf("%s[%d %s %dB]", f.Type, f.Port, f.Channel, len(f.Data))
}
