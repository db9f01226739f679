package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/progrium/tabtalk-go/broadcast"
	"github.com/progrium/tabtalk-go/codec"
	"github.com/progrium/tabtalk-go/logging"
	"github.com/progrium/tabtalk-go/packet"
	"github.com/rs/xid"
)

const (
	// DefaultPrefix keeps bus channels apart from other traffic on the hub.
	DefaultPrefix = "BHSC-"

	DefaultAckWait      = 500 * time.Millisecond
	DefaultAckWaitExtra = 2 * time.Second
	// DefaultFrameDelay is one frame at 60Hz.
	DefaultFrameDelay = 16 * time.Millisecond
)

var (
	// ErrClosed is returned after Bus.Close.
	ErrClosed = errors.New("bus: closed")

	// ErrMalformed ends a subscription whose channel received a message that
	// could not be decoded as a packet.
	ErrMalformed = errors.New("bus: malformed message")
)

// Options configure a Bus. Only Hub is required; zero values take defaults.
type Options struct {
	Hub   broadcast.Hub
	Codec codec.Codec

	Prefix       string
	AckWait      time.Duration
	AckWaitExtra time.Duration
	FrameDelay   time.Duration

	Visibility Visibility
	Logger     *slog.Logger
}

// Bus is one execution context attached to a hub.
type Bus struct {
	id           Identity
	codec        codec.Codec
	visibility   Visibility
	ackWait      time.Duration
	ackWaitExtra time.Duration
	frameDelay   time.Duration
	log          *slog.Logger

	reg    *registry
	closed atomic.Bool
}

// New returns a Bus with a fresh identity.
func New(opts Options) (*Bus, error) {
	if opts.Hub == nil {
		return nil, errors.New("bus: no hub")
	}
	b := &Bus{
		id:           NewIdentity(),
		codec:        opts.Codec,
		visibility:   opts.Visibility,
		ackWait:      opts.AckWait,
		ackWaitExtra: opts.AckWaitExtra,
		frameDelay:   opts.FrameDelay,
		log:          logging.OrDiscard(opts.Logger),
	}
	if b.codec == nil {
		b.codec = codec.JSONCodec{}
	}
	if b.visibility == nil {
		b.visibility = AlwaysVisible
	}
	if b.ackWait <= 0 {
		b.ackWait = DefaultAckWait
	}
	if b.ackWaitExtra <= 0 {
		b.ackWaitExtra = DefaultAckWaitExtra
	}
	if b.frameDelay <= 0 {
		b.frameDelay = DefaultFrameDelay
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	b.log = b.log.With("tab", b.id.ID())
	b.reg = newRegistry(opts.Hub, prefix, b.log, func(ch *activeChannel) {
		go b.receive(ch)
	})
	return b, nil
}

// Identity returns the context identity.
func (b *Bus) Identity() Identity {
	return b.id
}

// Channels returns the names of the currently open channels.
func (b *Bus) Channels() []string {
	return b.reg.names()
}

// GetChannelMessages subscribes to the named channel, opening it if needed.
// Acknowledgment replies are never delivered. With an action, only packets
// of that action are delivered; passing more than one action is an error.
func (b *Bus) GetChannelMessages(name string, action ...packet.Action) (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	var filter packet.Action
	if len(action) > 1 {
		return nil, fmt.Errorf("bus: %s: at most one action filter, got %d", name, len(action))
	}
	if len(action) > 0 {
		filter = action[0]
	}
	id := xid.New()
	ch, err := b.reg.acquire(name, id)
	if err != nil {
		return nil, err
	}
	return newSubscription(b, ch, id, filter), nil
}

// SendMessage posts p on the named channel without asking for an
// acknowledgment. A nil error says nothing about delivery.
func (b *Bus) SendMessage(name string, p packet.Packet) error {
	ch, err := b.reg.open(name)
	if err != nil {
		return err
	}
	return b.sendMessage(ch, p, true)
}

// sendMessage is the non-acknowledging send path. Ack replies keep their
// original message id by passing assignNewID false.
func (b *Bus) sendMessage(ch *activeChannel, p packet.Packet, assignNewID bool) error {
	p.NeedAck = false
	if assignNewID {
		p.MessageID = newMessageID()
	}
	return b.transmit(ch, p)
}

func (b *Bus) transmit(ch *activeChannel, p packet.Packet) error {
	data, err := codec.Marshal(b.codec, p)
	if err != nil {
		return fmt.Errorf("bus: encode %s: %w", ch.name, err)
	}
	if err := ch.port.Post(data); err != nil {
		return fmt.Errorf("bus: post %s: %w", ch.name, err)
	}
	return nil
}

// CloseChannel closes the named channel regardless of its consumers, whose
// subscriptions end with a nil error.
func (b *Bus) CloseChannel(name string) {
	b.reg.close(name)
}

// Close closes every channel. Open subscriptions end with a nil error.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.reg.closeAll()
	return nil
}
