package bus

import (
	"errors"
	"fmt"

	"github.com/progrium/tabtalk-go/broadcast"
	"github.com/progrium/tabtalk-go/codec"
	"github.com/progrium/tabtalk-go/packet"
)

// receive is the receive goroutine of a channel record. It runs until the
// port is closed or fails, and is the only goroutine emitting on ch.stream.
func (b *Bus) receive(ch *activeChannel) {
	defer close(ch.done)
	var err error
	for err == nil {
		err = b.onePacket(ch)
	}
	if errors.Is(err, broadcast.ErrClosed) {
		ch.stream.finish(nil)
		return
	}
	// any other failure ends this record only; no reopen
	b.reg.drop(ch)
	ch.stream.finish(err)
}

// onePacket reads, filters and dispatches one inbound message.
func (b *Bus) onePacket(ch *activeChannel) error {
	data, err := ch.port.Recv()
	if err != nil {
		if !errors.Is(err, broadcast.ErrClosed) {
			b.log.Error("bus: receive failed", "channel", ch.name, "err", err)
			return fmt.Errorf("bus: receive %s: %w", ch.name, err)
		}
		return err
	}

	var p packet.Packet
	if err := codec.Unmarshal(b.codec, data, &p); err != nil {
		b.log.Warn("bus: malformed message", "channel", ch.name, "err", err)
		return fmt.Errorf("%w on %s: %w", ErrMalformed, ch.name, err)
	}

	if !b.visibility.Visible() {
		// dropped for good, and never acknowledged
		b.log.Debug("bus: dropped while hidden", "channel", ch.name, "packet", p.String())
		return nil
	}

	if p.NeedAck && !p.AcknowledgingPreviousMessage {
		b.respondAck(ch, p)
	}
	ch.stream.emit(p)
	return nil
}

// respondAck replies to an acknowledgment-seeking packet on the same channel.
func (b *Bus) respondAck(ch *activeChannel, received packet.Packet) {
	reply := received
	reply.AcknowledgingPreviousMessage = true
	reply.TargetID = received.SenderID
	reply.SenderID = b.id.Slave()
	if err := b.sendMessage(ch, reply, false); err != nil {
		b.log.Error("bus: sending ack", "channel", ch.name, "err", err)
		return
	}
	b.log.Debug("bus: ack sent", "channel", ch.name, "target", reply.TargetID, "message", reply.MessageID)
}
