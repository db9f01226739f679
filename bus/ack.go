package bus

import (
	"context"
	"sync"
	"time"

	"github.com/progrium/tabtalk-go/packet"
	"github.com/progrium/tabtalk-go/race"
)

// AckOptions tune SendMessageWithAck. The zero value sends as master with
// the normal wait time.
type AckOptions struct {
	Role Role
	// ExtraWait waits AckWaitExtra instead of AckWait, for sends made while
	// peers may still be starting up.
	ExtraWait bool
}

// SendMessageWithAck posts p on the named channel and reports whether a
// peer acknowledged it before the wait time ran out. No peer, a hidden peer,
// a cancelled ctx, or a local failure all result in false.
//
// The post is deferred by one frame so subscribers in this process have
// time to attach.
func (b *Bus) SendMessageWithAck(ctx context.Context, name string, p packet.Packet, opts AckOptions) bool {
	if ctx.Err() != nil {
		return false
	}
	ch, err := b.reg.open(name)
	if err != nil {
		b.log.Error("bus: ack send", "channel", name, "err", err)
		return false
	}

	sent := p
	sent.NeedAck = true
	sent.SenderID = b.id.For(opts.Role)
	sent.MessageID = newMessageID()

	acked := make(chan bool, 1)
	watch := observer{
		next: func(in packet.Packet) {
			if !in.Acks(sent) {
				return
			}
			select {
			case acked <- true:
			default:
			}
		},
	}

	var (
		mu       sync.Mutex
		resolved bool
		stops    = []func(){ch.stream.subscribe(watch)}
	)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		resolved = true
		for _, stop := range stops {
			stop()
		}
	}()

	// the channel is resolved again at post time: the record may have been
	// closed and replaced during the frame delay
	timer := time.AfterFunc(b.frameDelay, func() {
		mu.Lock()
		defer mu.Unlock()
		if resolved {
			return
		}
		cur, err := b.reg.open(name)
		if err != nil {
			b.log.Error("bus: ack send", "channel", name, "err", err)
			return
		}
		if cur != ch {
			stops = append(stops, cur.stream.subscribe(watch))
		}
		if err := b.transmit(cur, sent); err != nil {
			b.log.Error("bus: ack send", "channel", name, "err", err)
		}
	})
	defer timer.Stop()

	wait := b.ackWait
	if opts.ExtraWait {
		wait = b.ackWaitExtra
	}
	ok, err := race.First(ctx, race.Recv[bool](acked), race.After(wait, false))
	if err != nil {
		ok = false
	}
	b.log.Debug("bus: ack resolved", "channel", name, "sender", sent.SenderID, "message", sent.MessageID, "acked", ok)
	return ok
}
