package bus

import (
	"errors"
	"sync"

	"github.com/progrium/tabtalk-go/broadcast"
	"github.com/progrium/tabtalk-go/packet"
	"github.com/rs/xid"
)

var errStreamDone = errors.New("bus: stream done")

// Subscription is one consumer's view of a channel. Packets are delivered
// in arrival order on Packets, which is closed when the subscription ends.
type Subscription struct {
	id     xid.ID
	bus    *Bus
	ch     *activeChannel
	action packet.Action

	queue *broadcast.Queue[packet.Packet]
	out   chan packet.Packet
	quit  chan struct{}
	stop  func()
	once  sync.Once

	mu  sync.Mutex
	err error
}

func newSubscription(b *Bus, ch *activeChannel, id xid.ID, action packet.Action) *Subscription {
	s := &Subscription{
		id:     id,
		bus:    b,
		ch:     ch,
		action: action,
		queue:  broadcast.NewQueue[packet.Packet](),
		out:    make(chan packet.Packet),
		quit:   make(chan struct{}),
	}
	s.stop = ch.stream.subscribe(observer{
		next: s.next,
		done: s.done,
	})
	go s.pump()
	return s
}

func (s *Subscription) next(p packet.Packet) {
	if p.IsAck() {
		return
	}
	if s.action != "" && p.Action != s.action {
		return
	}
	s.queue.Push(p)
}

func (s *Subscription) done(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.queue.Close(errStreamDone)
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		p, err := s.queue.Pop()
		if err != nil {
			return
		}
		select {
		case s.out <- p:
		case <-s.quit:
			return
		}
	}
}

// Channel returns the logical channel name.
func (s *Subscription) Channel() string {
	return s.ch.name
}

// Packets returns the packet stream. It is closed after Close, after Bus.Close,
// or when the channel fails.
func (s *Subscription) Packets() <-chan packet.Packet {
	return s.out
}

// Err returns why the stream ended: nil for a normal close, or an error
// such as ErrMalformed when the channel failed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription and closes the channel if no other consumer in
// this context still uses it. In-flight acknowledgment waits on the channel
// are not affected.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.stop()
		close(s.quit)
		s.queue.Abort(errStreamDone)
		s.bus.reg.release(s.ch, s.id)
	})
	return nil
}
