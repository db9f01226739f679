package bus

import (
	"sync"

	"github.com/progrium/tabtalk-go/packet"
)

// observer receives packets from a stream. done is called once when the
// stream finishes, with nil for a clean close.
type observer struct {
	next func(packet.Packet)
	done func(error)
}

// stream is the multicast packet stream of one channel record. Only the
// record's receive goroutine calls emit, so every observer sees packets in
// arrival order.
type stream struct {
	mu        sync.Mutex
	observers []*observer
	finished  bool
	err       error
}

func newStream() *stream {
	return &stream{}
}

// subscribe adds o and returns a func that removes it. Subscribing to a
// finished stream calls o.done right away.
func (s *stream) subscribe(o observer) (cancel func()) {
	s.mu.Lock()
	if s.finished {
		err := s.err
		s.mu.Unlock()
		if o.done != nil {
			o.done(err)
		}
		return func() {}
	}
	obs := &o
	s.observers = append(s.observers, obs)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cur := range s.observers {
			if cur == obs {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *stream) snapshot() []*observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs := make([]*observer, len(s.observers))
	copy(obs, s.observers)
	return obs
}

func (s *stream) emit(p packet.Packet) {
	for _, o := range s.snapshot() {
		if o.next != nil {
			o.next(p)
		}
	}
}

func (s *stream) finish(err error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.err = err
	obs := s.observers
	s.observers = nil
	s.mu.Unlock()

	for _, o := range obs {
		if o.done != nil {
			o.done(err)
		}
	}
}

func (s *stream) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}
