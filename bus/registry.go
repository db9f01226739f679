package bus

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/progrium/tabtalk-go/broadcast"
	"github.com/rs/xid"
)

// activeChannel is the runtime record of one open channel name.
type activeChannel struct {
	name     string
	fullName string
	port     broadcast.Port
	stream   *stream

	// done is closed when the receive goroutine exits
	done chan struct{}

	// guarded by registry.mu
	consumers map[xid.ID]struct{}
}

// registry owns the open channels of one context, keyed by logical name.
type registry struct {
	hub    broadcast.Hub
	prefix string
	log    *slog.Logger
	// start wires a new record to its receive goroutine
	start func(*activeChannel)

	mu       sync.Mutex
	channels map[string]*activeChannel
	closed   bool
}

func newRegistry(hub broadcast.Hub, prefix string, log *slog.Logger, start func(*activeChannel)) *registry {
	return &registry{
		hub:      hub,
		prefix:   prefix,
		log:      log,
		start:    start,
		channels: make(map[string]*activeChannel),
	}
}

func (r *registry) fullName(name string) string {
	return r.prefix + name
}

// open returns the cached record for name or creates one.
func (r *registry) open(name string) (*activeChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openLocked(name)
}

func (r *registry) openLocked(name string) (*activeChannel, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if ch, ok := r.channels[name]; ok {
		return ch, nil
	}
	port, err := r.hub.Open(r.fullName(name))
	if err != nil {
		return nil, fmt.Errorf("bus: open %s: %w", name, err)
	}
	ch := &activeChannel{
		name:      name,
		fullName:  port.Name(),
		port:      port,
		stream:    newStream(),
		done:      make(chan struct{}),
		consumers: make(map[xid.ID]struct{}),
	}
	r.channels[name] = ch
	r.log.Debug("bus: channel opened", "channel", name)
	r.start(ch)
	return ch, nil
}

// acquire opens name and registers consumer id on the record.
func (r *registry) acquire(name string, id xid.ID) (*activeChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, err := r.openLocked(name)
	if err != nil {
		return nil, err
	}
	ch.consumers[id] = struct{}{}
	return ch, nil
}

// release drops consumer id from ch and closes ch once no consumer remains.
// Records already replaced or closed are left alone.
func (r *registry) release(ch *activeChannel, id xid.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(ch.consumers, id)
	if len(ch.consumers) > 0 || r.channels[ch.name] != ch {
		return
	}
	r.removeLocked(ch)
}

// close closes the record for name, if any.
func (r *registry) close(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[name]; ok {
		r.removeLocked(ch)
	}
}

// drop removes ch if it is still the current record for its name. Used when
// the receive side fails.
func (r *registry) drop(ch *activeChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channels[ch.name] == ch {
		r.removeLocked(ch)
		return
	}
	ch.port.Close()
}

// closeAll closes every record and refuses new ones.
func (r *registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, ch := range r.channels {
		r.removeLocked(ch)
	}
}

func (r *registry) removeLocked(ch *activeChannel) {
	delete(r.channels, ch.name)
	if err := ch.port.Close(); err != nil {
		r.log.Warn("bus: closing port", "channel", ch.name, "err", err)
	}
	r.log.Debug("bus: channel closed", "channel", ch.name)
}

func (r *registry) get(name string) (*activeChannel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	return ch, ok
}

func (r *registry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
