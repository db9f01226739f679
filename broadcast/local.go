package broadcast

import "sync"

// Local is an in-process hub. Every context in the process that shares a
// Local behaves like a tab of the same origin.
type Local struct {
	mu     sync.Mutex
	ports  map[string]map[*localPort]struct{}
	closed bool
}

// NewLocal returns an empty in-process hub.
func NewLocal() *Local {
	return &Local{
		ports: make(map[string]map[*localPort]struct{}),
	}
}

// Open attaches a new port to the named channel.
func (h *Local) Open(name string) (Port, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	p := &localPort{
		hub:   h,
		name:  name,
		inbox: NewQueue[[]byte](),
	}
	if h.ports[name] == nil {
		h.ports[name] = make(map[*localPort]struct{})
	}
	h.ports[name][p] = struct{}{}
	return p, nil
}

// Members returns the number of open ports on the named channel.
func (h *Local) Members(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ports[name])
}

// Close closes every port and refuses new ones.
func (h *Local) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for name, ports := range h.ports {
		for p := range ports {
			p.inbox.Abort(ErrClosed)
		}
		delete(h.ports, name)
	}
	return nil
}

func (h *Local) remove(p *localPort) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	ports, ok := h.ports[p.name]
	if !ok {
		return false
	}
	if _, ok := ports[p]; !ok {
		return false
	}
	delete(ports, p)
	if len(ports) == 0 {
		delete(h.ports, p.name)
	}
	return true
}

type localPort struct {
	hub   *Local
	name  string
	inbox *Queue[[]byte]
}

func (p *localPort) Name() string {
	return p.name
}

func (p *localPort) Post(data []byte) error {
	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()
	ports := p.hub.ports[p.name]
	if _, ok := ports[p]; !ok {
		return ErrClosed
	}
	for peer := range ports {
		if peer == p {
			continue
		}
		// each receiver gets its own copy
		b := make([]byte, len(data))
		copy(b, data)
		peer.inbox.Push(b)
	}
	return nil
}

func (p *localPort) Recv() ([]byte, error) {
	return p.inbox.Pop()
}

func (p *localPort) Close() error {
	p.hub.remove(p)
	p.inbox.Abort(ErrClosed)
	return nil
}
