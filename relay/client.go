package relay

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/progrium/tabtalk-go/broadcast"
	"github.com/progrium/tabtalk-go/codec"
	"github.com/progrium/tabtalk-go/logging"
)

// Client is a broadcast.Hub backed by one connection to a relay server.
type Client struct {
	rwc io.ReadWriteCloser
	dec codec.Decoder
	log *slog.Logger

	encMu sync.Mutex
	enc   codec.Encoder

	mu      sync.Mutex
	ports   map[uint32]*clientPort
	counter uint32
	closed  bool

	done chan struct{}
	err  error
}

// NewClient returns a client running over rwc. Both ends of a relay
// connection must use the same codec.
func NewClient(rwc io.ReadWriteCloser, c codec.Codec, logger *slog.Logger) *Client {
	if c == nil {
		c = codec.JSONCodec{}
	}
	framer := &codec.FrameCodec{Codec: c}
	client := &Client{
		rwc:   rwc,
		enc:   framer.Encoder(rwc),
		dec:   framer.Decoder(rwc),
		log:   logging.OrDiscard(logger),
		ports: make(map[uint32]*clientPort),
		done:  make(chan struct{}),
	}
	go client.loop()
	return client
}

// Open joins the named channel on the relay.
func (c *Client) Open(name string) (broadcast.Port, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, broadcast.ErrClosed
	}
	c.counter++
	p := &clientPort{
		client: c,
		id:     c.counter,
		name:   name,
		inbox:  broadcast.NewQueue[[]byte](),
	}
	c.ports[p.id] = p
	c.mu.Unlock()

	if err := c.send(Frame{Type: FrameJoin, Port: p.id, Channel: name}); err != nil {
		c.remove(p)
		return nil, err
	}
	return p, nil
}

// Close closes the connection. Every open port then returns
// broadcast.ErrClosed.
func (c *Client) Close() error {
	err := c.rwc.Close()
	<-c.done
	return err
}

// Wait blocks until the connection has shut down and returns the error
// that caused it.
func (c *Client) Wait() error {
	<-c.done
	return c.err
}

func (c *Client) send(f Frame) error {
	c.encMu.Lock()
	defer c.encMu.Unlock()
	if err := c.enc.Encode(f); err != nil {
		return fmt.Errorf("relay: %s: %w", f.Type, err)
	}
	return nil
}

func (c *Client) remove(p *clientPort) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ports[p.id]; !ok {
		return false
	}
	delete(c.ports, p.id)
	return true
}

// loop routes inbound frames until the connection fails.
func (c *Client) loop() {
	var err error
	for err == nil {
		err = c.onePacket()
	}
	c.log.Debug("relay: client loop done", "err", err)

	c.mu.Lock()
	c.closed = true
	for id, p := range c.ports {
		p.inbox.Abort(broadcast.ErrClosed)
		delete(c.ports, id)
	}
	c.mu.Unlock()

	c.rwc.Close()
	c.err = err
	close(c.done)
}

// onePacket reads and routes one frame.
func (c *Client) onePacket() error {
	var f Frame
	if err := c.dec.Decode(&f); err != nil {
		return err
	}
	if f.Type != FramePost {
		c.log.Warn("relay: unexpected frame", "frame", f.String())
		return nil
	}
	c.mu.Lock()
	p, ok := c.ports[f.Port]
	c.mu.Unlock()
	if !ok {
		// posts may still arrive for a port that just left
		return nil
	}
	p.inbox.Push(f.Data)
	return nil
}

type clientPort struct {
	client *Client
	id     uint32
	name   string
	inbox  *broadcast.Queue[[]byte]
	once   sync.Once
}

func (p *clientPort) Name() string {
	return p.name
}

func (p *clientPort) Post(data []byte) error {
	p.client.mu.Lock()
	_, ok := p.client.ports[p.id]
	p.client.mu.Unlock()
	if !ok {
		return broadcast.ErrClosed
	}
	return p.client.send(Frame{Type: FramePost, Port: p.id, Data: data})
}

func (p *clientPort) Recv() ([]byte, error) {
	return p.inbox.Pop()
}

func (p *clientPort) Close() error {
	var err error
	p.once.Do(func() {
		p.inbox.Abort(broadcast.ErrClosed)
		if p.client.remove(p) {
			err = p.client.send(Frame{Type: FrameLeave, Port: p.id})
		}
	})
	return err
}
