package relay

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/progrium/tabtalk-go/broadcast"
	"github.com/progrium/tabtalk-go/codec"
	"github.com/progrium/tabtalk-go/logging"
)

// Server fans posts out between the ports its connections have joined.
// The zero value uses JSON and discards logs.
type Server struct {
	Codec  codec.Codec
	Logger *slog.Logger

	mu       sync.Mutex
	channels map[string]map[member]struct{}
}

type member struct {
	c    *conn
	port uint32
}

type conn struct {
	id  uuid.UUID
	rwc io.ReadWriteCloser
	out *broadcast.Queue[Frame]

	// port id to channel, guarded by Server.mu
	ports map[uint32]string
}

// Serve accepts connections until the listener is closed, serving each in
// its own goroutine.
func (s *Server) Serve(l Listener) error {
	for {
		rwc, err := l.Accept()
		if err != nil {
			return err
		}
		go s.ServeConn(rwc)
	}
}

// ServeConn serves one client connection until it fails or is closed.
// A connection closed by the client returns nil.
func (s *Server) ServeConn(rwc io.ReadWriteCloser) error {
	log := logging.OrDiscard(s.Logger)
	framer := &codec.FrameCodec{Codec: s.codec()}
	c := &conn{
		id:    uuid.New(),
		rwc:   rwc,
		out:   broadcast.NewQueue[Frame](),
		ports: make(map[uint32]string),
	}
	log = log.With("conn", c.id.String())
	log.Info("relay: connected")

	go s.writeLoop(c, framer.Encoder(rwc), log)

	dec := framer.Decoder(rwc)
	var err error
	for err == nil {
		err = s.onePacket(c, dec, log)
	}

	s.disconnect(c)
	c.out.Abort(io.EOF)
	rwc.Close()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		log.Info("relay: disconnected")
		return nil
	}
	log.Warn("relay: connection failed", "err", err)
	return err
}

func (s *Server) codec() codec.Codec {
	if s.Codec == nil {
		return codec.JSONCodec{}
	}
	return s.Codec
}

// onePacket reads and handles one frame.
func (s *Server) onePacket(c *conn, dec codec.Decoder, log *slog.Logger) error {
	var f Frame
	if err := dec.Decode(&f); err != nil {
		return err
	}
	switch f.Type {
	case FrameJoin:
		s.join(c, f.Port, f.Channel)
		log.Debug("relay: join", "port", f.Port, "channel", f.Channel)
	case FrameLeave:
		s.leave(c, f.Port)
		log.Debug("relay: leave", "port", f.Port)
	case FramePost:
		s.post(c, f.Port, f.Data)
	default:
		log.Warn("relay: unexpected frame", "frame", f.String())
	}
	return nil
}

func (s *Server) writeLoop(c *conn, enc codec.Encoder, log *slog.Logger) {
	for {
		f, err := c.out.Pop()
		if err != nil {
			return
		}
		if err := enc.Encode(f); err != nil {
			log.Debug("relay: write failed", "err", err)
			c.rwc.Close()
			return
		}
	}
}

func (s *Server) join(c *conn, port uint32, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channels == nil {
		s.channels = make(map[string]map[member]struct{})
	}
	if prev, ok := c.ports[port]; ok {
		s.removeLocked(member{c, port}, prev)
	}
	c.ports[port] = channel
	if s.channels[channel] == nil {
		s.channels[channel] = make(map[member]struct{})
	}
	s.channels[channel][member{c, port}] = struct{}{}
}

func (s *Server) leave(c *conn, port uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel, ok := c.ports[port]; ok {
		s.removeLocked(member{c, port}, channel)
	}
}

func (s *Server) disconnect(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for port, channel := range c.ports {
		s.removeLocked(member{c, port}, channel)
	}
}

func (s *Server) removeLocked(m member, channel string) {
	delete(m.c.ports, m.port)
	members := s.channels[channel]
	delete(members, m)
	if len(members) == 0 {
		delete(s.channels, channel)
	}
}

// post queues data for every other member of the sending port's channel.
func (s *Server) post(c *conn, port uint32, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	channel, ok := c.ports[port]
	if !ok {
		return
	}
	from := member{c, port}
	for m := range s.channels[channel] {
		if m == from {
			continue
		}
		m.c.out.Push(Frame{
			Type:    FramePost,
			Port:    m.port,
			Channel: channel,
			Data:    data,
		})
	}
}

// Channels returns the joined channel names with their member counts.
func (s *Server) Channels() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(s.channels))
	for name, members := range s.channels {
		counts[name] = len(members)
	}
	return counts
}

// ChannelNames returns the joined channel names in order.
func (s *Server) ChannelNames() []string {
	counts := s.Channels()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
