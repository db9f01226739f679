package relay

import (
	"io"
	"net"
	"sync"
)

// NetListener wraps a net.Listener to return relay connections.
type NetListener struct {
	net.Listener
	accepted chan io.ReadWriteCloser
	closed   chan struct{}
	once     sync.Once
	errs     chan error
}

// Accept waits for and returns the next connection to the listener.
func (l *NetListener) Accept() (io.ReadWriteCloser, error) {
	select {
	case <-l.closed:
		return nil, io.EOF
	case err := <-l.errs:
		return nil, err
	case conn := <-l.accepted:
		return conn, nil
	}
}

// Close closes the listener.
// Any blocked Accept operations will be unblocked and return errors.
func (l *NetListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return l.Listener.Close()
}

func listenNet(proto, addr string) (*NetListener, error) {
	l, err := net.Listen(proto, addr)
	if err != nil {
		return nil, err
	}
	nl := &NetListener{
		Listener: l,
		errs:     make(chan error, 1),
		accepted: make(chan io.ReadWriteCloser),
		closed:   make(chan struct{}),
	}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				nl.errs <- err
				return
			}
			select {
			case nl.accepted <- conn:
			case <-nl.closed:
				// nobody will accept it anymore
				conn.Close()
				return
			}
		}
	}()
	return nl, nil
}

// ListenTCP creates a TCP listener at the given address.
func ListenTCP(addr string) (*NetListener, error) {
	return listenNet("tcp", addr)
}

// ListenUnix creates a Unix domain socket listener at the given path.
func ListenUnix(path string) (*NetListener, error) {
	return listenNet("unix", path)
}
