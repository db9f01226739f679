package relay

import (
	"io"
	"net"
)

// A Listener is similar to a net.Listener but returns relay connections.
type Listener interface {
	// Close closes the listener.
	// Any blocked Accept operations will be unblocked and return errors.
	Close() error

	// Accept waits for and returns the next relay connection.
	Accept() (io.ReadWriteCloser, error)

	// Addr returns the listener's network address.
	Addr() net.Addr
}
