// Package broadcast provides the raw broadcast primitive the bus is built on:
// named, fire-and-forget channels shared by every context attached to a hub.
//
// A message posted on a port reaches every other open port with the same name
// on the hub, but never the posting port itself. There is no acknowledgment,
// ordering across names, or persistence.
package broadcast

import "errors"

// ErrClosed is returned by Recv and Post once a port or its hub is closed.
var ErrClosed = errors.New("broadcast: port closed")

// Port is one handle on a named broadcast channel.
type Port interface {
	// Name returns the hub-level channel name.
	Name() string

	// Post sends data to every other open port with the same name.
	// It does not block on slow receivers.
	Post(data []byte) error

	// Recv blocks until the next message arrives. It returns ErrClosed
	// after the port or its hub has been closed.
	Recv() ([]byte, error)

	// Close releases the port. Pending messages are discarded.
	Close() error
}

// Hub opens ports on named channels.
type Hub interface {
	Open(name string) (Port, error)
}
