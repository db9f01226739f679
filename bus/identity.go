package bus

import (
	"math/rand/v2"
	"strconv"
)

// Role qualifies which logical role issued an acknowledgment-seeking send.
type Role int

const (
	Master Role = iota
	Slave
)

func (r Role) String() string {
	if r == Slave {
		return "slave"
	}
	return "master"
}

// Identity is the random id a context picks once at construction.
type Identity struct {
	id string
}

// NewIdentity returns an identity with a fresh random numeric id.
func NewIdentity() Identity {
	return Identity{id: strconv.Itoa(rand.IntN(maxRandID))}
}

// ID returns the bare numeric id.
func (i Identity) ID() string {
	return i.id
}

// Master returns the id used when sending as master.
func (i Identity) Master() string {
	return i.For(Master)
}

// Slave returns the id used when sending as slave and for ack replies.
func (i Identity) Slave() string {
	return i.For(Slave)
}

// For returns the id qualified by role.
func (i Identity) For(r Role) string {
	return r.String() + "-" + i.id
}

const maxRandID = 10000000

func newMessageID() int {
	return rand.IntN(maxRandID)
}
