// Package bus is a cross-context message bus layered on a fire-and-forget
// broadcast hub.
//
// Every Bus is one execution context (a "tab"). Contexts that share a hub can
// publish and subscribe to typed packets on named channels, and a sender can
// ask for proof that some peer received a specific packet within a bounded
// time. The three entry points are SendMessage, SendMessageWithAck and
// GetChannelMessages.
//
// A context only receives while it is visible. Packets that arrive while
// hidden are dropped for good, and no acknowledgment is sent for them, so a
// hidden peer is indistinguishable from an absent one.
package bus
