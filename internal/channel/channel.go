// Package channel abstracts the persistent bidirectional connection the
// sync engine speaks over. Outbound frames are fire-and-forget; inbound
// frames and connection transitions arrive as events on a single channel.
package channel

import "github.com/brisca-live/social-client/internal/wire"

// Event is the union of things a Channel can report.
type Event interface{ isChannelEvent() }

// FrameEvent delivers one decoded inbound frame.
type FrameEvent struct {
	Frame wire.Frame
}

// Disconnected reports that the transport dropped. The Channel keeps trying
// to reestablish on its own; intents should be disabled until Reconnected.
type Disconnected struct {
	Err error
}

// Reconnected reports that the transport came back. Whoever is listening is
// expected to resynchronize all snapshot state.
type Reconnected struct{}

func (FrameEvent) isChannelEvent()   {}
func (Disconnected) isChannelEvent() {}
func (Reconnected) isChannelEvent()  {}

// Channel is the engine-facing contract. Exactly one consumer drains
// Events; Send may be called from a single goroutine at a time.
type Channel interface {
	Send(f wire.Outbound) error
	Events() <-chan Event
	Close() error
}
