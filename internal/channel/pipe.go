package channel

import (
	"sync"

	"github.com/brisca-live/social-client/internal/wire"
)

// Pipe is an in-memory Channel. Tests use it to script inbound frames and
// inspect what the engine sent without a real transport.
type Pipe struct {
	events chan Event

	mu      sync.Mutex
	sent    []wire.Outbound
	offline bool
	closed  bool
}

func NewPipe() *Pipe {
	return &Pipe{events: make(chan Event, 64)}
}

func (p *Pipe) Events() <-chan Event { return p.events }

func (p *Pipe) Send(f wire.Outbound) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offline {
		return ErrNotConnected
	}
	p.sent = append(p.sent, f)
	return nil
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	return nil
}

// Deliver injects one inbound frame.
func (p *Pipe) Deliver(f wire.Frame) {
	p.events <- FrameEvent{Frame: f}
}

// Drop simulates the transport failing; Restore simulates it coming back.
func (p *Pipe) Drop() {
	p.mu.Lock()
	p.offline = true
	p.mu.Unlock()
	p.events <- Disconnected{Err: ErrNotConnected}
}

func (p *Pipe) Restore() {
	p.mu.Lock()
	p.offline = false
	p.mu.Unlock()
	p.events <- Reconnected{}
}

// Sent returns a copy of everything sent so far.
func (p *Pipe) Sent() []wire.Outbound {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]wire.Outbound, len(p.sent))
	copy(out, p.sent)
	return out
}

// SentOfKind filters Sent by frame kind.
func (p *Pipe) SentOfKind(k wire.Kind) []wire.Outbound {
	var out []wire.Outbound
	for _, f := range p.Sent() {
		if f.Kind() == k {
			out = append(out, f)
		}
	}
	return out
}
