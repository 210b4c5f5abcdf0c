package channel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/brisca-live/social-client/internal/wire"
)

var ErrNotConnected = errors.New("channel not connected")

type Options struct {
	URL   string
	Token string // bearer session token attached on dial

	Logger *zap.Logger

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	BackoffMin   time.Duration
	BackoffMax   time.Duration
}

func (o *Options) fill() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Second
	}
}

// Socket is the websocket implementation of Channel. It owns reconnection:
// on a read failure it emits Disconnected, redials with exponential backoff,
// and emits Reconnected once the transport is back.
type Socket struct {
	opts   Options
	log    *zap.Logger
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects and starts the read loop. The initial dial is synchronous so
// callers know the session token was accepted before wiring anything else.
func Dial(parent context.Context, opts Options) (*Socket, error) {
	opts.fill()
	ctx, cancel := context.WithCancel(parent)

	s := &Socket{
		opts:   opts,
		log:    opts.Logger,
		events: make(chan Event, 64),
		ctx:    ctx,
		cancel: cancel,
	}

	conn, err := s.dialOnce()
	if err != nil {
		cancel()
		return nil, err
	}
	s.conn = conn

	go s.readLoop()
	return s, nil
}

func (s *Socket) dialOnce() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.DialTimeout)
	defer cancel()

	header := http.Header{}
	if s.opts.Token != "" {
		header.Set("Authorization", "Bearer "+s.opts.Token)
	}
	conn, _, err := websocket.Dial(ctx, s.opts.URL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	return conn, err
}

func (s *Socket) Events() <-chan Event { return s.events }

// Send marshals and writes one outbound frame. Fire-and-forget: a nil error
// means the frame was handed to the transport, not that the server acted.
func (s *Socket) Send(f wire.Outbound) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	payload, err := wire.Marshal(f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (s *Socket) Close() error {
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

func (s *Socket) readLoop() {
	defer close(s.events)

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}

			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			s.emit(Disconnected{Err: err})

			if !s.redial() {
				return
			}
			s.emit(Reconnected{})
			continue
		}

		frame, err := wire.Decode(data)
		if err != nil {
			// Never partially apply: unknown or malformed frames are dropped.
			s.log.Warn("dropping inbound frame", zap.Error(err))
			continue
		}
		s.emit(FrameEvent{Frame: frame})
	}
}

// redial blocks until the transport is back or the socket is closed.
func (s *Socket) redial() bool {
	backoff := s.opts.BackoffMin
	for {
		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, err := s.dialOnce()
		if err == nil {
			s.mu.Lock()
			s.conn = conn
			s.mu.Unlock()
			return true
		}
		s.log.Warn("redial failed", zap.Error(err), zap.Duration("backoff", backoff))

		backoff *= 2
		if backoff > s.opts.BackoffMax {
			backoff = s.opts.BackoffMax
		}
	}
}

func (s *Socket) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
