// Package engine is the sync engine: the only component that talks to the
// channel. It owns the single subscription to each inbound frame kind,
// translates view intents into outbound frames, resynchronizes snapshot
// state after reconnects, and correlates request/response pairs for
// operations that need a confirmation.
//
// Everything runs on one goroutine, the engine loop. Views post intents
// into the inbox and read store projections through reply closures, so
// stores never need locking.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/brisca-live/social-client/internal/channel"
	"github.com/brisca-live/social-client/internal/conversation"
	"github.com/brisca-live/social-client/internal/notify"
	"github.com/brisca-live/social-client/internal/presence"
	"github.com/brisca-live/social-client/internal/relationship"
	"github.com/brisca-live/social-client/internal/wire"
)

var ErrTimeout = errors.New("confirmation timed out")
var ErrInFlight = errors.New("operation already in flight")
var ErrRejected = errors.New("rejected by server")
var ErrOffline = errors.New("channel offline")
var ErrClosed = errors.New("engine closed")

// Topic names one slice of store state a view can watch.
type Topic string

const (
	TopicFriends       Topic = "friends"
	TopicRequests      Topic = "requests"
	TopicConversations Topic = "conversations"
	TopicPresence      Topic = "presence"
	TopicUnread        Topic = "unread"
	TopicConnection    Topic = "connection"
)

type Options struct {
	// EchoTimeout bounds how long an optimistic send waits for its
	// direct_message_sent echo before it is marked failed.
	EchoTimeout time.Duration
	// CorrelationTimeout bounds profile round-trips and action guards.
	CorrelationTimeout time.Duration
	// PageSize is the history page requested on first thread open.
	PageSize int
}

func (o *Options) fill() {
	if o.EchoTimeout <= 0 {
		o.EchoTimeout = 5 * time.Second
	}
	if o.CorrelationTimeout <= 0 {
		o.CorrelationTimeout = 5 * time.Second
	}
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
}

type ProfileResult struct {
	Profile wire.Profile
	Err     error
}

// pending is a one-shot correlation handler, torn down on firing or on its
// timeout, whichever comes first.
type pending struct {
	token   string
	timer   *time.Timer
	resolve func(f wire.Frame, err error)
}

type subscriber struct {
	topic Topic
	ch    chan Topic
}

type Engine struct {
	inbox chan msg
	ch    channel.Channel
	log   *zap.Logger
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc

	presence *presence.Registry
	rels     *relationship.Store
	convs    *conversation.Store
	agg      *notify.Aggregator

	online       bool
	inflight     map[string]struct{}
	guardTimers  map[string]*time.Timer
	echoTimers   map[string]*time.Timer
	correlations map[wire.Kind]*pending
	profiles     map[string]wire.Profile

	subs    map[int]subscriber
	nextSub int

	newToken func() string
}

// New builds the engine for one session and starts its loop. The initial
// snapshot sync is issued immediately.
func New(parent context.Context, ch channel.Channel, self string, log *zap.Logger, opts Options) *Engine {
	opts.fill()
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	rels := relationship.NewStore(self)
	convs := conversation.NewStore(self)

	e := &Engine{
		inbox:        make(chan msg, 64),
		ch:           ch,
		log:          log,
		opts:         opts,
		ctx:          ctx,
		cancel:       cancel,
		presence:     presence.NewRegistry(),
		rels:         rels,
		convs:        convs,
		agg:          notify.NewAggregator(convs, rels),
		online:       true,
		inflight:     make(map[string]struct{}),
		guardTimers:  make(map[string]*time.Timer),
		echoTimers:   make(map[string]*time.Timer),
		correlations: make(map[wire.Kind]*pending),
		profiles:     make(map[string]wire.Profile),
		subs:         make(map[int]subscriber),
		newToken:     randomToken,
	}
	go e.loop()
	e.post(refreshMsg{})
	return e
}

func (e *Engine) Self() string { return e.rels.Self() }

func (e *Engine) Close() error {
	e.post(shutdownMsg{})
	e.cancel()
	return nil
}

func (e *Engine) post(m msg) {
	select {
	case e.inbox <- m:
	case <-e.ctx.Done():
	}
}

func (e *Engine) loop() {
	for {
		select {
		case <-e.ctx.Done():
			e.shutdown()
			return

		case m := <-e.inbox:
			if _, ok := m.(shutdownMsg); ok {
				e.shutdown()
				return
			}
			e.handleMsg(m)

		case ev, ok := <-e.ch.Events():
			if !ok {
				e.shutdown()
				return
			}
			switch ev := ev.(type) {
			case channel.FrameEvent:
				e.handleFrame(ev.Frame)
			case channel.Disconnected:
				e.online = false
				// outstanding requests died with the connection; lift
				// their guards so the post-reconnect resync goes out
				for key := range e.inflight {
					e.clearGuard(key)
				}
				e.log.Warn("channel disconnected", zap.Error(ev.Err))
				e.notify(TopicConnection)
			case channel.Reconnected:
				e.online = true
				e.log.Info("channel reconnected, resyncing")
				e.resync()
				e.notify(TopicConnection)
			}
		}
	}
}

func (e *Engine) shutdown() {
	for _, p := range e.correlations {
		p.timer.Stop()
		p.resolve(nil, ErrClosed)
	}
	clear(e.correlations)
	for _, t := range e.echoTimers {
		t.Stop()
	}
	clear(e.echoTimers)
	for _, t := range e.guardTimers {
		t.Stop()
	}
	clear(e.guardTimers)
	for id, sub := range e.subs {
		close(sub.ch)
		delete(e.subs, id)
	}
	e.cancel()
}

func (e *Engine) send(f wire.Outbound) bool {
	if !e.online {
		return false
	}
	if err := e.ch.Send(f); err != nil {
		e.log.Warn("send failed", zap.String("frame", string(f.Kind())), zap.Error(err))
		return false
	}
	return true
}

func guardKey(kind wire.Kind, target string) string {
	if target == "" {
		return string(kind)
	}
	return string(kind) + ":" + target
}

// guard marks one intent in flight. Returns false when an identical intent
// is already outstanding; the duplicate is suppressed client-side instead
// of leaning on server idempotence.
func (e *Engine) guard(key string) bool {
	if _, busy := e.inflight[key]; busy {
		return false
	}
	e.inflight[key] = struct{}{}
	e.guardTimers[key] = time.AfterFunc(e.opts.CorrelationTimeout, func() {
		e.post(guardExpiredMsg{key: key})
	})
	return true
}

func (e *Engine) clearGuard(key string) {
	delete(e.inflight, key)
	if t, ok := e.guardTimers[key]; ok {
		t.Stop()
		delete(e.guardTimers, key)
	}
}

func (e *Engine) afterEcho(token string) *time.Timer {
	return time.AfterFunc(e.opts.EchoTimeout, func() {
		e.post(echoTimeoutMsg{token: token})
	})
}

// fetchSnapshot sends one list request, coalescing with any identical
// request already in flight.
func (e *Engine) fetchSnapshot(f wire.Outbound, target string) {
	key := guardKey(f.Kind(), target)
	if !e.guard(key) {
		return
	}
	if !e.send(f) {
		e.clearGuard(key)
	}
}

// resync re-issues the full snapshot set. The in-flight guard keeps this to
// exactly one round per reconnect no matter how many views are mounted.
func (e *Engine) resync() {
	e.fetchSnapshot(wire.GetFriendsList{}, "")
	e.fetchSnapshot(wire.GetFriendRequests{}, "")
	e.fetchSnapshot(wire.GetSentFriendRequests{}, "")
	e.fetchSnapshot(wire.GetConversations{}, "")
	e.fetchSnapshot(wire.GetUnreadCount{}, "")
	e.fetchSnapshot(wire.GetOnlinePlayers{}, "")
}

// correlate registers a one-shot handler for the given confirmation kind.
// One operation per confirmation kind may be outstanding at a time.
func (e *Engine) correlate(confirmKind wire.Kind, resolve func(f wire.Frame, err error)) bool {
	if _, busy := e.correlations[confirmKind]; busy {
		return false
	}
	token := e.newToken()
	p := &pending{token: token, resolve: resolve}
	p.timer = time.AfterFunc(e.opts.CorrelationTimeout, func() {
		e.post(correlationTimeoutMsg{token: token})
	})
	e.correlations[confirmKind] = p
	return true
}

func (e *Engine) resolveCorrelation(confirmKind wire.Kind, f wire.Frame, err error) {
	p, ok := e.correlations[confirmKind]
	if !ok {
		return
	}
	p.timer.Stop()
	delete(e.correlations, confirmKind)
	p.resolve(f, err)
}

func (e *Engine) notify(topics ...Topic) {
	for _, sub := range e.subs {
		for _, topic := range topics {
			if sub.topic != topic {
				continue
			}
			select {
			case sub.ch <- topic:
			default:
				// wakeup already queued; coalesce
			}
		}
	}
}
