package engine

import (
	"github.com/brisca-live/social-client/internal/conversation"
	"github.com/brisca-live/social-client/internal/presence"
	"github.com/brisca-live/social-client/internal/relationship"
	"github.com/brisca-live/social-client/internal/wire"
)

// Intents. All are fire-and-forget from the caller's perspective: the
// stores update asynchronously and subscribed views re-render.

func (e *Engine) SendFriendRequest(to string) { e.post(sendFriendRequestMsg{to: to}) }

func (e *Engine) AcceptRequest(id int64) { e.post(acceptRequestMsg{id: id}) }

func (e *Engine) RejectRequest(id int64) { e.post(rejectRequestMsg{id: id}) }

// RemoveFriend assumes the caller already confirmed with the user; the
// confirmation step is UI policy, not store policy.
func (e *Engine) RemoveFriend(name string) { e.post(removeFriendMsg{name: name}) }

func (e *Engine) Block(name string) { e.post(blockMsg{name: name}) }

func (e *Engine) Unblock(name string) { e.post(unblockMsg{name: name}) }

// QueryBlockStatus asks the server for the pair's block state in both
// directions; the result lands in the relationship store. Views call it
// before showing the chat composer for a non-friend.
func (e *Engine) QueryBlockStatus(name string) { e.post(queryBlockStatusMsg{name: name}) }

func (e *Engine) SendMessage(to, text string) { e.post(sendMessageMsg{to: to, text: text}) }

func (e *Engine) MarkRead(counterpart string) { e.post(markReadMsg{counterpart: counterpart}) }

// OpenThread lazily fetches history on first open; later opens are cache
// hits unless the session reconnected in between.
func (e *Engine) OpenThread(counterpart string) { e.post(openThreadMsg{counterpart: counterpart}) }

func (e *Engine) CloseThread(counterpart string) { e.post(closeThreadMsg{counterpart: counterpart}) }

// RefreshAll re-issues the snapshot fetches. Identical in-flight requests
// are coalesced, so concurrently mounted views can all call this freely.
func (e *Engine) RefreshAll() { e.post(refreshMsg{}) }

// FetchProfile runs a request/response round-trip. The result channel
// receives exactly one value: the profile, or ErrTimeout/ErrInFlight/
// ErrRejected.
func (e *Engine) FetchProfile(username string) <-chan ProfileResult {
	reply := make(chan ProfileResult, 1)
	if !e.tryPost(fetchProfileMsg{username: username, reply: reply}) {
		reply <- ProfileResult{Err: ErrClosed}
	}
	return reply
}

// SaveProfile persists profile edits. The caller decides what to do on
// failure; nothing is retried automatically.
func (e *Engine) SaveProfile(icon int, tagline string) <-chan error {
	reply := make(chan error, 1)
	update := wire.UpdateUserProfile{Icon: icon, Tagline: tagline}
	if !e.tryPost(saveProfileMsg{update: update, reply: reply}) {
		reply <- ErrClosed
	}
	return reply
}

func (e *Engine) tryPost(m msg) bool {
	select {
	case e.inbox <- m:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// Subscribe registers a view on one topic. The returned channel gets a
// coalesced wakeup after relevant mutations; cancel unregisters exactly
// this subscription and closes the channel.
func (e *Engine) Subscribe(topic Topic) (<-chan Topic, func()) {
	ch := make(chan Topic, 1)
	reply := make(chan int, 1)
	if !e.tryPost(subscribeMsg{topic: topic, ch: ch, reply: reply}) {
		close(ch)
		return ch, func() {}
	}
	select {
	case id := <-reply:
		return ch, func() { e.post(unsubscribeMsg{id: id}) }
	case <-e.ctx.Done():
		return ch, func() {}
	}
}

// Reads. Each runs inside the engine loop so callers always see a
// consistent snapshot without the stores needing locks.

func (e *Engine) read(fn func()) {
	done := make(chan struct{})
	if !e.tryPost(readMsg{fn: fn, done: done}) {
		return
	}
	select {
	case <-done:
	case <-e.ctx.Done():
	}
}

func (e *Engine) Online() bool {
	var v bool
	e.read(func() { v = e.online })
	return v
}

func (e *Engine) Friends() []relationship.Friend {
	var v []relationship.Friend
	e.read(func() { v = e.rels.Friends() })
	return v
}

func (e *Engine) IncomingRequests() []relationship.Request {
	var v []relationship.Request
	e.read(func() { v = e.rels.Incoming() })
	return v
}

func (e *Engine) OutgoingRequests() []relationship.Request {
	var v []relationship.Request
	e.read(func() { v = e.rels.Outgoing() })
	return v
}

func (e *Engine) StatusOf(name string) relationship.Status {
	v := relationship.StatusNone
	e.read(func() { v = e.rels.StatusOf(name) })
	return v
}

// Suggestions filters recently played opponents down to players the user
// could still befriend; blocked players never surface.
func (e *Engine) Suggestions(recent []string) []string {
	var v []string
	e.read(func() { v = e.rels.Suggestions(recent) })
	return v
}

func (e *Engine) Conversations() []conversation.Summary {
	var v []conversation.Summary
	e.read(func() { v = e.convs.Conversations() })
	return v
}

func (e *Engine) Messages(counterpart string) []conversation.Message {
	var v []conversation.Message
	e.read(func() { v = e.convs.Messages(counterpart) })
	return v
}

func (e *Engine) Unread(counterpart string) int {
	var v int
	e.read(func() { v = e.convs.Unread(counterpart) })
	return v
}

// GlobalUnread is the badge total from the notification aggregator.
func (e *Engine) GlobalUnread() int {
	var v int
	e.read(func() { v = e.agg.GlobalUnread() })
	return v
}

func (e *Engine) PendingRequestCount() int {
	var v int
	e.read(func() { v = e.agg.PendingRequests() })
	return v
}

func (e *Engine) Presence(player string) (presence.Entry, bool) {
	var (
		v  presence.Entry
		ok bool
	)
	e.read(func() { v, ok = e.presence.Get(player) })
	return v, ok
}

func (e *Engine) OnlinePlayers() []presence.Entry {
	var v []presence.Entry
	e.read(func() { v = e.presence.Players() })
	return v
}

// CachedProfile returns the last fetched profile for a player, if any.
func (e *Engine) CachedProfile(username string) (wire.Profile, bool) {
	var (
		v  wire.Profile
		ok bool
	)
	e.read(func() { v, ok = e.profiles[username] })
	return v, ok
}
