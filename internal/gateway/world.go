package gateway

import (
	"sort"
	"time"

	"github.com/brisca-live/social-client/internal/wire"
)

// pair is the canonical unordered key for two players.
type pair [2]string

func pairOf(a, b string) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// world is the gateway's in-memory state: enough server behavior to
// exercise the full wire contract, nothing more. The Gateway's mutex
// guards every access.
type world struct {
	profiles map[string]wire.Profile
	friends  map[pair]struct{}
	requests map[int64]wire.FriendRequest
	blocks   map[string]map[string]struct{} // blocker -> blocked
	messages map[pair][]wire.Message

	nextRequestID int64
	nextMessageID int64
}

func newWorld() *world {
	return &world{
		profiles: make(map[string]wire.Profile),
		friends:  make(map[pair]struct{}),
		requests: make(map[int64]wire.FriendRequest),
		blocks:   make(map[string]map[string]struct{}),
		messages: make(map[pair][]wire.Message),
	}
}

func (w *world) ensureProfile(username string) {
	if _, ok := w.profiles[username]; !ok {
		w.profiles[username] = wire.Profile{Username: username}
	}
}

func (w *world) blocked(blocker, target string) bool {
	set, ok := w.blocks[blocker]
	if !ok {
		return false
	}
	_, ok = set[target]
	return ok
}

func (w *world) friendsOf(username string) []string {
	var out []string
	for p := range w.friends {
		if p[0] == username {
			out = append(out, p[1])
		} else if p[1] == username {
			out = append(out, p[0])
		}
	}
	sort.Strings(out)
	return out
}

func (w *world) pendingFor(username string, incoming bool) []wire.FriendRequest {
	var out []wire.FriendRequest
	for _, r := range w.requests {
		if (incoming && r.To == username) || (!incoming && r.From == username) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *world) addRequest(from, to string) (wire.FriendRequest, bool) {
	if from == to {
		return wire.FriendRequest{}, false
	}
	if _, ok := w.friends[pairOf(from, to)]; ok {
		return wire.FriendRequest{}, false
	}
	if w.blocked(to, from) || w.blocked(from, to) {
		return wire.FriendRequest{}, false
	}
	for _, r := range w.requests {
		if (r.From == from && r.To == to) || (r.From == to && r.To == from) {
			return wire.FriendRequest{}, false
		}
	}
	w.nextRequestID++
	req := wire.FriendRequest{ID: w.nextRequestID, From: from, To: to, CreatedAt: time.Now()}
	w.requests[req.ID] = req
	w.ensureProfile(from)
	w.ensureProfile(to)
	return req, true
}

func (w *world) resolveRequest(id int64, accept bool) (wire.FriendRequest, bool) {
	req, ok := w.requests[id]
	if !ok {
		return wire.FriendRequest{}, false
	}
	delete(w.requests, id)
	if accept {
		w.friends[pairOf(req.From, req.To)] = struct{}{}
	}
	return req, true
}

func (w *world) removeFriend(a, b string) bool {
	p := pairOf(a, b)
	if _, ok := w.friends[p]; !ok {
		return false
	}
	delete(w.friends, p)
	return true
}

func (w *world) block(blocker, target string) {
	if w.blocks[blocker] == nil {
		w.blocks[blocker] = make(map[string]struct{})
	}
	w.blocks[blocker][target] = struct{}{}
	delete(w.friends, pairOf(blocker, target))
	for id, r := range w.requests {
		if (r.From == blocker && r.To == target) || (r.From == target && r.To == blocker) {
			delete(w.requests, id)
		}
	}
}

func (w *world) unblock(blocker, target string) {
	if set, ok := w.blocks[blocker]; ok {
		delete(set, target)
	}
}

func (w *world) appendMessage(from, to, text, token string) wire.Message {
	w.nextMessageID++
	m := wire.Message{
		ID:          w.nextMessageID,
		Sender:      from,
		Recipient:   to,
		Text:        text,
		CreatedAt:   time.Now(),
		ClientToken: token,
	}
	p := pairOf(from, to)
	w.messages[p] = append(w.messages[p], m)
	return m
}

func (w *world) conversationsOf(username string) []wire.Conversation {
	var out []wire.Conversation
	for p, msgs := range w.messages {
		if p[0] != username && p[1] != username {
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		other := p[0]
		if other == username {
			other = p[1]
		}
		last := msgs[len(msgs)-1]
		unread := 0
		for _, m := range msgs {
			if m.Recipient == username && !m.IsRead {
				unread++
			}
		}
		out = append(out, wire.Conversation{
			OtherUsername: other,
			LastPreview:   last.Text,
			LastMessageAt: last.CreatedAt,
			UnreadCount:   unread,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// page returns up to limit messages between the two players, newest first.
func (w *world) page(username, other string, limit, offset int) []wire.Message {
	msgs := w.messages[pairOf(username, other)]
	if limit <= 0 {
		limit = 50
	}
	var out []wire.Message
	for i := len(msgs) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out
}

// markRead flips everything other->username to read; returns whether
// anything changed.
func (w *world) markRead(username, other string) bool {
	p := pairOf(username, other)
	changed := false
	now := time.Now()
	for i := range w.messages[p] {
		m := &w.messages[p][i]
		if m.Recipient == username && !m.IsRead {
			m.IsRead = true
			m.ReadAt = &now
			changed = true
		}
	}
	return changed
}

func (w *world) unreadTotal(username string) int {
	total := 0
	for p, msgs := range w.messages {
		if p[0] != username && p[1] != username {
			continue
		}
		for _, m := range msgs {
			if m.Recipient == username && !m.IsRead {
				total++
			}
		}
	}
	return total
}
