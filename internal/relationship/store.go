// Package relationship owns the friend list, pending requests in both
// directions, and block relationships for one session. Only the sync engine
// writes to it, always from a single goroutine.
package relationship

import (
	"sort"
	"time"
)

// Friend is one confirmed friend. Status and ActiveGameID are the presence
// the server joined into the last friends_list snapshot; empty means the
// friend was offline at snapshot time.
type Friend struct {
	Name         string
	Icon         int
	Status       string
	ActiveGameID string
}

type Request struct {
	ID        int64
	From      string
	To        string
	CreatedAt time.Time
}

type Store struct {
	self string

	friends       map[string]Friend
	incoming      map[int64]Request  // pending, addressed to self, keyed by server id
	outgoing      map[string]Request // pending, sent by self, keyed by counterpart
	blockedByMe   map[string]struct{}
	blockedByThem map[string]struct{}
}

func NewStore(self string) *Store {
	return &Store{
		self:          self,
		friends:       make(map[string]Friend),
		incoming:      make(map[int64]Request),
		outgoing:      make(map[string]Request),
		blockedByMe:   make(map[string]struct{}),
		blockedByThem: make(map[string]struct{}),
	}
}

func (s *Store) Self() string { return s.self }

// ApplyFriends replaces the friend set from a friends_list snapshot.
func (s *Store) ApplyFriends(friends []Friend) {
	next := make(map[string]Friend, len(friends))
	for _, f := range friends {
		next[f.Name] = f
	}
	s.friends = next
}

// ApplyIncoming replaces the incoming pending set from a snapshot.
func (s *Store) ApplyIncoming(reqs []Request) {
	next := make(map[int64]Request, len(reqs))
	for _, r := range reqs {
		next[r.ID] = r
	}
	s.incoming = next
}

// ApplyOutgoing replaces the outgoing pending set from a snapshot.
func (s *Store) ApplyOutgoing(reqs []Request) {
	next := make(map[string]Request, len(reqs))
	for _, r := range reqs {
		next[r.To] = r
	}
	s.outgoing = next
}

// OptimisticRequest records a self-issued friend request before any server
// reply. Returns false when the pair is not in a state that admits one.
func (s *Store) OptimisticRequest(to string) bool {
	if _, err := Next(s.StatusOf(to), TransRequestSent); err != nil {
		return false
	}
	s.outgoing[to] = Request{From: s.self, To: to, CreatedAt: time.Now()}
	return true
}

// ConfirmRequestSent replaces the provisional outgoing entry with the
// server's copy, which carries the authoritative id.
func (s *Store) ConfirmRequestSent(req Request) {
	s.outgoing[req.To] = req
}

// AddIncoming records a friend_request_received notice. Requests from
// players we blocked are suppressed, as are duplicates for the same pair.
func (s *Store) AddIncoming(req Request) bool {
	if _, err := Next(s.StatusOf(req.From), TransRequestReceived); err != nil {
		return false
	}
	s.incoming[req.ID] = req
	return true
}

// IncomingByID looks up a pending incoming request. The engine uses it to
// report duplicate accepts/rejects as benign conflicts without emitting a
// second frame.
func (s *Store) IncomingByID(id int64) (Request, bool) {
	r, ok := s.incoming[id]
	return r, ok
}

// ResolveIncoming removes a pending incoming request once resolved, in
// either direction. Resolved requests are immutable and never reappear.
func (s *Store) ResolveIncoming(id int64) {
	delete(s.incoming, id)
}

// RemoveOutgoing drops a pending outgoing request (rejection notice or
// withdrawal).
func (s *Store) RemoveOutgoing(to string) {
	delete(s.outgoing, to)
}

// FriendAdded moves a pair to friends and clears pending requests in both
// directions, keeping the exclusivity invariant. A notice for a pair that
// is blocked in either direction is ignored: the block shadows everything
// until lifted, and lifting never restores edges.
func (s *Store) FriendAdded(name string) {
	switch s.StatusOf(name) {
	case StatusBlockedByMe, StatusBlockedByThem, StatusMutuallyBlocked:
		return
	}
	if _, ok := s.friends[name]; !ok {
		s.friends[name] = Friend{Name: name}
	}
	delete(s.outgoing, name)
	for id, r := range s.incoming {
		if r.From == name {
			delete(s.incoming, id)
		}
	}
}

func (s *Store) FriendRemoved(name string) {
	delete(s.friends, name)
}

// Blocked applies a block by self. Friendship and pending edges for the
// pair are cleared at the same time.
func (s *Store) Blocked(name string) {
	s.blockedByMe[name] = struct{}{}
	s.clearEdges(name)
}

// BlockedByPeer applies a block in the other direction.
func (s *Store) BlockedByPeer(name string) {
	s.blockedByThem[name] = struct{}{}
	s.clearEdges(name)
}

func (s *Store) clearEdges(name string) {
	delete(s.friends, name)
	delete(s.outgoing, name)
	for id, r := range s.incoming {
		if r.From == name {
			delete(s.incoming, id)
		}
	}
}

// Unblocked lifts a block by self. Prior friendship or requests are not
// restored.
func (s *Store) Unblocked(name string) {
	delete(s.blockedByMe, name)
}

func (s *Store) UnblockedByPeer(name string) {
	delete(s.blockedByThem, name)
}

// ApplyBlockStatus applies a block_status query result for one pair.
func (s *Store) ApplyBlockStatus(name string, byMe, byThem bool) {
	if byMe {
		s.Blocked(name)
	} else {
		delete(s.blockedByMe, name)
	}
	if byThem {
		s.BlockedByPeer(name)
	} else {
		delete(s.blockedByThem, name)
	}
}

// StatusOf derives the pair status. Blocks shadow everything else.
func (s *Store) StatusOf(name string) Status {
	_, byMe := s.blockedByMe[name]
	_, byThem := s.blockedByThem[name]
	switch {
	case byMe && byThem:
		return StatusMutuallyBlocked
	case byMe:
		return StatusBlockedByMe
	case byThem:
		return StatusBlockedByThem
	}

	if _, ok := s.friends[name]; ok {
		return StatusFriends
	}
	if _, ok := s.outgoing[name]; ok {
		return StatusOutgoingPending
	}
	for _, r := range s.incoming {
		if r.From == name {
			return StatusIncomingPending
		}
	}
	return StatusNone
}

// Friends returns the friend list sorted by name.
func (s *Store) Friends() []Friend {
	out := make([]Friend, 0, len(s.friends))
	for _, f := range s.friends {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Incoming returns pending incoming requests, oldest first.
func (s *Store) Incoming() []Request {
	out := make([]Request, 0, len(s.incoming))
	for _, r := range s.incoming {
		out = append(out, r)
	}
	sortRequests(out)
	return out
}

// Outgoing returns pending outgoing requests, oldest first.
func (s *Store) Outgoing() []Request {
	out := make([]Request, 0, len(s.outgoing))
	for _, r := range s.outgoing {
		out = append(out, r)
	}
	sortRequests(out)
	return out
}

func sortRequests(reqs []Request) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].ID < reqs[j].ID
		}
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
}

func (s *Store) PendingIncomingCount() int { return len(s.incoming) }

// Suggestions filters recently played players down to those we could still
// befriend. Blocked players never surface here, in either direction.
func (s *Store) Suggestions(recent []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(recent))
	for _, name := range recent {
		if name == s.self {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if s.StatusOf(name) == StatusNone {
			out = append(out, name)
		}
	}
	return out
}
