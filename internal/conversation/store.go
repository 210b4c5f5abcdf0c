// Package conversation owns per-counterpart message threads and their
// unread counters. Messages are ordered by server-assigned id, never by
// arrival time; optimistic sends sit at the tail until the server echo
// carries their real id. Only the sync engine writes, from one goroutine.
package conversation

import (
	"sort"
	"time"
)

// SendState tags an optimistically-applied message.
type SendState string

const (
	SendConfirmed SendState = "confirmed"
	SendPending   SendState = "pending"
	SendFailed    SendState = "failed"
)

type Message struct {
	ID        int64 // 0 while provisional
	Sender    string
	Recipient string
	Text      string
	CreatedAt time.Time
	Read      bool
	ReadAt    time.Time

	State       SendState
	ClientToken string // correlation token for provisional sends
}

// Summary is the list-view projection of one thread.
type Summary struct {
	Counterpart   string
	LastPreview   string
	LastMessageAt time.Time
	Unread        int
}

// thread keeps confirmed messages in id-ascending order, followed by
// provisional sends in issue order.
type thread struct {
	counterpart   string
	messages      []Message
	unread        int
	lastPreview   string
	lastMessageAt time.Time
	loaded        bool // full history fetched
	open          bool // a view is showing it
}

func (t *thread) confirmedLen() int {
	n := 0
	for n < len(t.messages) && t.messages[n].State == SendConfirmed {
		n++
	}
	return n
}

// insertConfirmed places m by id among the confirmed prefix, ignoring
// duplicates (the channel is at-least-once).
func (t *thread) insertConfirmed(m Message) bool {
	m.State = SendConfirmed
	prefix := t.confirmedLen()
	pos := sort.Search(prefix, func(i int) bool { return t.messages[i].ID >= m.ID })
	if pos < prefix && t.messages[pos].ID == m.ID {
		return false
	}
	t.messages = append(t.messages, Message{})
	copy(t.messages[pos+1:], t.messages[pos:])
	t.messages[pos] = m
	return true
}

func (t *thread) refreshTail() {
	if len(t.messages) == 0 {
		return
	}
	last := t.messages[len(t.messages)-1]
	t.lastPreview = last.Text
	if last.CreatedAt.After(t.lastMessageAt) {
		t.lastMessageAt = last.CreatedAt
	}
}

type Store struct {
	self    string
	threads map[Key]*thread
	byToken map[string]Key

	// server-reported total before any conversations snapshot; a lazily
	// populated store would otherwise report zero unread at startup
	seedUnread   int
	haveSnapshot bool
}

func NewStore(self string) *Store {
	return &Store{
		self:    self,
		threads: make(map[Key]*thread),
		byToken: make(map[string]Key),
	}
}

func (s *Store) Self() string { return s.self }

func (s *Store) thread(counterpart string) *thread {
	k := KeyFor(s.self, counterpart)
	t, ok := s.threads[k]
	if !ok {
		t = &thread{counterpart: counterpart}
		s.threads[k] = t
	}
	return t
}

// ApplySnapshot applies a conversations_list frame. Threads keep any
// already-loaded messages; previews and unread counts are authoritative.
func (s *Store) ApplySnapshot(summaries []Summary) {
	for _, sum := range summaries {
		t := s.thread(sum.Counterpart)
		t.lastPreview = sum.LastPreview
		if sum.LastMessageAt.After(t.lastMessageAt) {
			t.lastMessageAt = sum.LastMessageAt
		}
		if !t.open {
			t.unread = sum.Unread
		}
	}
	s.haveSnapshot = true
	s.seedUnread = 0
}

// ApplyHistory applies a conversation_messages page. The wire carries it
// newest first; the thread stores oldest first. Provisional sends survive
// the backfill at the tail.
func (s *Store) ApplyHistory(counterpart string, newestFirst []Message) {
	t := s.thread(counterpart)

	var provisional []Message
	for _, m := range t.messages {
		if m.State != SendConfirmed {
			provisional = append(provisional, m)
		}
	}

	t.messages = t.messages[:0]
	for i := len(newestFirst) - 1; i >= 0; i-- {
		t.insertConfirmed(newestFirst[i])
	}
	t.messages = append(t.messages, provisional...)
	t.loaded = true
	t.refreshTail()

	if !t.open {
		t.unread = 0
		for _, m := range t.messages {
			if m.Recipient == s.self && !m.Read {
				t.unread++
			}
		}
	}
}

// AppendIncoming inserts a received message by id, wherever it belongs.
// Delivery order is irrelevant: a late frame with a smaller id lands
// between its neighbors, not at the end.
func (s *Store) AppendIncoming(m Message) {
	t := s.thread(m.Sender)
	if !t.insertConfirmed(m) {
		return // duplicate delivery
	}
	if !t.open && m.Recipient == s.self && !m.Read {
		t.unread++
	}

	// preview tracks the newest confirmed message only
	prefix := t.confirmedLen()
	if newest := t.messages[prefix-1]; newest.ID == m.ID {
		t.lastPreview = m.Text
		if m.CreatedAt.After(t.lastMessageAt) {
			t.lastMessageAt = m.CreatedAt
		}
	}
}

// AppendOutgoing records an optimistic send. The returned copy carries the
// provisional state and the correlation token.
func (s *Store) AppendOutgoing(counterpart, text, token string) Message {
	m := Message{
		Sender:      s.self,
		Recipient:   counterpart,
		Text:        text,
		CreatedAt:   time.Now(),
		State:       SendPending,
		ClientToken: token,
	}
	t := s.thread(counterpart)
	t.messages = append(t.messages, m)
	t.refreshTail()
	s.byToken[token] = KeyFor(s.self, counterpart)
	return m
}

// ConfirmOutgoing reconciles a server echo with the provisional copy by
// correlation token, re-inserting it at its id-ordered position.
func (s *Store) ConfirmOutgoing(m Message) {
	if k, ok := s.byToken[m.ClientToken]; ok {
		delete(s.byToken, m.ClientToken)
		if t := s.threads[k]; t != nil {
			t.dropProvisional(m.ClientToken)
		}
	}
	t := s.thread(m.Recipient)
	t.insertConfirmed(m)
	t.refreshTail()
}

// FailOutgoing marks a provisional send failed after its echo window
// expired. The message stays visible; retrying is the caller's decision.
func (s *Store) FailOutgoing(token string) bool {
	k, ok := s.byToken[token]
	if !ok {
		return false
	}
	delete(s.byToken, token)
	t := s.threads[k]
	if t == nil {
		return false
	}
	for i := range t.messages {
		if t.messages[i].ClientToken == token && t.messages[i].State == SendPending {
			t.messages[i].State = SendFailed
			return true
		}
	}
	return false
}

func (t *thread) dropProvisional(token string) {
	for i := range t.messages {
		if t.messages[i].ClientToken == token && t.messages[i].State != SendConfirmed {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return
		}
	}
}

// MarkRead zeroes the unread counter and flips unread messages addressed to
// self. Idempotent: the server confirmation replays through here too.
func (s *Store) MarkRead(counterpart string) int {
	t, ok := s.threads[KeyFor(s.self, counterpart)]
	if !ok {
		return 0
	}
	cleared := t.unread
	t.unread = 0
	now := time.Now()
	for i := range t.messages {
		if t.messages[i].Recipient == s.self && !t.messages[i].Read {
			t.messages[i].Read = true
			t.messages[i].ReadAt = now
		}
	}
	return cleared
}

// OpenThread marks the thread visible and reports whether history still
// needs fetching. Repeat opens are cache hits.
func (s *Store) OpenThread(counterpart string) (needsFetch bool) {
	t := s.thread(counterpart)
	t.open = true
	return !t.loaded
}

func (s *Store) CloseThread(counterpart string) {
	if t, ok := s.threads[KeyFor(s.self, counterpart)]; ok {
		t.open = false
	}
}

// ApplyUnreadTotal seeds the aggregate from an unread_count frame. Once a
// conversations snapshot exists the per-thread counters are authoritative.
func (s *Store) ApplyUnreadTotal(n int) {
	if !s.haveSnapshot {
		s.seedUnread = n
	}
}

// Conversations lists thread summaries, most recent activity first.
func (s *Store) Conversations() []Summary {
	out := make([]Summary, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, Summary{
			Counterpart:   t.counterpart,
			LastPreview:   t.lastPreview,
			LastMessageAt: t.lastMessageAt,
			Unread:        t.unread,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].Counterpart < out[j].Counterpart
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// Messages returns the thread with counterpart, oldest first.
func (s *Store) Messages(counterpart string) []Message {
	t, ok := s.threads[KeyFor(s.self, counterpart)]
	if !ok {
		return nil
	}
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (s *Store) Unread(counterpart string) int {
	if t, ok := s.threads[KeyFor(s.self, counterpart)]; ok {
		return t.unread
	}
	return 0
}

// TotalUnread sums the per-thread counters, or reports the server-seeded
// total while no conversations snapshot has arrived yet.
func (s *Store) TotalUnread() int {
	total := 0
	for _, t := range s.threads {
		total += t.unread
	}
	if !s.haveSnapshot && s.seedUnread > total {
		return s.seedUnread
	}
	return total
}
