// Package presence tracks which players are online and what they are doing.
// The registry is written only by the sync engine, inside its loop, so it
// needs no locking; views read it through the engine.
package presence

import "sort"

type Status string

const (
	StatusInLobby         Status = "in_lobby"
	StatusInTeamSelection Status = "in_team_selection"
	StatusInGame          Status = "in_game"
)

// Entry is one online player. ConnectionID is transient; Player is the
// canonical key everywhere.
type Entry struct {
	Player       string
	ConnectionID string
	Status       Status
	ActiveGameID string
}

type Registry struct {
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// ApplySnapshot replaces the whole registry. Absence from a snapshot is the
// disconnect signal; there is no separate "left" frame. The returned deltas
// exist for UI animation only, correctness never depends on them.
func (r *Registry) ApplySnapshot(entries []Entry) (joined, left []string) {
	next := make(map[string]Entry, len(entries))
	for _, e := range entries {
		next[e.Player] = e
		if _, ok := r.entries[e.Player]; !ok {
			joined = append(joined, e.Player)
		}
	}
	for player := range r.entries {
		if _, ok := next[player]; !ok {
			left = append(left, player)
		}
	}
	r.entries = next

	sort.Strings(joined)
	sort.Strings(left)
	return joined, left
}

func (r *Registry) Get(player string) (Entry, bool) {
	e, ok := r.entries[player]
	return e, ok
}

func (r *Registry) Online(player string) bool {
	_, ok := r.entries[player]
	return ok
}

func (r *Registry) Len() int { return len(r.entries) }

// Players returns the online players sorted by name.
func (r *Registry) Players() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player < out[j].Player })
	return out
}
