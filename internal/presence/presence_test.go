package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotReplacesWholesale(t *testing.T) {
	r := NewRegistry()

	r.ApplySnapshot([]Entry{
		{Player: "alice", ConnectionID: "c1", Status: StatusInLobby},
		{Player: "bob", ConnectionID: "c2", Status: StatusInGame, ActiveGameID: "g-9"},
	})
	assert.Equal(t, 2, r.Len())

	// bob missing from the next snapshot means bob disconnected
	joined, left := r.ApplySnapshot([]Entry{
		{Player: "alice", ConnectionID: "c1", Status: StatusInTeamSelection},
		{Player: "carol", ConnectionID: "c7", Status: StatusInLobby},
	})
	assert.Equal(t, []string{"carol"}, joined)
	assert.Equal(t, []string{"bob"}, left)

	assert.False(t, r.Online("bob"))
	e, ok := r.Get("alice")
	assert.True(t, ok)
	assert.Equal(t, StatusInTeamSelection, e.Status)
}

func TestSnapshotUpdatesConnectionID(t *testing.T) {
	r := NewRegistry()
	r.ApplySnapshot([]Entry{{Player: "alice", ConnectionID: "c1", Status: StatusInLobby}})

	// same player back with a fresh connection: replaced, not duplicated
	joined, left := r.ApplySnapshot([]Entry{{Player: "alice", ConnectionID: "c2", Status: StatusInLobby}})
	assert.Empty(t, joined)
	assert.Empty(t, left)

	e, _ := r.Get("alice")
	assert.Equal(t, "c2", e.ConnectionID)
	assert.Equal(t, 1, r.Len())
}

func TestEmptySnapshotClearsEveryone(t *testing.T) {
	r := NewRegistry()
	r.ApplySnapshot([]Entry{
		{Player: "alice", ConnectionID: "c1", Status: StatusInLobby},
		{Player: "bob", ConnectionID: "c2", Status: StatusInLobby},
	})

	joined, left := r.ApplySnapshot(nil)
	assert.Empty(t, joined)
	assert.Equal(t, []string{"alice", "bob"}, left)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Players())
}
