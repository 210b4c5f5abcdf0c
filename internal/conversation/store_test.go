package conversation

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id int64, from, to, text string) Message {
	return Message{
		ID: id, Sender: from, Recipient: to, Text: text,
		CreatedAt: time.Unix(1700000000+id, 0),
	}
}

func TestKeyIsDirectionless(t *testing.T) {
	assert.Equal(t, KeyFor("alice", "bob"), KeyFor("bob", "alice"))
	assert.Equal(t, "bob", KeyFor("alice", "bob").Other("alice"))
	assert.Equal(t, "alice", KeyFor("alice", "bob").Other("bob"))
}

func TestLateFrameLandsBetweenItsNeighbors(t *testing.T) {
	s := NewStore("me")
	s.AppendIncoming(msg(1, "dana", "me", "hi"))
	s.AppendIncoming(msg(3, "dana", "me", "how are you"))

	// id=2 arrives last but belongs in the middle
	s.AppendIncoming(msg(2, "dana", "me", "still there?"))

	got := s.Messages("dana")
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].ID, got[1].ID, got[2].ID})

	// the preview still reflects the newest message, not the last arrival
	convs := s.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "how are you", convs[0].LastPreview)
}

func TestOrderingHoldsForAnyArrivalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := rng.Perm(50)

	s := NewStore("me")
	for _, i := range ids {
		s.AppendIncoming(msg(int64(i+1), "dana", "me", "m"))
	}

	got := s.Messages("dana")
	require.Len(t, got, 50)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].ID, got[i].ID)
	}
}

func TestDuplicateDeliveryIsIgnored(t *testing.T) {
	s := NewStore("me")
	s.AppendIncoming(msg(4, "dana", "me", "once"))
	s.AppendIncoming(msg(4, "dana", "me", "once"))

	assert.Len(t, s.Messages("dana"), 1)
	assert.Equal(t, 1, s.Unread("dana"))
}

func TestUnreadCountsOnlyClosedThreads(t *testing.T) {
	s := NewStore("me")
	s.AppendIncoming(msg(1, "dana", "me", "hi"))
	assert.Equal(t, 1, s.Unread("dana"))

	needsFetch := s.OpenThread("dana")
	assert.True(t, needsFetch)
	s.AppendIncoming(msg(2, "dana", "me", "you there?"))
	assert.Equal(t, 1, s.Unread("dana"), "open thread must not accumulate unread")
}

func TestMarkReadIsIdempotent(t *testing.T) {
	s := NewStore("me")
	s.AppendIncoming(msg(1, "dana", "me", "hi"))
	s.AppendIncoming(msg(2, "dana", "me", "hello"))

	assert.Equal(t, 2, s.MarkRead("dana"))
	assert.Equal(t, 0, s.Unread("dana"))

	assert.Equal(t, 0, s.MarkRead("dana"))
	assert.Equal(t, 0, s.Unread("dana"))

	for _, m := range s.Messages("dana") {
		assert.True(t, m.Read)
		assert.False(t, m.ReadAt.IsZero())
	}
}

func TestOptimisticSendConfirmedByEcho(t *testing.T) {
	s := NewStore("me")
	s.AppendIncoming(msg(10, "dana", "me", "hi"))

	sent := s.AppendOutgoing("dana", "hey dana", "tok-1")
	assert.Equal(t, SendPending, sent.State)

	got := s.Messages("dana")
	require.Len(t, got, 2)
	assert.Equal(t, SendPending, got[1].State)

	echo := msg(11, "me", "dana", "hey dana")
	echo.ClientToken = "tok-1"
	s.ConfirmOutgoing(echo)

	got = s.Messages("dana")
	require.Len(t, got, 2)
	assert.Equal(t, int64(11), got[1].ID)
	assert.Equal(t, SendConfirmed, got[1].State)
}

func TestSendWithoutEchoBecomesFailedNotRetried(t *testing.T) {
	s := NewStore("me")
	s.AppendOutgoing("dana", "anyone home?", "tok-9")

	assert.True(t, s.FailOutgoing("tok-9"))
	got := s.Messages("dana")
	require.Len(t, got, 1)
	assert.Equal(t, SendFailed, got[0].State)

	// a second expiry for the same token is a no-op
	assert.False(t, s.FailOutgoing("tok-9"))
}

func TestHistoryBackfillKeepsProvisionalTail(t *testing.T) {
	s := NewStore("me")
	s.AppendIncoming(msg(5, "dana", "me", "latest"))
	s.AppendOutgoing("dana", "pending reply", "tok-2")

	// wire order is newest first; the store reverses it
	s.ApplyHistory("dana", []Message{
		msg(5, "dana", "me", "latest"),
		msg(4, "me", "dana", "mine"),
		msg(2, "dana", "me", "older"),
	})

	got := s.Messages("dana")
	require.Len(t, got, 4)
	assert.Equal(t, []int64{2, 4, 5}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, SendPending, got[3].State)
}

func TestSeededTotalUntilSnapshot(t *testing.T) {
	s := NewStore("me")
	s.ApplyUnreadTotal(5)
	assert.Equal(t, 5, s.TotalUnread())

	s.ApplySnapshot([]Summary{
		{Counterpart: "dana", Unread: 2, LastPreview: "a", LastMessageAt: time.Unix(1, 0)},
		{Counterpart: "erin", Unread: 3, LastPreview: "b", LastMessageAt: time.Unix(2, 0)},
	})
	assert.Equal(t, 5, s.TotalUnread())

	// once the snapshot exists, unread_count frames no longer override
	s.ApplyUnreadTotal(99)
	assert.Equal(t, 5, s.TotalUnread())

	s.MarkRead("dana")
	s.MarkRead("erin")
	assert.Equal(t, 0, s.TotalUnread())
}

func TestConversationsOrderedByRecency(t *testing.T) {
	s := NewStore("me")
	s.ApplySnapshot([]Summary{
		{Counterpart: "dana", LastMessageAt: time.Unix(100, 0)},
		{Counterpart: "erin", LastMessageAt: time.Unix(300, 0)},
		{Counterpart: "bob", LastMessageAt: time.Unix(200, 0)},
	})

	convs := s.Conversations()
	require.Len(t, convs, 3)
	assert.Equal(t, "erin", convs[0].Counterpart)
	assert.Equal(t, "bob", convs[1].Counterpart)
	assert.Equal(t, "dana", convs[2].Counterpart)
}
