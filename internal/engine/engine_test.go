package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brisca-live/social-client/internal/channel"
	"github.com/brisca-live/social-client/internal/conversation"
	"github.com/brisca-live/social-client/internal/relationship"
	"github.com/brisca-live/social-client/internal/wire"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func newTestEngine(t *testing.T, opts Options) (*Engine, *channel.Pipe) {
	t.Helper()
	pipe := channel.NewPipe()
	e := New(context.Background(), pipe, "me", zap.NewNop(), opts)
	t.Cleanup(func() {
		e.Close()
		pipe.Close()
	})
	return e, pipe
}

func countKind(p *channel.Pipe, k wire.Kind) int {
	return len(p.SentOfKind(k))
}

// drainResync answers the initial snapshot fetches so their in-flight
// guards are lifted.
func drainResync(t *testing.T, e *Engine, p *channel.Pipe) {
	t.Helper()
	require.Eventually(t, func() bool {
		return countKind(p, wire.KindGetUnreadCount) >= 1
	}, waitFor, tick, "initial resync never went out")

	p.Deliver(wire.FriendsList{})
	p.Deliver(wire.FriendRequests{})
	p.Deliver(wire.SentFriendRequests{})
	p.Deliver(wire.ConversationsList{})
	p.Deliver(wire.UnreadCount{})
	p.Deliver(wire.OnlinePlayers{})

	require.Eventually(t, func() bool {
		return len(e.Friends()) == 0 && e.GlobalUnread() == 0
	}, waitFor, tick)
}

// recvWakeup mirrors the usual snapshot helper: receive one notification
// with a timeout so the test can never hang.
func recvWakeup(t *testing.T, ch <-chan Topic) Topic {
	t.Helper()
	select {
	case topic, ok := <-ch:
		if !ok {
			t.Fatalf("subscription channel closed unexpectedly")
		}
		return topic
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for wakeup")
		return ""
	}
}

func TestOptimisticFriendRequestIsolatedPerPair(t *testing.T) {
	e, p := newTestEngine(t, Options{})
	drainResync(t, e, p)

	p.Deliver(wire.FriendsList{Friends: []wire.FriendWithStatus{
		{Username: "alice", Icon: 1}, {Username: "bob", Icon: 2},
	}})
	require.Eventually(t, func() bool { return len(e.Friends()) == 2 }, waitFor, tick)

	e.SendFriendRequest("carol")
	require.Eventually(t, func() bool {
		return e.StatusOf("carol") == relationship.StatusOutgoingPending
	}, waitFor, tick)

	// a request for a different pair leaves carol untouched
	p.Deliver(wire.FriendRequestReceived{Request: wire.FriendRequest{
		ID: 9, From: "dana", To: "me", CreatedAt: time.Now(),
	}})
	require.Eventually(t, func() bool {
		return e.StatusOf("dana") == relationship.StatusIncomingPending
	}, waitFor, tick)
	assert.Equal(t, relationship.StatusOutgoingPending, e.StatusOf("carol"))

	require.Len(t, p.SentOfKind(wire.KindSendFriendRequest), 1)
}

func TestDuplicateFriendRequestSuppressedWhileInFlight(t *testing.T) {
	e, p := newTestEngine(t, Options{CorrelationTimeout: time.Minute})
	drainResync(t, e, p)

	e.SendFriendRequest("carol")
	e.SendFriendRequest("carol")
	e.SendFriendRequest("carol")

	require.Eventually(t, func() bool {
		return e.StatusOf("carol") == relationship.StatusOutgoingPending
	}, waitFor, tick)
	assert.Len(t, p.SentOfKind(wire.KindSendFriendRequest), 1)
}

func TestRejectedFriendRequestRollsBack(t *testing.T) {
	e, p := newTestEngine(t, Options{CorrelationTimeout: time.Minute})
	drainResync(t, e, p)

	e.SendFriendRequest("carol")
	require.Eventually(t, func() bool {
		return e.StatusOf("carol") == relationship.StatusOutgoingPending
	}, waitFor, tick)

	p.Deliver(wire.ErrorFrame{Context: "send_friend_request:carol", Message: "not allowed"})
	require.Eventually(t, func() bool {
		return e.StatusOf("carol") == relationship.StatusNone
	}, waitFor, tick)
	assert.Empty(t, e.OutgoingRequests())

	// the guard is lifted too, so the user can try again
	e.SendFriendRequest("carol")
	require.Eventually(t, func() bool {
		return countKind(p, wire.KindSendFriendRequest) == 2
	}, waitFor, tick)
}

func TestUnconfirmedFriendRequestExpiresBackToNone(t *testing.T) {
	e, p := newTestEngine(t, Options{CorrelationTimeout: 40 * time.Millisecond})
	drainResync(t, e, p)

	e.SendFriendRequest("carol")
	require.Eventually(t, func() bool {
		return countKind(p, wire.KindSendFriendRequest) == 1
	}, waitFor, tick)

	// no confirmation ever arrives; the provisional entry must not outlive
	// its guard
	require.Eventually(t, func() bool {
		return e.StatusOf("carol") == relationship.StatusNone
	}, waitFor, tick)
}

func TestAcceptOfResolvedRequestIsBenign(t *testing.T) {
	e, p := newTestEngine(t, Options{})
	drainResync(t, e, p)

	p.Deliver(wire.FriendRequestReceived{Request: wire.FriendRequest{ID: 5, From: "erin", To: "me"}})
	require.Eventually(t, func() bool { return e.PendingRequestCount() == 1 }, waitFor, tick)

	e.AcceptRequest(5)
	require.Eventually(t, func() bool {
		return countKind(p, wire.KindAcceptFriendRequest) == 1
	}, waitFor, tick)

	p.Deliver(wire.FriendAdded{FriendName: "erin"})
	require.Eventually(t, func() bool {
		return e.StatusOf("erin") == relationship.StatusFriends
	}, waitFor, tick)
	assert.Equal(t, 0, e.PendingRequestCount())

	// duplicate accept after resolution: no-op, no second frame
	e.AcceptRequest(5)
	assert.Equal(t, relationship.StatusFriends, e.StatusOf("erin"))
	assert.Equal(t, 1, countKind(p, wire.KindAcceptFriendRequest))
}

func TestBlockForcesFriendshipOut(t *testing.T) {
	e, p := newTestEngine(t, Options{})
	drainResync(t, e, p)

	p.Deliver(wire.FriendsList{Friends: []wire.FriendWithStatus{{Username: "alice", Icon: 1}}})
	require.Eventually(t, func() bool { return len(e.Friends()) == 1 }, waitFor, tick)

	e.Block("alice")
	require.Eventually(t, func() bool {
		return countKind(p, wire.KindBlockPlayer) == 1
	}, waitFor, tick)

	p.Deliver(wire.PlayerBlocked{BlockedName: "alice"})
	require.Eventually(t, func() bool {
		return e.StatusOf("alice") == relationship.StatusBlockedByMe
	}, waitFor, tick)
	assert.Empty(t, e.Friends())
}

func TestQueryBlockStatusAppliesResult(t *testing.T) {
	e, p := newTestEngine(t, Options{CorrelationTimeout: time.Minute})
	drainResync(t, e, p)

	// duplicate queries coalesce while one is in flight
	e.QueryBlockStatus("alice")
	e.QueryBlockStatus("alice")
	require.Eventually(t, func() bool {
		return countKind(p, wire.KindGetBlockStatus) == 1
	}, waitFor, tick)

	p.Deliver(wire.BlockStatus{PlayerName: "alice", BlockedByThem: true})
	require.Eventually(t, func() bool {
		return e.StatusOf("alice") == relationship.StatusBlockedByThem
	}, waitFor, tick)

	// the result lifted the guard; a fresh query goes out
	e.QueryBlockStatus("alice")
	require.Eventually(t, func() bool {
		return countKind(p, wire.KindGetBlockStatus) == 2
	}, waitFor, tick)
}

func TestLateMessageInsertsById(t *testing.T) {
	e, p := newTestEngine(t, Options{})
	drainResync(t, e, p)

	deliver := func(id int64, text string) {
		p.Deliver(wire.DirectMessageReceived{SenderUsername: "dana", Message: wire.Message{
			ID: id, Sender: "dana", Recipient: "me", Text: text, CreatedAt: time.Unix(1700000000+id, 0),
		}})
	}
	deliver(1, "hi")
	deliver(3, "how are you")
	deliver(2, "still there?")

	require.Eventually(t, func() bool { return len(e.Messages("dana")) == 3 }, waitFor, tick)
	got := e.Messages("dana")
	assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].ID, got[1].ID, got[2].ID})
}

func TestMarkReadIdempotentAndDeduplicated(t *testing.T) {
	e, p := newTestEngine(t, Options{CorrelationTimeout: time.Minute})
	drainResync(t, e, p)

	p.Deliver(wire.DirectMessageReceived{SenderUsername: "dana", Message: wire.Message{
		ID: 1, Sender: "dana", Recipient: "me", Text: "hi", CreatedAt: time.Now(),
	}})
	require.Eventually(t, func() bool { return e.Unread("dana") == 1 }, waitFor, tick)

	e.MarkRead("dana")
	e.MarkRead("dana")

	require.Eventually(t, func() bool { return e.Unread("dana") == 0 }, waitFor, tick)
	assert.Equal(t, 0, e.GlobalUnread())
	assert.Len(t, p.SentOfKind(wire.KindMarkMessagesRead), 1,
		"second call must not duplicate the outbound frame")
}

func TestSendEchoConfirmsOptimisticMessage(t *testing.T) {
	e, p := newTestEngine(t, Options{EchoTimeout: time.Minute})
	drainResync(t, e, p)

	e.SendMessage("dana", "your lead")
	require.Eventually(t, func() bool { return len(e.Messages("dana")) == 1 }, waitFor, tick)
	assert.Equal(t, conversation.SendPending, e.Messages("dana")[0].State)

	sent := p.SentOfKind(wire.KindSendDirectMessage)
	require.Len(t, sent, 1)
	token := sent[0].(wire.SendDirectMessage).ClientToken
	require.NotEmpty(t, token)

	p.Deliver(wire.DirectMessageSent{Message: wire.Message{
		ID: 7, Sender: "me", Recipient: "dana", Text: "your lead",
		CreatedAt: time.Now(), ClientToken: token,
	}})
	require.Eventually(t, func() bool {
		ms := e.Messages("dana")
		return len(ms) == 1 && ms[0].State == conversation.SendConfirmed && ms[0].ID == 7
	}, waitFor, tick)
}

func TestSendWithoutEchoFailsAfterWindow(t *testing.T) {
	e, p := newTestEngine(t, Options{EchoTimeout: 30 * time.Millisecond})
	drainResync(t, e, p)

	e.SendMessage("dana", "anyone there?")
	require.Eventually(t, func() bool {
		ms := e.Messages("dana")
		return len(ms) == 1 && ms[0].State == conversation.SendFailed
	}, waitFor, tick)

	// failed means failed: nothing is retried
	assert.Len(t, p.SentOfKind(wire.KindSendDirectMessage), 1)
}

func TestOpenThreadFetchesHistoryOnce(t *testing.T) {
	e, p := newTestEngine(t, Options{})
	drainResync(t, e, p)

	e.OpenThread("dana")
	e.OpenThread("dana")
	require.Eventually(t, func() bool {
		return countKind(p, wire.KindGetConversation) == 1
	}, waitFor, tick)

	// page arrives newest first; the store reverses it
	p.Deliver(wire.ConversationMessages{OtherUsername: "dana", Messages: []wire.Message{
		{ID: 3, Sender: "dana", Recipient: "me", Text: "newest", CreatedAt: time.Unix(3, 0)},
		{ID: 1, Sender: "me", Recipient: "dana", Text: "oldest", CreatedAt: time.Unix(1, 0)},
	}})
	require.Eventually(t, func() bool { return len(e.Messages("dana")) == 2 }, waitFor, tick)
	assert.Equal(t, int64(1), e.Messages("dana")[0].ID)

	// cache hit: no further fetch
	e.OpenThread("dana")
	e.CloseThread("dana")
	assert.Equal(t, 1, countKind(p, wire.KindGetConversation))
}

func TestReconnectResyncsExactlyOnce(t *testing.T) {
	e, p := newTestEngine(t, Options{CorrelationTimeout: time.Minute})
	drainResync(t, e, p)

	p.Drop()
	require.Eventually(t, func() bool { return !e.Online() }, waitFor, tick)

	p.Restore()
	require.Eventually(t, func() bool { return e.Online() }, waitFor, tick)

	// three mounted views all ask for a refresh on reconnect
	e.RefreshAll()
	e.RefreshAll()
	e.RefreshAll()

	require.Eventually(t, func() bool {
		return countKind(p, wire.KindGetFriendsList) >= 2
	}, waitFor, tick)
	// settle, then check nothing beyond the single resync round went out
	time.Sleep(50 * time.Millisecond)
	for _, k := range []wire.Kind{
		wire.KindGetFriendsList,
		wire.KindGetFriendRequests,
		wire.KindGetSentFriendRequests,
		wire.KindGetConversations,
		wire.KindGetUnreadCount,
	} {
		assert.Equal(t, 2, countKind(p, k), "kind %s", k)
	}
}

func TestOfflineSendFailsLocally(t *testing.T) {
	e, p := newTestEngine(t, Options{})
	drainResync(t, e, p)

	p.Drop()
	require.Eventually(t, func() bool { return !e.Online() }, waitFor, tick)

	e.SendMessage("dana", "hello?")
	require.Eventually(t, func() bool {
		ms := e.Messages("dana")
		return len(ms) == 1 && ms[0].State == conversation.SendFailed
	}, waitFor, tick)
	assert.Empty(t, p.SentOfKind(wire.KindSendDirectMessage))
}

func TestProfileRoundTrip(t *testing.T) {
	e, p := newTestEngine(t, Options{CorrelationTimeout: time.Minute})
	drainResync(t, e, p)

	res := e.FetchProfile("alice")
	require.Eventually(t, func() bool {
		return countKind(p, wire.KindGetUserProfile) == 1
	}, waitFor, tick)

	p.Deliver(wire.UserProfileResponse{Profile: wire.Profile{
		Username: "alice", Icon: 4, Tagline: "las cuarenta", GamesPlayed: 120, GamesWon: 61,
	}})

	got := <-res
	require.NoError(t, got.Err)
	assert.Equal(t, "alice", got.Profile.Username)
	assert.Equal(t, 61, got.Profile.GamesWon)

	cached, ok := e.CachedProfile("alice")
	require.True(t, ok)
	assert.Equal(t, 4, cached.Icon)
}

func TestProfileSaveTimesOutAsLocalFailure(t *testing.T) {
	e, p := newTestEngine(t, Options{CorrelationTimeout: 40 * time.Millisecond})
	drainResync(t, e, p)

	err := <-e.SaveProfile(2, "brisca forever")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, 1, countKind(p, wire.KindUpdateUserProfile), "no automatic retry")
}

func TestSecondProfileOpWhileOneInFlight(t *testing.T) {
	e, p := newTestEngine(t, Options{CorrelationTimeout: time.Minute})
	drainResync(t, e, p)

	first := e.FetchProfile("alice")
	second := e.FetchProfile("bob")

	got := <-second
	assert.True(t, errors.Is(got.Err, ErrInFlight))

	p.Deliver(wire.UserProfileResponse{Profile: wire.Profile{Username: "alice"}})
	require.NoError(t, (<-first).Err)
}

func TestErrorFrameRoutedToOriginatingOperationOnly(t *testing.T) {
	e, p := newTestEngine(t, Options{CorrelationTimeout: time.Minute})
	drainResync(t, e, p)

	res := e.SaveProfile(9, "x")
	require.Eventually(t, func() bool {
		return countKind(p, wire.KindUpdateUserProfile) == 1
	}, waitFor, tick)

	p.Deliver(wire.ErrorFrame{Context: "update_user_profile", Message: "tagline too long"})
	err := <-res
	assert.True(t, errors.Is(err, ErrRejected))

	// the rejection touched no store state
	assert.Equal(t, 0, e.GlobalUnread())
}

func TestSubscriberWakeupAndCancel(t *testing.T) {
	e, p := newTestEngine(t, Options{})
	drainResync(t, e, p)

	ch, cancel := e.Subscribe(TopicUnread)

	p.Deliver(wire.DirectMessageReceived{SenderUsername: "dana", Message: wire.Message{
		ID: 1, Sender: "dana", Recipient: "me", Text: "hi", CreatedAt: time.Now(),
	}})
	assert.Equal(t, TopicUnread, recvWakeup(t, ch))

	cancel()
	// the channel closes once the loop processes the unsubscribe
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, waitFor, tick)
}
