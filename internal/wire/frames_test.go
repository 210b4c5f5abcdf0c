package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDispatchesByKind(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Frame
	}{
		{
			name: "friends list snapshot",
			raw:  `{"event":"friends_list","data":{"friends":[{"username":"alice","icon":3,"status":"in_game","activeGameId":"g-17"}]}}`,
			want: FriendsList{Friends: []FriendWithStatus{{Username: "alice", Icon: 3, Status: "in_game", ActiveGameID: "g-17"}}},
		},
		{
			name: "direct message received",
			raw:  `{"event":"direct_message_received","data":{"senderUsername":"bob","message":{"id":42,"sender":"bob","recipient":"alice","text":"hola"}}}`,
			want: DirectMessageReceived{SenderUsername: "bob", Message: Message{ID: 42, Sender: "bob", Recipient: "alice", Text: "hola"}},
		},
		{
			name: "unread count",
			raw:  `{"event":"unread_count","data":{"count":5}}`,
			want: UnreadCount{Count: 5},
		},
		{
			name: "empty payload is fine for notices",
			raw:  `{"event":"friend_added","data":{"friendName":"carol"}}`,
			want: FriendAdded{FriendName: "carol"},
		},
		{
			name: "error frame keeps its context tag",
			raw:  `{"event":"error","data":{"context":"get_user_profile","message":"no such player"}}`,
			want: ErrorFrame{Context: "get_user_profile", Message: "no such player"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"event":"typing_indicator","data":{}}`))
	if !errors.Is(err, ErrUnknownFrame) {
		t.Fatalf("want ErrUnknownFrame, got %v", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode([]byte(`{"event":"unread_count","data":{"count":"five"}}`))
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("want ErrBadPayload, got %v", err)
	}

	_, err = Decode([]byte(`not json at all`))
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("want ErrBadPayload, got %v", err)
	}
}

func TestMarshalRoundTripsThroughEnvelope(t *testing.T) {
	data, err := Marshal(SendDirectMessage{
		RecipientUsername: "dana",
		MessageText:       "your lead",
		ClientToken:       "tok-1",
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"event":"send_direct_message","data":{"recipientUsername":"dana","messageText":"your lead","clientToken":"tok-1"}}`,
		string(data))
}
