package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownFrame = errors.New("unknown frame kind")
var ErrBadPayload = errors.New("malformed frame payload")

// Kind names one frame type crossing the channel, in either direction.
type Kind string

const (
	// Client -> Server
	KindGetFriendsList        Kind = "get_friends_list"
	KindGetFriendRequests     Kind = "get_friend_requests"
	KindGetSentFriendRequests Kind = "get_sent_friend_requests"
	KindSendFriendRequest     Kind = "send_friend_request"
	KindAcceptFriendRequest   Kind = "accept_friend_request"
	KindRejectFriendRequest   Kind = "reject_friend_request"
	KindRemoveFriend          Kind = "remove_friend"
	KindBlockPlayer           Kind = "block_player"
	KindUnblockPlayer         Kind = "unblock_player"
	KindGetBlockStatus        Kind = "get_block_status"
	KindGetConversations      Kind = "get_conversations"
	KindGetConversation       Kind = "get_conversation"
	KindSendDirectMessage     Kind = "send_direct_message"
	KindMarkMessagesRead      Kind = "mark_messages_read"
	KindGetUnreadCount        Kind = "get_unread_count"
	KindGetOnlinePlayers      Kind = "get_online_players"
	KindGetUserProfile        Kind = "get_user_profile"
	KindUpdateUserProfile     Kind = "update_user_profile"

	// Server -> Client
	KindFriendsList           Kind = "friends_list"
	KindFriendRequests        Kind = "friend_requests"
	KindSentFriendRequests    Kind = "sent_friend_requests"
	KindFriendRequestSent     Kind = "friend_request_sent"
	KindFriendRequestReceived Kind = "friend_request_received"
	KindFriendAdded           Kind = "friend_added"
	KindFriendRemoved         Kind = "friend_removed"
	KindPlayerBlocked         Kind = "player_blocked"
	KindPlayerUnblocked       Kind = "player_unblocked"
	KindBlockStatus           Kind = "block_status"
	KindConversationsList     Kind = "conversations_list"
	KindConversationMessages  Kind = "conversation_messages"
	KindDirectMessageReceived Kind = "direct_message_received"
	KindDirectMessageSent     Kind = "direct_message_sent"
	KindMessagesMarkedRead    Kind = "messages_marked_read"
	KindUnreadCount           Kind = "unread_count"
	KindOnlinePlayers         Kind = "online_players"
	KindUserProfileResponse   Kind = "user_profile_response"
	KindUserProfileUpdated    Kind = "user_profile_updated"
	KindError                 Kind = "error"
)

// Presence status values carried by presence snapshots.
const (
	PresenceInLobby         = "in_lobby"
	PresenceInTeamSelection = "in_team_selection"
	PresenceInGame          = "in_game"
)

// Envelope is the JSON shape of every frame on the wire.
type Envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// FriendWithStatus is one entry of a friends_list snapshot. Status is the
// last presence known to the server at snapshot time; empty means offline.
type FriendWithStatus struct {
	Username     string `json:"username"`
	Icon         int    `json:"icon"`
	Status       string `json:"status,omitempty"`
	ActiveGameID string `json:"activeGameId,omitempty"`
}

type FriendRequest struct {
	ID        int64     `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is a direct message. ClientToken echoes the sender's correlation
// token so an optimistic append can be reconciled with the server copy.
type Message struct {
	ID          int64      `json:"id"`
	Sender      string     `json:"sender"`
	Recipient   string     `json:"recipient"`
	Text        string     `json:"text"`
	CreatedAt   time.Time  `json:"createdAt"`
	IsRead      bool       `json:"isRead"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	ClientToken string     `json:"clientToken,omitempty"`
}

// Conversation is one entry of a conversations_list snapshot.
type Conversation struct {
	OtherUsername string    `json:"otherUsername"`
	LastPreview   string    `json:"lastPreview"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
}

type PresenceEntry struct {
	Player       string `json:"player"`
	ConnectionID string `json:"connectionId"`
	Status       string `json:"status"`
	ActiveGameID string `json:"activeGameId,omitempty"`
}

type Profile struct {
	Username    string `json:"username"`
	Icon        int    `json:"icon"`
	Tagline     string `json:"tagline"`
	GamesPlayed int    `json:"gamesPlayed"`
	GamesWon    int    `json:"gamesWon"`
}

// Frame is the union of inbound frames. Decode returns exactly one of the
// concrete types below.
type Frame interface{ isFrame() }

type FriendsList struct {
	Friends []FriendWithStatus `json:"friends"`
}

type FriendRequests struct {
	Requests []FriendRequest `json:"requests"`
}

type SentFriendRequests struct {
	Requests []FriendRequest `json:"requests"`
}

type FriendRequestSent struct {
	Request FriendRequest `json:"request"`
}

type FriendRequestReceived struct {
	Request FriendRequest `json:"request"`
}

type FriendAdded struct {
	FriendName string `json:"friendName"`
}

type FriendRemoved struct {
	FriendName string `json:"friendName"`
}

type PlayerBlocked struct {
	BlockedName string `json:"blockedName"`
}

type PlayerUnblocked struct {
	BlockedName string `json:"blockedName"`
}

type BlockStatus struct {
	PlayerName    string `json:"playerName"`
	BlockedByMe   bool   `json:"blockedByMe"`
	BlockedByThem bool   `json:"blockedByThem"`
}

type ConversationsList struct {
	Conversations []Conversation `json:"conversations"`
}

// ConversationMessages carries one page of history, newest first on the
// wire; consumers reverse it.
type ConversationMessages struct {
	OtherUsername string    `json:"otherUsername"`
	Messages      []Message `json:"messages"`
}

type DirectMessageReceived struct {
	SenderUsername string  `json:"senderUsername"`
	Message        Message `json:"message"`
}

type DirectMessageSent struct {
	Message Message `json:"message"`
}

type MessagesMarkedRead struct {
	SenderUsername string `json:"senderUsername"`
}

type UnreadCount struct {
	Count int `json:"count"`
}

type OnlinePlayers struct {
	Players []PresenceEntry `json:"players"`
}

type UserProfileResponse struct {
	Profile Profile `json:"profile"`
}

type UserProfileUpdated struct {
	Success bool `json:"success"`
}

// ErrorFrame is a semantic rejection. Context tags the request it answers
// (a frame kind or a client correlation token) so it can be routed to the
// originating caller instead of broadcast.
type ErrorFrame struct {
	Context string `json:"context"`
	Message string `json:"message"`
}

func (FriendsList) isFrame()           {}
func (FriendRequests) isFrame()        {}
func (SentFriendRequests) isFrame()    {}
func (FriendRequestSent) isFrame()     {}
func (FriendRequestReceived) isFrame() {}
func (FriendAdded) isFrame()           {}
func (FriendRemoved) isFrame()         {}
func (PlayerBlocked) isFrame()         {}
func (PlayerUnblocked) isFrame()       {}
func (BlockStatus) isFrame()           {}
func (ConversationsList) isFrame()     {}
func (ConversationMessages) isFrame()  {}
func (DirectMessageReceived) isFrame() {}
func (DirectMessageSent) isFrame()     {}
func (MessagesMarkedRead) isFrame()    {}
func (UnreadCount) isFrame()           {}
func (OnlinePlayers) isFrame()         {}
func (UserProfileResponse) isFrame()   {}
func (UserProfileUpdated) isFrame()    {}
func (ErrorFrame) isFrame()            {}

// Decode validates an inbound frame at the boundary. Unknown kinds return
// ErrUnknownFrame so callers can drop them with a diagnostic instead of
// partially applying anything.
func Decode(data []byte) (Frame, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var f Frame
	switch env.Event {
	case KindFriendsList:
		f = &FriendsList{}
	case KindFriendRequests:
		f = &FriendRequests{}
	case KindSentFriendRequests:
		f = &SentFriendRequests{}
	case KindFriendRequestSent:
		f = &FriendRequestSent{}
	case KindFriendRequestReceived:
		f = &FriendRequestReceived{}
	case KindFriendAdded:
		f = &FriendAdded{}
	case KindFriendRemoved:
		f = &FriendRemoved{}
	case KindPlayerBlocked:
		f = &PlayerBlocked{}
	case KindPlayerUnblocked:
		f = &PlayerUnblocked{}
	case KindBlockStatus:
		f = &BlockStatus{}
	case KindConversationsList:
		f = &ConversationsList{}
	case KindConversationMessages:
		f = &ConversationMessages{}
	case KindDirectMessageReceived:
		f = &DirectMessageReceived{}
	case KindDirectMessageSent:
		f = &DirectMessageSent{}
	case KindMessagesMarkedRead:
		f = &MessagesMarkedRead{}
	case KindUnreadCount:
		f = &UnreadCount{}
	case KindOnlinePlayers:
		f = &OnlinePlayers{}
	case KindUserProfileResponse:
		f = &UserProfileResponse{}
	case KindUserProfileUpdated:
		f = &UserProfileUpdated{}
	case KindError:
		f = &ErrorFrame{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, f); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Event, err)
		}
	}
	return deref(f), nil
}

// deref returns the value type so switches on Decode results match the
// value forms used throughout the engine.
func deref(f Frame) Frame {
	switch v := f.(type) {
	case *FriendsList:
		return *v
	case *FriendRequests:
		return *v
	case *SentFriendRequests:
		return *v
	case *FriendRequestSent:
		return *v
	case *FriendRequestReceived:
		return *v
	case *FriendAdded:
		return *v
	case *FriendRemoved:
		return *v
	case *PlayerBlocked:
		return *v
	case *PlayerUnblocked:
		return *v
	case *BlockStatus:
		return *v
	case *ConversationsList:
		return *v
	case *ConversationMessages:
		return *v
	case *DirectMessageReceived:
		return *v
	case *DirectMessageSent:
		return *v
	case *MessagesMarkedRead:
		return *v
	case *UnreadCount:
		return *v
	case *OnlinePlayers:
		return *v
	case *UserProfileResponse:
		return *v
	case *UserProfileUpdated:
		return *v
	case *ErrorFrame:
		return *v
	}
	return f
}
