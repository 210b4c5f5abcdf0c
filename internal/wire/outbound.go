package wire

import "encoding/json"

// Outbound is the union of client-issued frames. Every intent translates to
// exactly one of these.
type Outbound interface{ Kind() Kind }

type GetFriendsList struct{}

type GetFriendRequests struct{}

type GetSentFriendRequests struct{}

type SendFriendRequest struct {
	ToPlayer string `json:"toPlayer"`
}

type AcceptFriendRequest struct {
	RequestID int64 `json:"requestId"`
}

type RejectFriendRequest struct {
	RequestID int64 `json:"requestId"`
}

type RemoveFriend struct {
	FriendName string `json:"friendName"`
}

type BlockPlayer struct {
	BlockedName string `json:"blockedName"`
}

type UnblockPlayer struct {
	BlockedName string `json:"blockedName"`
}

type GetBlockStatus struct {
	PlayerName string `json:"playerName"`
}

type GetConversations struct{}

type GetConversation struct {
	OtherUsername string `json:"otherUsername"`
	Limit         int    `json:"limit"`
	Offset        int    `json:"offset"`
}

// SendDirectMessage carries a client-generated token the server echoes back
// in direct_message_sent, which is how the optimistic copy is reconciled.
type SendDirectMessage struct {
	RecipientUsername string `json:"recipientUsername"`
	MessageText       string `json:"messageText"`
	ClientToken       string `json:"clientToken"`
}

type MarkMessagesRead struct {
	SenderUsername string `json:"senderUsername"`
}

type GetUnreadCount struct{}

type GetOnlinePlayers struct{}

type GetUserProfile struct {
	Username string `json:"username"`
}

type UpdateUserProfile struct {
	Icon    int    `json:"icon"`
	Tagline string `json:"tagline"`
}

func (GetFriendsList) Kind() Kind        { return KindGetFriendsList }
func (GetFriendRequests) Kind() Kind     { return KindGetFriendRequests }
func (GetSentFriendRequests) Kind() Kind { return KindGetSentFriendRequests }
func (SendFriendRequest) Kind() Kind     { return KindSendFriendRequest }
func (AcceptFriendRequest) Kind() Kind   { return KindAcceptFriendRequest }
func (RejectFriendRequest) Kind() Kind   { return KindRejectFriendRequest }
func (RemoveFriend) Kind() Kind          { return KindRemoveFriend }
func (BlockPlayer) Kind() Kind           { return KindBlockPlayer }
func (UnblockPlayer) Kind() Kind         { return KindUnblockPlayer }
func (GetBlockStatus) Kind() Kind        { return KindGetBlockStatus }
func (GetConversations) Kind() Kind      { return KindGetConversations }
func (GetConversation) Kind() Kind       { return KindGetConversation }
func (SendDirectMessage) Kind() Kind     { return KindSendDirectMessage }
func (MarkMessagesRead) Kind() Kind      { return KindMarkMessagesRead }
func (GetUnreadCount) Kind() Kind        { return KindGetUnreadCount }
func (GetOnlinePlayers) Kind() Kind      { return KindGetOnlinePlayers }
func (GetUserProfile) Kind() Kind        { return KindGetUserProfile }
func (UpdateUserProfile) Kind() Kind     { return KindUpdateUserProfile }

// Marshal wraps an outbound frame in the wire envelope.
func Marshal(o Outbound) ([]byte, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: o.Kind(), Data: payload})
}

// Encode wraps a server-side payload in the wire envelope. The gateway and
// tests use it to build inbound frames.
func Encode(kind Kind, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: kind, Data: data})
}
