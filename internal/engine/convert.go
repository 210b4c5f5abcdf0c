package engine

import (
	"fmt"
	"time"

	"github.com/brisca-live/social-client/internal/conversation"
	"github.com/brisca-live/social-client/internal/presence"
	"github.com/brisca-live/social-client/internal/relationship"
	"github.com/brisca-live/social-client/internal/wire"
)

// Boundary conversions between wire payloads and store types, in the same
// spirit as mapping client messages onto engine commands.

func toRequest(r wire.FriendRequest) relationship.Request {
	return relationship.Request{ID: r.ID, From: r.From, To: r.To, CreatedAt: r.CreatedAt}
}

func toRequests(rs []wire.FriendRequest) []relationship.Request {
	out := make([]relationship.Request, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRequest(r))
	}
	return out
}

func toMessage(m wire.Message) conversation.Message {
	var readAt time.Time
	if m.ReadAt != nil {
		readAt = *m.ReadAt
	}
	return conversation.Message{
		ID:          m.ID,
		Sender:      m.Sender,
		Recipient:   m.Recipient,
		Text:        m.Text,
		CreatedAt:   m.CreatedAt,
		Read:        m.IsRead,
		ReadAt:      readAt,
		State:       conversation.SendConfirmed,
		ClientToken: m.ClientToken,
	}
}

func toMessages(ms []wire.Message) []conversation.Message {
	out := make([]conversation.Message, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMessage(m))
	}
	return out
}

func toSummaries(cs []wire.Conversation) []conversation.Summary {
	out := make([]conversation.Summary, 0, len(cs))
	for _, c := range cs {
		out = append(out, conversation.Summary{
			Counterpart:   c.OtherUsername,
			LastPreview:   c.LastPreview,
			LastMessageAt: c.LastMessageAt,
			Unread:        c.UnreadCount,
		})
	}
	return out
}

func toEntries(ps []wire.PresenceEntry) []presence.Entry {
	out := make([]presence.Entry, 0, len(ps))
	for _, p := range ps {
		out = append(out, presence.Entry{
			Player:       p.Player,
			ConnectionID: p.ConnectionID,
			Status:       presence.Status(p.Status),
			ActiveGameID: p.ActiveGameID,
		})
	}
	return out
}

func serverError(f wire.ErrorFrame) error {
	return fmt.Errorf("%w: %s", ErrRejected, f.Message)
}
