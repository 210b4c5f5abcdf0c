// Package notify derives the global notification counts. It holds no state
// of its own: every read recomputes from the conversation and relationship
// stores, so the badge can never drift from what the stores contain.
package notify

import (
	"github.com/brisca-live/social-client/internal/conversation"
	"github.com/brisca-live/social-client/internal/relationship"
)

type Aggregator struct {
	convs *conversation.Store
	rels  *relationship.Store
}

func NewAggregator(convs *conversation.Store, rels *relationship.Store) *Aggregator {
	return &Aggregator{convs: convs, rels: rels}
}

// GlobalUnread is the badge total: unread messages across all threads plus
// pending incoming friend requests.
func (a *Aggregator) GlobalUnread() int {
	return a.convs.TotalUnread() + a.rels.PendingIncomingCount()
}

func (a *Aggregator) UnreadMessages() int {
	return a.convs.TotalUnread()
}

func (a *Aggregator) PendingRequests() int {
	return a.rels.PendingIncomingCount()
}
