package engine

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brisca-live/social-client/internal/relationship"
	"github.com/brisca-live/social-client/internal/wire"
)

func randomToken() string { return uuid.NewString() }

func (e *Engine) handleMsg(m msg) {
	switch m := m.(type) {

	case sendFriendRequestMsg:
		key := guardKey(wire.KindSendFriendRequest, m.to)
		if _, busy := e.inflight[key]; busy {
			return // double-click, one already in flight
		}
		if !e.rels.OptimisticRequest(m.to) {
			e.log.Debug("friend request refused locally",
				zap.String("to", m.to), zap.String("status", string(e.rels.StatusOf(m.to))))
			return
		}
		e.guard(key)
		if !e.send(wire.SendFriendRequest{ToPlayer: m.to}) {
			e.rels.RemoveOutgoing(m.to)
			e.clearGuard(key)
		}
		e.notify(TopicRequests)

	case acceptRequestMsg:
		if _, ok := e.rels.IncomingByID(m.id); !ok {
			return // already resolved; benign conflict
		}
		if !e.guard(guardKey(wire.KindAcceptFriendRequest, strconv.FormatInt(m.id, 10))) {
			return
		}
		e.send(wire.AcceptFriendRequest{RequestID: m.id})

	case rejectRequestMsg:
		if _, ok := e.rels.IncomingByID(m.id); !ok {
			return
		}
		if !e.guard(guardKey(wire.KindRejectFriendRequest, strconv.FormatInt(m.id, 10))) {
			return
		}
		e.send(wire.RejectFriendRequest{RequestID: m.id})
		// resolved requests are immutable; drop it locally right away
		e.rels.ResolveIncoming(m.id)
		e.notify(TopicRequests, TopicUnread)

	case removeFriendMsg:
		if e.rels.StatusOf(m.name) != relationship.StatusFriends {
			return
		}
		if !e.guard(guardKey(wire.KindRemoveFriend, m.name)) {
			return
		}
		e.send(wire.RemoveFriend{FriendName: m.name})

	case blockMsg:
		if !e.guard(guardKey(wire.KindBlockPlayer, m.name)) {
			return
		}
		e.send(wire.BlockPlayer{BlockedName: m.name})

	case unblockMsg:
		switch e.rels.StatusOf(m.name) {
		case relationship.StatusBlockedByMe, relationship.StatusMutuallyBlocked:
		default:
			return
		}
		if !e.guard(guardKey(wire.KindUnblockPlayer, m.name)) {
			return
		}
		e.send(wire.UnblockPlayer{BlockedName: m.name})

	case queryBlockStatusMsg:
		e.fetchSnapshot(wire.GetBlockStatus{PlayerName: m.name}, m.name)

	case sendMessageMsg:
		token := e.newToken()
		e.convs.AppendOutgoing(m.to, m.text, token)
		sent := e.send(wire.SendDirectMessage{
			RecipientUsername: m.to,
			MessageText:       m.text,
			ClientToken:       token,
		})
		if !sent {
			// offline: keep the message visible, marked failed, no retry
			e.convs.FailOutgoing(token)
		} else {
			e.echoTimers[token] = e.afterEcho(token)
		}
		e.notify(TopicConversations)

	case markReadMsg:
		cleared := e.convs.MarkRead(m.counterpart)
		// second call while the confirmation is pending sends nothing
		if e.guard(guardKey(wire.KindMarkMessagesRead, m.counterpart)) {
			e.send(wire.MarkMessagesRead{SenderUsername: m.counterpart})
		}
		if cleared > 0 {
			e.notify(TopicConversations, TopicUnread)
		}

	case openThreadMsg:
		if e.convs.OpenThread(m.counterpart) {
			e.fetchSnapshot(wire.GetConversation{
				OtherUsername: m.counterpart,
				Limit:         e.opts.PageSize,
			}, m.counterpart)
		}
		e.notify(TopicConversations)

	case closeThreadMsg:
		e.convs.CloseThread(m.counterpart)

	case refreshMsg:
		e.resync()

	case fetchProfileMsg:
		ok := e.correlate(wire.KindUserProfileResponse, func(f wire.Frame, err error) {
			if err != nil {
				m.reply <- ProfileResult{Err: err}
				return
			}
			resp := f.(wire.UserProfileResponse)
			m.reply <- ProfileResult{Profile: resp.Profile}
		})
		if !ok {
			m.reply <- ProfileResult{Err: ErrInFlight}
			return
		}
		if !e.send(wire.GetUserProfile{Username: m.username}) {
			e.resolveCorrelation(wire.KindUserProfileResponse, nil, ErrOffline)
		}

	case saveProfileMsg:
		ok := e.correlate(wire.KindUserProfileUpdated, func(f wire.Frame, err error) {
			m.reply <- err
		})
		if !ok {
			m.reply <- ErrInFlight
			return
		}
		if !e.send(m.update) {
			e.resolveCorrelation(wire.KindUserProfileUpdated, nil, ErrOffline)
		}

	case echoTimeoutMsg:
		delete(e.echoTimers, m.token)
		if e.convs.FailOutgoing(m.token) {
			e.log.Warn("message echo timed out", zap.String("token", m.token))
			e.notify(TopicConversations)
		}

	case correlationTimeoutMsg:
		for kind, p := range e.correlations {
			if p.token == m.token {
				delete(e.correlations, kind)
				p.resolve(nil, ErrTimeout)
				return
			}
		}

	case guardExpiredMsg:
		e.clearGuard(m.key)
		e.rollbackIntent(m.key)

	case subscribeMsg:
		id := e.nextSub
		e.nextSub++
		e.subs[id] = subscriber{topic: m.topic, ch: m.ch}
		m.reply <- id

	case unsubscribeMsg:
		if sub, ok := e.subs[m.id]; ok {
			delete(e.subs, m.id)
			close(sub.ch)
		}

	case readMsg:
		m.fn()
		close(m.done)
	}
}

func (e *Engine) handleFrame(f wire.Frame) {
	switch f := f.(type) {

	case wire.FriendsList:
		e.clearGuard(guardKey(wire.KindGetFriendsList, ""))
		friends := make([]relationship.Friend, 0, len(f.Friends))
		for _, fr := range f.Friends {
			friends = append(friends, relationship.Friend{
				Name:         fr.Username,
				Icon:         fr.Icon,
				Status:       fr.Status,
				ActiveGameID: fr.ActiveGameID,
			})
		}
		e.rels.ApplyFriends(friends)
		e.notify(TopicFriends)

	case wire.FriendRequests:
		e.clearGuard(guardKey(wire.KindGetFriendRequests, ""))
		e.rels.ApplyIncoming(toRequests(f.Requests))
		e.notify(TopicRequests, TopicUnread)

	case wire.SentFriendRequests:
		e.clearGuard(guardKey(wire.KindGetSentFriendRequests, ""))
		e.rels.ApplyOutgoing(toRequests(f.Requests))
		e.notify(TopicRequests)

	case wire.FriendRequestSent:
		e.clearGuard(guardKey(wire.KindSendFriendRequest, f.Request.To))
		e.rels.ConfirmRequestSent(toRequest(f.Request))
		e.notify(TopicRequests)

	case wire.FriendRequestReceived:
		if e.rels.AddIncoming(toRequest(f.Request)) {
			e.notify(TopicRequests, TopicUnread)
		}

	case wire.FriendAdded:
		for _, r := range e.rels.Incoming() {
			if r.From == f.FriendName {
				e.clearGuard(guardKey(wire.KindAcceptFriendRequest, strconv.FormatInt(r.ID, 10)))
			}
		}
		e.rels.FriendAdded(f.FriendName)
		// the notice has no icon or presence; refresh the list for those
		e.fetchSnapshot(wire.GetFriendsList{}, "")
		e.notify(TopicFriends, TopicRequests, TopicUnread)

	case wire.FriendRemoved:
		e.clearGuard(guardKey(wire.KindRemoveFriend, f.FriendName))
		e.rels.FriendRemoved(f.FriendName)
		e.notify(TopicFriends)

	case wire.PlayerBlocked:
		e.clearGuard(guardKey(wire.KindBlockPlayer, f.BlockedName))
		e.rels.Blocked(f.BlockedName)
		e.notify(TopicFriends, TopicRequests, TopicUnread)

	case wire.PlayerUnblocked:
		e.clearGuard(guardKey(wire.KindUnblockPlayer, f.BlockedName))
		e.rels.Unblocked(f.BlockedName)
		e.notify(TopicFriends)

	case wire.BlockStatus:
		e.clearGuard(guardKey(wire.KindGetBlockStatus, f.PlayerName))
		e.rels.ApplyBlockStatus(f.PlayerName, f.BlockedByMe, f.BlockedByThem)
		e.notify(TopicFriends)

	case wire.ConversationsList:
		e.clearGuard(guardKey(wire.KindGetConversations, ""))
		e.convs.ApplySnapshot(toSummaries(f.Conversations))
		e.notify(TopicConversations, TopicUnread)

	case wire.ConversationMessages:
		e.clearGuard(guardKey(wire.KindGetConversation, f.OtherUsername))
		e.convs.ApplyHistory(f.OtherUsername, toMessages(f.Messages))
		e.notify(TopicConversations, TopicUnread)

	case wire.DirectMessageReceived:
		e.convs.AppendIncoming(toMessage(f.Message))
		e.notify(TopicConversations, TopicUnread)

	case wire.DirectMessageSent:
		if t, ok := e.echoTimers[f.Message.ClientToken]; ok {
			t.Stop()
			delete(e.echoTimers, f.Message.ClientToken)
		}
		e.convs.ConfirmOutgoing(toMessage(f.Message))
		e.notify(TopicConversations)

	case wire.MessagesMarkedRead:
		e.clearGuard(guardKey(wire.KindMarkMessagesRead, f.SenderUsername))
		// replaying the reset is safe; the transition is one-way
		e.convs.MarkRead(f.SenderUsername)
		e.notify(TopicConversations, TopicUnread)

	case wire.UnreadCount:
		e.clearGuard(guardKey(wire.KindGetUnreadCount, ""))
		e.convs.ApplyUnreadTotal(f.Count)
		e.notify(TopicUnread)

	case wire.OnlinePlayers:
		e.clearGuard(guardKey(wire.KindGetOnlinePlayers, ""))
		joined, left := e.presence.ApplySnapshot(toEntries(f.Players))
		if len(joined) > 0 || len(left) > 0 {
			e.log.Debug("presence delta",
				zap.Strings("joined", joined), zap.Strings("left", left))
		}
		e.notify(TopicPresence)

	case wire.UserProfileResponse:
		e.profiles[f.Profile.Username] = f.Profile
		e.resolveCorrelation(wire.KindUserProfileResponse, f, nil)

	case wire.UserProfileUpdated:
		if f.Success {
			e.resolveCorrelation(wire.KindUserProfileUpdated, f, nil)
		} else {
			e.resolveCorrelation(wire.KindUserProfileUpdated, nil, ErrRejected)
		}

	case wire.ErrorFrame:
		e.routeError(f)

	default:
		e.log.Warn("unhandled inbound frame")
	}
}

// routeError delivers a semantic rejection to the one caller it answers.
// The context tag names the request that failed; nothing is broadcast.
func (e *Engine) routeError(f wire.ErrorFrame) {
	switch wire.Kind(f.Context) {
	case wire.KindGetUserProfile:
		e.resolveCorrelation(wire.KindUserProfileResponse, nil, serverError(f))
		return
	case wire.KindUpdateUserProfile:
		e.resolveCorrelation(wire.KindUserProfileUpdated, nil, serverError(f))
		return
	}

	// for guarded intents the tag is the guard key; lift the guard so the
	// action can be retried, and revert whatever was applied optimistically
	if _, ok := e.inflight[f.Context]; ok {
		e.clearGuard(f.Context)
		e.rollbackIntent(f.Context)
	}
	e.log.Warn("server rejected request",
		zap.String("context", f.Context), zap.String("message", f.Message))
}

// rollbackIntent reverts the optimistic mutation behind a guard key that
// died without a confirmation. Only send_friend_request mutates a store
// before its confirmation arrives; the other guarded intents either apply
// nothing locally or apply one-way transitions that stand on their own.
func (e *Engine) rollbackIntent(key string) {
	if name, ok := strings.CutPrefix(key, string(wire.KindSendFriendRequest)+":"); ok {
		e.rels.RemoveOutgoing(name)
		e.notify(TopicRequests)
	}
}
