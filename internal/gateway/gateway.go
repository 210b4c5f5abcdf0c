package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/brisca-live/social-client/internal/wire"
)

// Gateway is a loopback server speaking the social wire contract over a
// websocket, backed by an in-memory world. It exists so the client stack
// can be exercised end to end without a real backend.
type Gateway struct {
	log    *zap.Logger
	secret []byte
	world  *world

	mu    sync.Mutex
	conns map[string]*client
}

type client struct {
	username string
	connID   string
	out      chan []byte
}

func New(secret string, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		log:    log,
		secret: []byte(secret),
		world:  newWorld(),
		conns:  make(map[string]*client),
	}
}

// MintToken signs a bearer token the gateway will accept for username.
func MintToken(secret, username string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", g.handleWS)
	return r
}

func (g *Gateway) authenticate(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == "" || raw == header {
		return "", false
	}
	tok, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return "", false
	}
	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	username, ok := g.authenticate(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	c := &client{
		username: username,
		connID:   newConnID(),
		out:      make(chan []byte, 32),
	}

	g.mu.Lock()
	g.world.ensureProfile(username)
	g.conns[username] = c
	g.mu.Unlock()
	g.broadcastPresence()

	defer func() {
		g.mu.Lock()
		// a reconnect may have replaced us already
		if cur, ok := g.conns[username]; ok && cur == c {
			delete(g.conns, username)
		}
		g.mu.Unlock()
		g.broadcastPresence()
	}()

	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		// c.out is never closed; the context ends the writer when the
		// handler returns
		for {
			select {
			case payload := <-c.out:
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				err := conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			case <-writeCtx.Done():
				return
			}
		}
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.sendError(username, "", "bad json")
			continue
		}
		g.dispatch(username, env)
	}
}

// send encodes a frame and queues it for username's connection. A full
// queue drops the frame rather than stalling the world lock.
func (g *Gateway) send(username string, kind wire.Kind, payload any) {
	data, err := wire.Encode(kind, payload)
	if err != nil {
		g.log.Error("encode frame", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	g.mu.Lock()
	c, ok := g.conns[username]
	g.mu.Unlock()
	if !ok {
		return
	}
	select {
	case c.out <- data:
	default:
		g.log.Warn("outbox full, dropping frame",
			zap.String("user", username), zap.String("kind", string(kind)))
	}
}

func (g *Gateway) sendError(username, context, message string) {
	g.send(username, wire.KindError, wire.ErrorFrame{Context: context, Message: message})
}

func (g *Gateway) broadcastPresence() {
	g.mu.Lock()
	entries := make([]wire.PresenceEntry, 0, len(g.conns))
	targets := make([]string, 0, len(g.conns))
	for name, c := range g.conns {
		entries = append(entries, wire.PresenceEntry{
			Player:       name,
			ConnectionID: c.connID,
			Status:       wire.PresenceInLobby,
		})
		targets = append(targets, name)
	}
	g.mu.Unlock()

	for _, name := range targets {
		g.send(name, wire.KindOnlinePlayers, wire.OnlinePlayers{Players: entries})
	}
}

func (g *Gateway) dispatch(username string, env wire.Envelope) {
	switch env.Event {
	case wire.KindGetFriendsList:
		g.sendFriendsList(username)

	case wire.KindGetFriendRequests:
		g.mu.Lock()
		reqs := g.world.pendingFor(username, true)
		g.mu.Unlock()
		g.send(username, wire.KindFriendRequests, wire.FriendRequests{Requests: reqs})

	case wire.KindGetSentFriendRequests:
		g.mu.Lock()
		reqs := g.world.pendingFor(username, false)
		g.mu.Unlock()
		g.send(username, wire.KindSentFriendRequests, wire.SentFriendRequests{Requests: reqs})

	case wire.KindSendFriendRequest:
		var p wire.SendFriendRequest
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		req, ok := g.world.addRequest(username, p.ToPlayer)
		suppressed := g.world.blocked(p.ToPlayer, username)
		g.mu.Unlock()
		if !ok {
			g.sendError(username, guardContext(wire.KindSendFriendRequest, p.ToPlayer), "request not allowed")
			return
		}
		g.send(username, wire.KindFriendRequestSent, wire.FriendRequestSent{Request: req})
		if !suppressed {
			g.send(p.ToPlayer, wire.KindFriendRequestReceived, wire.FriendRequestReceived{Request: req})
		}

	case wire.KindAcceptFriendRequest:
		var p wire.AcceptFriendRequest
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		req, ok := g.world.resolveRequest(p.RequestID, true)
		g.mu.Unlock()
		if !ok {
			g.sendError(username, guardContext(wire.KindAcceptFriendRequest, strconv.FormatInt(p.RequestID, 10)), "no such request")
			return
		}
		g.send(req.To, wire.KindFriendAdded, wire.FriendAdded{FriendName: req.From})
		g.send(req.From, wire.KindFriendAdded, wire.FriendAdded{FriendName: req.To})

	case wire.KindRejectFriendRequest:
		var p wire.RejectFriendRequest
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		g.world.resolveRequest(p.RequestID, false)
		g.mu.Unlock()

	case wire.KindRemoveFriend:
		var p wire.RemoveFriend
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		removed := g.world.removeFriend(username, p.FriendName)
		g.mu.Unlock()
		if removed {
			g.send(username, wire.KindFriendRemoved, wire.FriendRemoved{FriendName: p.FriendName})
			g.send(p.FriendName, wire.KindFriendRemoved, wire.FriendRemoved{FriendName: username})
		}

	case wire.KindBlockPlayer:
		var p wire.BlockPlayer
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		g.world.block(username, p.BlockedName)
		g.mu.Unlock()
		g.send(username, wire.KindPlayerBlocked, wire.PlayerBlocked{BlockedName: p.BlockedName})

	case wire.KindUnblockPlayer:
		var p wire.UnblockPlayer
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		g.world.unblock(username, p.BlockedName)
		g.mu.Unlock()
		g.send(username, wire.KindPlayerUnblocked, wire.PlayerUnblocked{BlockedName: p.BlockedName})

	case wire.KindGetBlockStatus:
		var p wire.GetBlockStatus
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		status := wire.BlockStatus{
			PlayerName:    p.PlayerName,
			BlockedByMe:   g.world.blocked(username, p.PlayerName),
			BlockedByThem: g.world.blocked(p.PlayerName, username),
		}
		g.mu.Unlock()
		g.send(username, wire.KindBlockStatus, status)

	case wire.KindGetConversations:
		g.mu.Lock()
		convs := g.world.conversationsOf(username)
		g.mu.Unlock()
		g.send(username, wire.KindConversationsList, wire.ConversationsList{Conversations: convs})

	case wire.KindGetConversation:
		var p wire.GetConversation
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		msgs := g.world.page(username, p.OtherUsername, p.Limit, p.Offset)
		g.mu.Unlock()
		g.send(username, wire.KindConversationMessages, wire.ConversationMessages{
			OtherUsername: p.OtherUsername,
			Messages:      msgs,
		})

	case wire.KindSendDirectMessage:
		var p wire.SendDirectMessage
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		suppressed := g.world.blocked(p.RecipientUsername, username)
		msg := g.world.appendMessage(username, p.RecipientUsername, p.MessageText, p.ClientToken)
		g.mu.Unlock()
		g.send(username, wire.KindDirectMessageSent, wire.DirectMessageSent{Message: msg})
		if !suppressed {
			delivered := msg
			delivered.ClientToken = ""
			g.send(p.RecipientUsername, wire.KindDirectMessageReceived, wire.DirectMessageReceived{
				SenderUsername: username,
				Message:        delivered,
			})
		}

	case wire.KindMarkMessagesRead:
		var p wire.MarkMessagesRead
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		g.world.markRead(username, p.SenderUsername)
		g.mu.Unlock()
		g.send(username, wire.KindMessagesMarkedRead, wire.MessagesMarkedRead{SenderUsername: p.SenderUsername})

	case wire.KindGetUnreadCount:
		g.mu.Lock()
		n := g.world.unreadTotal(username)
		g.mu.Unlock()
		g.send(username, wire.KindUnreadCount, wire.UnreadCount{Count: n})

	case wire.KindGetOnlinePlayers:
		g.mu.Lock()
		entries := make([]wire.PresenceEntry, 0, len(g.conns))
		for name, c := range g.conns {
			entries = append(entries, wire.PresenceEntry{
				Player:       name,
				ConnectionID: c.connID,
				Status:       wire.PresenceInLobby,
			})
		}
		g.mu.Unlock()
		g.send(username, wire.KindOnlinePlayers, wire.OnlinePlayers{Players: entries})

	case wire.KindGetUserProfile:
		var p wire.GetUserProfile
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		prof, ok := g.world.profiles[p.Username]
		g.mu.Unlock()
		if !ok {
			g.sendError(username, string(wire.KindGetUserProfile), "no such player")
			return
		}
		g.send(username, wire.KindUserProfileResponse, wire.UserProfileResponse{Profile: prof})

	case wire.KindUpdateUserProfile:
		var p wire.UpdateUserProfile
		if !g.decode(username, env, &p) {
			return
		}
		g.mu.Lock()
		prof := g.world.profiles[username]
		prof.Username = username
		prof.Icon = p.Icon
		prof.Tagline = p.Tagline
		g.world.profiles[username] = prof
		g.mu.Unlock()
		g.send(username, wire.KindUserProfileUpdated, wire.UserProfileUpdated{Success: true})

	default:
		g.sendError(username, string(env.Event), "unknown event")
	}
}

func (g *Gateway) sendFriendsList(username string) {
	g.mu.Lock()
	names := g.world.friendsOf(username)
	friends := make([]wire.FriendWithStatus, 0, len(names))
	for _, name := range names {
		f := wire.FriendWithStatus{
			Username: name,
			Icon:     g.world.profiles[name].Icon,
		}
		if _, online := g.conns[name]; online {
			f.Status = wire.PresenceInLobby
		}
		friends = append(friends, f)
	}
	g.mu.Unlock()
	g.send(username, wire.KindFriendsList, wire.FriendsList{Friends: friends})
}

func (g *Gateway) decode(username string, env wire.Envelope, dst any) bool {
	if err := json.Unmarshal(env.Data, dst); err != nil {
		g.sendError(username, string(env.Event), "malformed payload")
		return false
	}
	return true
}

func newConnID() string { return uuid.NewString() }

// guardContext mirrors the client's per-action dedupe key so rejections
// land on the caller that issued the request.
func guardContext(kind wire.Kind, target string) string {
	return string(kind) + ":" + target
}
