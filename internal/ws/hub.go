package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/victornm/quizduel/internal/auth"
	"github.com/victornm/quizduel/internal/presence"
)

// EventAnswerSubmit is the only inbound event; everything else on the wire is
// server-to-client.
const EventAnswerSubmit = "answer:submit"

const submitTimeout = 10 * time.Second

type (
	// Notification is the envelope of every message on the wire.
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	inbound struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}

	// AnswerSubmission is the payload of an inbound answer:submit.
	AnswerSubmission struct {
		QuizID     string `json:"quizId"`
		QuestionID string `json:"questionId"`
		Answer     string `json:"answer"`
	}
)

type SubmitAnswerRequest struct {
	SessionID  string
	UserID     string
	QuestionID string
	ChoiceID   string
}

// AnswerHandler consumes inbound answer submissions. The hub only knows this
// capability, not the orchestrator behind it.
type AnswerHandler interface {
	SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) error
}

type AnswerHandlerFunc func(ctx context.Context, req SubmitAnswerRequest) error

func (f AnswerHandlerFunc) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) error {
	return f(ctx, req)
}

type Config struct {
	Verifier *auth.Verifier
	Presence *presence.Registry
	Handler  AnswerHandler

	// CheckOrigin is handed to the websocket upgrader; nil allows any origin.
	CheckOrigin func(r *http.Request) bool
}

// Hub is the fan-out channel: it indexes live connections by user, groups
// users into rooms and broadcasts room-scoped events. Rooms are keyed by user
// ID rather than by connection, so membership survives a dropped connection
// and a reconnecting participant silently resumes receiving room events at
// the next broadcast.
type Hub struct {
	upgrader websocket.Upgrader
	verifier *auth.Verifier
	presence *presence.Registry
	handler  AnswerHandler

	mu    sync.RWMutex
	conns map[string]*client
	rooms map[string]map[string]struct{}
}

type client struct {
	userID string
	conn   *websocket.Conn
	mu     sync.Mutex // serializes writes, gorilla allows one writer at a time
}

func (c *client) write(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(n)
}

func NewHub(c Config) *Hub {
	checkOrigin := c.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		verifier: c.Verifier,
		presence: c.Presence,
		handler:  c.Handler,
		conns:    make(map[string]*client),
		rooms:    make(map[string]map[string]struct{}),
	}
}

// Serve upgrades the request after verifying the handshake token. A
// connection that fails verification is rejected before it joins anything.
// Every accepted connection is a member of its own per-user room, so users
// are addressable before any session room exists.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, err := h.verifier.Verify(handshakeToken(r))
	if err != nil {
		slog.ErrorContext(ctx, "ws: handshake rejected", "error", err)
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "ws: upgrade failed", "error", err)
		return
	}

	cl := &client{userID: claims.UserID, conn: conn}

	h.mu.Lock()
	if old, ok := h.conns[claims.UserID]; ok {
		old.conn.Close()
	}
	h.conns[claims.UserID] = cl
	h.joinLocked(userRoom(claims.UserID), claims.UserID)
	h.mu.Unlock()

	if err := h.presence.Add(context.WithoutCancel(ctx), presence.SetActive, claims.UserID, time.Now()); err != nil {
		slog.ErrorContext(ctx, "ws: register active presence failed",
			"user", claims.UserID,
			"error", err,
		)
	}

	slog.InfoContext(ctx, "ws: connected", "user", claims.UserID)

	h.readLoop(cl)

	// Only the connection still indexed owns the user's presence. A connection
	// replaced by a reconnect must not evict the live successor from the
	// active set, so the index check decides who removes presence.
	h.mu.Lock()
	owner := h.conns[claims.UserID] == cl
	if owner {
		delete(h.conns, claims.UserID)
	}
	h.mu.Unlock()

	if owner {
		if err := h.presence.Remove(context.Background(), presence.SetActive, claims.UserID); err != nil {
			slog.Error("ws: remove active presence failed",
				"user", claims.UserID,
				"error", err,
			)
		}
	}

	conn.Close()
	slog.Info("ws: disconnected", "user", claims.UserID)
}

func (h *Hub) readLoop(cl *client) {
	for {
		var msg inbound
		if err := cl.conn.ReadJSON(&msg); err != nil {
			return
		}

		if msg.Event != EventAnswerSubmit {
			slog.Warn("ws: unknown inbound event", "event", msg.Event, "user", cl.userID)
			continue
		}

		var sub AnswerSubmission
		if err := json.Unmarshal(msg.Data, &sub); err != nil {
			slog.Error("ws: malformed answer submission", "user", cl.userID, "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		err := h.handler.SubmitAnswer(ctx, SubmitAnswerRequest{
			SessionID:  sub.QuizID,
			UserID:     cl.userID,
			QuestionID: sub.QuestionID,
			ChoiceID:   sub.Answer,
		})
		cancel()
		if err != nil {
			slog.Error("ws: handle answer submission failed",
				"user", cl.userID,
				"session", sub.QuizID,
				"error", err,
			)
		}

		// The submission is echoed back on receipt regardless of how it
		// scored.
		if err := cl.write(Notification{Event: EventAnswerSubmit, Data: sub}); err != nil {
			slog.Error("ws: echo submission failed", "user", cl.userID, "error", err)
		}
	}
}

// JoinRoom adds the user to a room. The membership is recorded even when the
// user has no live connection (logged), so a later reconnect picks the room
// back up.
func (h *Hub) JoinRoom(room, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[userID]; !ok {
		slog.Warn("ws: joining room without a live connection", "room", room, "user", userID)
	}

	h.joinLocked(room, userID)
}

// CloseRoom drops the room and every membership in it. The orchestrator calls
// this when a session retires; per-user rooms are never closed.
func (h *Hub) CloseRoom(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, room)
}

func (h *Hub) joinLocked(room, userID string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]struct{})
	}
	h.rooms[room][userID] = struct{}{}
}

// Emit broadcasts the event to every room member with a live connection.
// Individual write failures are logged and skipped so one bad connection
// cannot starve the rest of the room.
func (h *Hub) Emit(eventName string, payload any, room string) error {
	if h.conns == nil {
		return fmt.Errorf("ws: hub is not initialized")
	}

	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[room]))
	for userID := range h.rooms[room] {
		if cl, ok := h.conns[userID]; ok {
			members = append(members, cl)
		}
	}
	h.mu.RUnlock()

	n := Notification{Event: eventName, Data: payload}
	for _, cl := range members {
		if err := cl.write(n); err != nil {
			slog.Error("ws: emit failed",
				"event", eventName,
				"room", room,
				"user", cl.userID,
				"error", err,
			)
		}
	}

	return nil
}

func userRoom(userID string) string {
	return "quiz:" + userID
}

func handshakeToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}

	return r.URL.Query().Get("token")
}
