// Package hub is the bidirectional WebSocket boundary. Each connection is
// keyed by the caller's authenticated identity: notifications for that
// identity are pumped outbound, and inbound frames carry chat sends routed
// to the message service.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/aura-health/aura/internal/domain/message"
	"github.com/aura-health/aura/internal/domain/notification"
	"github.com/aura-health/aura/internal/platform/auth"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ClientMessage is an inbound frame from a connected client.
type ClientMessage struct {
	Action      string `json:"action"`
	RecipientID string `json:"recipient_id,omitempty"`
	Content     string `json:"content,omitempty"`
}

// errorFrame is sent back when an inbound frame cannot be handled.
type errorFrame struct {
	Error string `json:"error"`
}

// sendBuffer bounds the per-session outbound queue; enqueue blocks (rather
// than drops) when it fills, since the notification stream upstream is
// already unbounded.
const sendBuffer = 256

type session struct {
	userID string
	conn   Conn
	cancel context.CancelFunc
	send   chan []byte
}

func (s *session) enqueue(ctx context.Context, data []byte) {
	select {
	case s.send <- data:
	case <-ctx.Done():
	}
}

// Hub tracks live sessions per identity and bridges them to the
// notification and message services.
type Hub struct {
	notifications *notification.Service
	messages      *message.Service
	logger        zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]map[*session]struct{}
}

func New(notifications *notification.Service, messages *message.Service, logger zerolog.Logger) *Hub {
	return &Hub{
		notifications: notifications,
		messages:      messages,
		logger:        logger.With().Str("component", "hub").Logger(),
		sessions:      make(map[string]map[*session]struct{}),
	}
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[s.userID] == nil {
		h.sessions[s.userID] = make(map[*session]struct{})
	}
	h.sessions[s.userID][s] = struct{}{}
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.sessions[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.userID)
		}
	}
}

// SessionCount returns the number of live connections for an identity.
func (h *Hub) SessionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// Serve runs one connection until the client disconnects or ctx ends. It
// subscribes the identity to its notification stream, forwards it into the
// session's send queue, and routes inbound chat sends. All outbound frames
// go through a single writer goroutine; gorilla/websocket allows at most
// one concurrent writer per connection. The subscription is released on
// return.
func (h *Hub) Serve(ctx context.Context, userID string, conn Conn) error {
	sctx, cancel := context.WithCancel(ctx)
	s := &session{userID: userID, conn: conn, cancel: cancel, send: make(chan []byte, sendBuffer)}
	h.register(s)
	defer func() {
		cancel()
		h.unregister(s)
		conn.Close()
	}()

	stream := h.notifications.Subscribe(sctx, userID)

	go h.forward(sctx, s, stream)
	go h.writePump(sctx, s)
	h.readPump(sctx, s)
	return nil
}

// forward marshals the notification stream into the session's send queue.
func (h *Hub) forward(ctx context.Context, s *session, stream <-chan *notification.Notification) {
	// Stream closes when the session context is canceled.
	for n := range stream {
		data, err := json.Marshal(n)
		if err != nil {
			continue
		}
		s.enqueue(ctx, data)
	}
}

// writePump is the only goroutine that writes the connection.
func (h *Hub) writePump(ctx context.Context, s *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-s.send:
			if err := s.conn.WriteMessage(gorillawebsocket.TextMessage, data); err != nil {
				s.cancel()
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, s *session) {
	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "send":
			if _, err := h.messages.Send(ctx, s.userID, msg.RecipientID, msg.Content); err != nil {
				h.reply(ctx, s, errorFrame{Error: err.Error()})
			}
		default:
			h.reply(ctx, s, errorFrame{Error: "unknown action"})
		}
	}
}

// reply queues an error frame for the writer; it never touches the
// connection directly.
func (h *Hub) reply(ctx context.Context, s *session, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.enqueue(ctx, data)
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced at the edge.
	},
}

// Handler exposes the hub over an Echo route.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.Connect)
}

// Connect upgrades the request and serves it until disconnect.
func (h *Handler) Connect(c echo.Context) error {
	userID := auth.UserID(c)
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	return h.hub.Serve(c.Request().Context(), userID, &gorillaConn{ws})
}

type gorillaConn struct {
	conn *gorillawebsocket.Conn
}

func (g *gorillaConn) ReadMessage() (int, []byte, error) {
	return g.conn.ReadMessage()
}

func (g *gorillaConn) WriteMessage(messageType int, data []byte) error {
	return g.conn.WriteMessage(messageType, data)
}

func (g *gorillaConn) Close() error {
	return g.conn.Close()
}
