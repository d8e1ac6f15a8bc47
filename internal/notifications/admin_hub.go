package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"soundcheck/internal/middleware"
	"soundcheck/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const maxAdminConns = 256

// ErrAdminFeedFull is returned by Register when the connection limit is reached.
var ErrAdminFeedFull = errors.New("admin feed connection limit reached")

// AdminHub fans admin events out to every connected admin websocket.
type AdminHub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

func NewAdminHub() *AdminHub {
	return &AdminHub{clients: make(map[*Client]struct{})}
}

func (h *AdminHub) Name() string { return "admin feed" }

// Register adds a connection for an authenticated admin.
func (h *AdminHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errors.New("admin feed is shutting down")
	}
	if len(h.clients) >= maxAdminConns {
		return nil, ErrAdminFeedFull
	}

	client := NewClient(h, conn, userID)
	h.clients[client] = struct{}{}
	observability.AdminFeedConnections.Inc()
	return client, nil
}

func (h *AdminHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	observability.AdminFeedConnections.Dec()
}

// Count returns the number of connected clients.
func (h *AdminHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAll sends message to every connected admin.
func (h *AdminHub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for c := range h.clients {
		c.TrySend(data)
	}
}

// StartWiring forwards every message on the admin Redis channel to this hub.
func (h *AdminHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartAdminSubscriber(ctx, func(_ string, payload string) {
		h.BroadcastAll(payload)
	})
}

// Shutdown sends a close frame to every client and drops them.
func (h *AdminHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for client := range h.clients {
		if client.Conn != nil {
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				middleware.Logger.Debug("admin feed close message failed",
					slog.Uint64("user_id", uint64(client.UserID)),
					slog.String("error", err.Error()),
				)
			}
			_ = client.Conn.Close()
		}
		delete(h.clients, client)
		close(client.Send)
		observability.AdminFeedConnections.Dec()
	}
	return nil
}

// AdminPublisher delivers admin events across instances through Redis, or
// straight to the local hub when Redis is not configured.
type AdminPublisher struct {
	notifier *Notifier
	hub      *AdminHub
}

func NewAdminPublisher(n *Notifier, hub *AdminHub) *AdminPublisher {
	return &AdminPublisher{notifier: n, hub: hub}
}

// PublishAdminEvent is fire-and-forget; failures are logged.
func (p *AdminPublisher) PublishAdminEvent(ctx context.Context, eventType string, payload map[string]any) {
	msg, err := Event{Type: eventType, Payload: payload}.Encode()
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "encode admin event failed", slog.String("error", err.Error()))
		return
	}

	if p.notifier.Enabled() {
		if err := p.notifier.PublishAdmin(ctx, msg); err != nil {
			middleware.Logger.WarnContext(ctx, "publish admin event failed",
				slog.String("type", eventType),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if p.hub != nil {
		p.hub.BroadcastAll(msg)
	}
}
