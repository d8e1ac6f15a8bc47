package server

import (
	"log/slog"

	"soundcheck/internal/middleware"
	"soundcheck/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// AdminFeedHandler handles GET /api/ws/admin, streaming registration events
// to connected admins. Must run after ConsoleAuthRequired and AdminRequired.
func (s *Server) AdminFeedHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(uint)
		if !ok {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.adminHub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("admin feed registration refused",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()),
			)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		if hello, err := (notifications.Event{
			Type:    "connected",
			Payload: map[string]any{"hub": s.adminHub.Name()},
		}).Encode(); err == nil {
			client.TrySend([]byte(hello))
		}

		middleware.Logger.Info("admin feed connected", slog.Uint64("user_id", uint64(userID)))
		go client.WritePump()
		client.ReadPump()
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return upgrade(c)
	}
}
