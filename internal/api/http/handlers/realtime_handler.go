package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskline/helpdesk-service/internal/auth"
	"github.com/deskline/helpdesk-service/internal/domain"
	"github.com/deskline/helpdesk-service/internal/realtime"
)

// RealtimeHandler upgrades authenticated requests to websocket subscribers.
type RealtimeHandler struct {
	hub        *realtime.Hub
	bufferSize int
	logger     *zap.Logger
}

// NewRealtimeHandler constructs handler.
func NewRealtimeHandler(hub *realtime.Hub, bufferSize int, logger *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, bufferSize: bufferSize, logger: logger}
}

// RequireUpgrade rejects plain HTTP requests on the websocket route.
func (h *RealtimeHandler) RequireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// Serve GET /ws. Authentication runs before the upgrade, so the identity is
// already in the request locals.
func (h *RealtimeHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		identity, ok := conn.Locals(auth.IdentityLocalsKey).(domain.Identity)
		if !ok {
			_ = conn.Close()
			return
		}
		id := uuid.NewString()
		h.logger.Info("realtime client connected",
			zap.String("connection_id", id),
			zap.String("subject_id", identity.SubjectID),
			zap.String("role", string(identity.Role)))
		realtime.NewClient(id, identity, h.hub, conn, h.bufferSize, h.logger).Serve()
		h.logger.Info("realtime client disconnected", zap.String("connection_id", id))
	})
}
