package handler

import (
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/internal/pkg/serverutils"
	internalWS "gemini-chat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type SessionEventsHandler struct {
	hub    *internalWS.Hub
	logger logger.ILogger
}

func NewSessionEventsHandler(hub *internalWS.Hub, log logger.ILogger) *SessionEventsHandler {
	return &SessionEventsHandler{
		hub:    hub,
		logger: log,
	}
}

// ServeWs subscribes the browser to its session's events.
func (h *SessionEventsHandler) ServeWs(c *fiber.Ctx) error {
	// Priority 1: the session cookie (same origin)
	sessionId := serverutils.SessionIdFromCookie(c)

	// Priority 2: query param (tooling)
	if sessionId == "" {
		if _, err := uuid.Parse(c.Query("session_id")); err == nil {
			sessionId = c.Query("session_id")
		}
	}

	if sessionId == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing session"))
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("SessionEventsHandler", "Starting WebSocket session", map[string]interface{}{"session_id": sessionId})
			internalWS.ServeWs(h.hub, conn, sessionId)
			h.logger.Info("SessionEventsHandler", "WebSocket session ended", map[string]interface{}{"session_id": sessionId})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// RegisterRoutes must run before the session middleware is attached: a websocket must not hold
// the session lock for its lifetime.
func (h *SessionEventsHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws", h.ServeWs)
}
