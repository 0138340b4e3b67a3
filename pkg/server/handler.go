// Package server exposes the chat orchestrator over HTTP, Server-Sent Events
// and WebSocket.
package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/andrew/rag-chat/pkg/chat"
	"github.com/andrew/rag-chat/pkg/models"
)

// Handler handles chat HTTP requests.
type Handler struct {
	chat     *chat.Orchestrator
	upgrader websocket.Upgrader
}

// NewHandler creates a new chat handler.
func NewHandler(orchestrator *chat.Orchestrator) *Handler {
	return &Handler{
		chat: orchestrator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/health", h.Health)
	api.POST("/chat", h.Chat)
	api.GET("/chat/ws", h.ChatSocket)
	api.GET("/sessions/:session_id/messages", h.GetSessionMessages)
	api.DELETE("/sessions/:session_id", h.ClearSession)
	api.DELETE("/sessions", h.ClearAllSessions)
}

// New builds an Echo server with the standard middleware and h's routes.
func New(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	h.RegisterRoutes(e)
	return e
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// errorStatus maps orchestrator errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrRetrieval), errors.Is(err, chat.ErrCompletion):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	if errors.Is(err, chat.ErrEmptyInput) {
		return "No message provided"
	}
	return err.Error()
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// GetSessionMessages returns a session's stored history.
// GET /api/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	sessionID := c.Param("session_id")

	messages, err := h.chat.History(c.Request().Context(), sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	history := models.Chat{ID: sessionID, Messages: messages}
	if len(messages) > 0 {
		history.Created = messages[0].Timestamp
		history.Updated = messages[len(messages)-1].Timestamp
	}
	return c.JSON(http.StatusOK, history)
}

// ClearSession removes a session's history.
// DELETE /api/sessions/:session_id
func (h *Handler) ClearSession(c echo.Context) error {
	if err := h.chat.ClearSession(c.Request().Context(), c.Param("session_id")); err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearAllSessions removes every session's history.
// DELETE /api/sessions
func (h *Handler) ClearAllSessions(c echo.Context) error {
	if err := h.chat.ClearAllSessions(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}
