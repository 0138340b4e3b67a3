package server

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	socketWriteWait = 10 * time.Second
	socketReadLimit = 64 * 1024
	frameTypeChunk  = "chunk"
	frameTypeDone   = "done"
	frameTypeError  = "error"
)

// SocketFrame is sent by the server for every event on the chat socket.
type SocketFrame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ChatSocket streams replies over a WebSocket. Each client message is a
// ChatRequest; the server answers with chunk frames followed by a done or
// error frame. The connection stays open for further turns.
// GET /api/chat/ws
func (h *Handler) ChatSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(socketReadLimit)

	ctx := c.Request().Context()
	for {
		var req ChatRequest
		if err := ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket read error: %v", err)
			}
			return nil
		}

		if strings.TrimSpace(req.Message) == "" {
			if err := h.writeFrame(ws, SocketFrame{Type: frameTypeError, SessionID: req.SessionID, Error: "No message provided"}); err != nil {
				return nil
			}
			continue
		}
		if req.SessionID == "" {
			req.SessionID = uuid.New().String()
		}

		opts, err := req.respondOptions()
		if err != nil {
			if err := h.writeFrame(ws, SocketFrame{Type: frameTypeError, SessionID: req.SessionID, Error: err.Error()}); err != nil {
				return nil
			}
			continue
		}

		seq, err := h.chat.RespondStream(ctx, req.SessionID, req.Message, opts...)
		if err != nil {
			if err := h.writeFrame(ws, SocketFrame{Type: frameTypeError, SessionID: req.SessionID, Error: errorMessage(err)}); err != nil {
				return nil
			}
			continue
		}

		final := SocketFrame{Type: frameTypeDone, SessionID: req.SessionID}
		for fragment, err := range seq {
			if err != nil {
				final = SocketFrame{Type: frameTypeError, SessionID: req.SessionID, Error: err.Error()}
				break
			}
			if err := h.writeFrame(ws, SocketFrame{Type: frameTypeChunk, Text: fragment}); err != nil {
				return nil
			}
		}
		if err := h.writeFrame(ws, final); err != nil {
			return nil
		}
	}
}

func (h *Handler) writeFrame(ws *websocket.Conn, frame SocketFrame) error {
	ws.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return ws.WriteJSON(frame)
}
