package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/andrew/rag-chat/pkg/chat"
	"github.com/andrew/rag-chat/pkg/logging"
	"github.com/andrew/rag-chat/pkg/models"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string           `json:"message"`
	SessionID string           `json:"session_id,omitempty"`
	Stream    bool             `json:"stream,omitempty"`
	Messages  []models.Message `json:"messages,omitempty"`
}

// ChatResponse is the reply to a non-streaming chat request.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// respondOptions turns client-supplied history into an override. An empty
// list means the session store is used.
func (r *ChatRequest) respondOptions() ([]chat.RespondOption, error) {
	if len(r.Messages) == 0 {
		return nil, nil
	}
	for i, msg := range r.Messages {
		if !msg.Role.Valid() {
			return nil, fmt.Errorf("messages[%d]: invalid role %q", i, msg.Role)
		}
	}
	return []chat.RespondOption{chat.WithHistory(r.Messages)}, nil
}

// Chat answers one user turn, streaming the reply as Server-Sent Events when
// requested.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No message provided"})
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	opts, err := req.respondOptions()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	if req.Stream {
		return h.streamChat(c, &req, opts)
	}

	reply, err := h.chat.Respond(c.Request().Context(), req.SessionID, req.Message, opts...)
	if err != nil {
		return c.JSON(errorStatus(err), ErrorResponse{Error: errorMessage(err)})
	}
	return c.JSON(http.StatusOK, ChatResponse{Response: reply, SessionID: req.SessionID})
}

func (h *Handler) streamChat(c echo.Context, req *ChatRequest, opts []chat.RespondOption) error {
	ctx := c.Request().Context()

	// Failures before the first byte still get a proper status code.
	seq, err := h.chat.RespondStream(ctx, req.SessionID, req.Message, opts...)
	if err != nil {
		return c.JSON(errorStatus(err), ErrorResponse{Error: errorMessage(err)})
	}

	res := c.Response()
	res.Header().Set("Content-Type", "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Session-ID", req.SessionID)
	res.WriteHeader(http.StatusOK)

	for fragment, err := range seq {
		if err != nil {
			logging.Warnf("stream for session %s failed: %v", req.SessionID, err)
			writeEvent(res, "error", jsonString(ErrorResponse{Error: err.Error()}))
			res.Flush()
			return nil
		}
		if writeErr := writeEvent(res, "", fragment); writeErr != nil {
			// Client went away; leaving the loop abandons the turn.
			return nil
		}
		res.Flush()
	}

	writeEvent(res, "done", jsonString(ChatResponse{SessionID: req.SessionID}))
	res.Flush()
	return nil
}

// writeEvent writes one SSE event. Multi-line data is split across several
// data fields so newlines in the model output survive framing.
func writeEvent(w http.ResponseWriter, event, data string) error {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	_, err := w.Write([]byte(b.String()))
	return err
}

func jsonString(v interface{}) string {
	data, _ := json.Marshal(v)
	return string(data)
}
