package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/assistant"
	"github.com/medprompt/backend/pkg/logger"
)

type WebSocketHandler struct {
	service *assistant.Service
	timeout time.Duration
}

func NewWebSocketHandler(service *assistant.Service, timeout time.Duration) *WebSocketHandler {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &WebSocketHandler{
		service: service,
		timeout: timeout,
	}
}

type wsMessage struct {
	Type    string   `json:"type"`
	Content string   `json:"content"`
	History []string `json:"history"`
}

// HandleConnection serves one chat session. Each "chat" message is answered
// with a "status" frame, a run of "chunk" frames and a closing "complete".
// The session keeps its own transcript unless the client sends history.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	var transcript []string
	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		if msg.Type != "chat" && msg.Type != "query" {
			continue
		}

		history := transcript
		if msg.History != nil {
			history = msg.History
		}

		reply, err := h.streamResponse(c, history, msg.Content)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process message")
			continue
		}

		transcript = append(history, "User: "+msg.Content, "Assistant: "+reply)
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, history []string, message string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	start := time.Now()
	if err := h.sendChunk(c, "status", "Thinking..."); err != nil {
		return "", err
	}

	reply, err := h.service.StreamChat(ctx, history, message, func(delta string) error {
		return h.sendChunk(c, "chunk", delta)
	})
	if err != nil {
		return "", err
	}

	err = c.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"message_id": uuid.New().String(),
		"latency_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		return "", err
	}

	return reply, nil
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
