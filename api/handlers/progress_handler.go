package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/media-fetch-go/internal/engine"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Progress carries no secrets; any origin may watch
	},
}

// ProgressHandler serves progress reads for in-flight fetches
type ProgressHandler struct {
	registry *engine.Registry
	logger   *zap.Logger
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(registry *engine.Registry, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		registry: registry,
		logger:   logger,
	}
}

// GetProgress handles GET /api/v1/progress/:id
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	id := c.Param("id")
	event, ok := h.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no progress for this id", "correlation_id": id})
		return
	}
	c.JSON(http.StatusOK, event)
}

// Watch handles GET /api/v1/progress/:id/ws. Events are pushed as JSON until
// the fetch's entry is cleared or the client leaves.
func (h *ProgressHandler) Watch(c *gin.Context) {
	id := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := h.registry.Subscribe(id)
	defer cancel()

	h.logger.Debug("Progress watcher connected",
		zap.String("id", id),
		zap.String("remote_addr", c.Request.RemoteAddr))

	// Reads only detect the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				h.closeNormally(conn, "fetch finished")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("Failed to send progress", zap.String("id", id), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func (h *ProgressHandler) closeNormally(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
