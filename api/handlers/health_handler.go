package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by /health
const Version = "1.0.0"

// ReadinessCheck reports why the server cannot take fetches, or nil
type ReadinessCheck func() error

// HealthHandler handles health check requests
type HealthHandler struct {
	active func() int
	ready  ReadinessCheck
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(active func() int, ready ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		active: active,
		ready:  ready,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Fetches struct {
		Active int `json:"active"`
	} `json:"fetches"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	if h.active != nil {
		response.Fetches.Active = h.active()
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
