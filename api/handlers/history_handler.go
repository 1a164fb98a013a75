package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/media-fetch-go/internal/domain"
)

// HistoryHandler serves the fetch history
type HistoryHandler struct {
	repo domain.HistoryRepository
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(repo domain.HistoryRepository) *HistoryHandler {
	return &HistoryHandler{repo: repo}
}

// List handles GET /api/v1/history
func (h *HistoryHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	records, err := h.repo.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// Stats handles GET /api/v1/history/stats
func (h *HistoryHandler) Stats(c *gin.Context) {
	stats, err := h.repo.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
