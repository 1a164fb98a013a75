package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/media-fetch-go/pkg/logger"
)

// LogHandler handles log-related requests
type LogHandler struct {
	logReader *logger.LogReader
}

// NewLogHandler creates a new log handler
func NewLogHandler(logsDir string) *LogHandler {
	return &LogHandler{
		logReader: logger.NewLogReader(logsDir),
	}
}

var jsonCategories = map[logger.LogCategory]bool{
	logger.CategoryFetch: true,
	logger.CategoryError: true,
}

// GetLogs handles GET /api/v1/logs/:category?date=YYYY-MM-DD&id=...&limit=N
func (h *LogHandler) GetLogs(c *gin.Context) {
	category := logger.LogCategory(c.Param("category"))
	if !jsonCategories[category] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}

	date, ok := parseDate(c)
	if !ok {
		return
	}

	entries, err := h.logReader.ReadLogs(category, date, c.Query("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"date":     date.Format("2006-01-02"),
		"count":    len(entries),
		"entries":  entries,
	})
}

// GetCategories handles GET /api/v1/logs/categories
func (h *LogHandler) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"categories": []string{
			string(logger.CategoryFetch),
			string(logger.CategoryError),
			string(logger.CategoryTool),
		},
	})
}

// GetTranscript handles GET /api/v1/logs/transcripts/:id as plain text
func (h *LogHandler) GetTranscript(c *gin.Context) {
	date, ok := parseDate(c)
	if !ok {
		return
	}

	transcript, err := h.logReader.ReadTranscript(c.Param("id"), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read transcript"})
		return
	}
	if transcript == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no transcript for this id"})
		return
	}
	c.String(http.StatusOK, transcript)
}

// ExportLogs handles GET /api/v1/logs/:category/export
func (h *LogHandler) ExportLogs(c *gin.Context) {
	category := logger.LogCategory(c.Param("category"))
	if !jsonCategories[category] && category != logger.CategoryTool {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}

	date, ok := parseDate(c)
	if !ok {
		return
	}

	filename := string(category) + "-" + date.Format("20060102") + ".log"
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", "application/octet-stream")

	c.File(h.logReader.GetLogPath(category, date))
}

// parseDate reads ?date=YYYY-MM-DD, defaulting to today; it answers 400 itself
func parseDate(c *gin.Context) (time.Time, bool) {
	dateStr := c.Query("date")
	if dateStr == "" {
		return time.Now(), true
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, use YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}
