package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/media-fetch-go/api/middleware"
	"github.com/yourusername/media-fetch-go/internal/app"
	"github.com/yourusername/media-fetch-go/internal/domain"
	"go.uber.org/zap"
)

// StatusClientClosedRequest is returned when the caller cancelled the fetch
const StatusClientClosedRequest = 499

// FetchHandler handles fetch requests
type FetchHandler struct {
	service *app.FetchService
	logger  *zap.Logger
}

// NewFetchHandler creates a new fetch handler
func NewFetchHandler(service *app.FetchService, logger *zap.Logger) *FetchHandler {
	return &FetchHandler{
		service: service,
		logger:  logger,
	}
}

// FetchRequest represents a request to fetch a media URL
type FetchRequest struct {
	URL           string `json:"url" binding:"required"`
	Quality       string `json:"quality"`
	Extension     string `json:"ext"`
	FormatID      string `json:"format_id"`
	Title         string `json:"title"`
	CorrelationID string `json:"correlation_id"`
	ExpectedSize  int64  `json:"expected_size"`
}

// ErrorResponse is the body of every failed fetch
type ErrorResponse struct {
	Error         string           `json:"error"`
	Kind          domain.ErrorKind `json:"kind,omitempty"`
	Suggestion    string           `json:"suggestion,omitempty"`
	Attempts      int              `json:"attempts,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
}

// Fetch handles POST /api/v1/fetch. The artifact is streamed as the response body.
func (h *FetchHandler) Fetch(c *gin.Context) {
	var body FetchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	req := domain.DownloadRequest{
		URL:           body.URL,
		Quality:       body.Quality,
		Extension:     body.Extension,
		FormatID:      body.FormatID,
		Title:         body.Title,
		CorrelationID: body.CorrelationID,
		ExpectedSize:  body.ExpectedSize,
		ClientID:      c.ClientIP(),
	}.WithDefaults()

	// Known before the body starts so the caller can cancel or poll progress
	c.Header(middleware.CorrelationHeader, req.CorrelationID)

	delivery, err := h.service.Fetch(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, req.CorrelationID, err)
		return
	}
	defer delivery.Stream.Close()

	c.Header("Content-Type", delivery.Stream.ContentType())
	c.Header("Content-Disposition", contentDisposition(delivery.Stream.Filename()))
	c.Header("Content-Length", strconv.FormatInt(delivery.Stream.Size(), 10))
	if delivery.Artifact.Warning != "" {
		c.Header("X-Fetch-Warning", delivery.Artifact.Warning)
	}
	c.Status(http.StatusOK)

	written, err := delivery.Stream.WriteTo(c.Writer)
	if err != nil {
		h.logger.Info("Transfer stopped",
			zap.String("id", req.CorrelationID),
			zap.Int64("bytes", written),
			zap.Error(err))
	}
}

// Cancel handles POST /api/v1/fetch/:id/cancel
func (h *FetchHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !h.service.Cancel(id) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no active fetch", CorrelationID: id})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling", "correlation_id": id})
}

func (h *FetchHandler) writeError(c *gin.Context, id string, err error) {
	if domain.IsCancelled(err) {
		c.Status(StatusClientClosedRequest)
		return
	}
	if errors.Is(err, app.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), CorrelationID: id})
		return
	}
	if errors.Is(err, domain.ErrAlreadyActive) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "a fetch with this correlation id is already running", CorrelationID: id})
		return
	}

	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		h.logger.Error("Unexpected fetch error", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", CorrelationID: id})
		return
	}

	c.JSON(statusForKind(fetchErr.Kind), ErrorResponse{
		Error:         fetchErr.Message,
		Kind:          fetchErr.Kind,
		Suggestion:    fetchErr.Suggestion,
		Attempts:      fetchErr.Attempts,
		CorrelationID: id,
	})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindFormatUnavailable:
		return http.StatusUnprocessableEntity
	case domain.KindProcessError:
		return http.StatusInternalServerError
	case domain.KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusBadGateway
	}
}
