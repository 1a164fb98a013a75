package app

import (
	"github.com/yourusername/media-fetch-go/internal/domain"
	"github.com/yourusername/media-fetch-go/pkg/logger"
)

// ToolTranscripts writes attempt transcripts into the multi-logger's tool log
type ToolTranscripts struct {
	multiLogger *logger.MultiLogger
}

// NewToolTranscripts creates a transcript opener backed by ml
func NewToolTranscripts(ml *logger.MultiLogger) *ToolTranscripts {
	return &ToolTranscripts{multiLogger: ml}
}

// OpenTranscript implements domain.TranscriptOpener
func (t *ToolTranscripts) OpenTranscript(correlationID string, attempt int, command []string) domain.Transcript {
	return t.multiLogger.OpenTranscript(correlationID, attempt, command)
}
