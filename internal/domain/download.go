package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// QualityKind classifies what a caller asked for
type QualityKind string

const (
	QualityBest     QualityKind = "best"      // highest available, still bounded deeper in the chain
	QualityHeight   QualityKind = "height"    // explicit resolution ceiling
	QualityAudio    QualityKind = "audio"     // audio-only extraction
	QualityFormatID QualityKind = "format_id" // explicit tool format identifier
	QualityDefault  QualityKind = "default"   // unspecified, safe ceiling
)

// Quality is the parsed quality intent of a request
type Quality struct {
	Kind     QualityKind
	Height   int
	FormatID string
}

// DownloadRequest is the caller's intent. It is immutable once accepted.
type DownloadRequest struct {
	URL           string `json:"url"`
	Quality       string `json:"quality,omitempty"`   // "best", "audio", "720", "720p", ""
	Extension     string `json:"ext,omitempty"`       // target container, e.g. mp4, webm, mp3
	FormatID      string `json:"format_id,omitempty"` // explicit tool format id, wins over Quality
	Title         string `json:"title,omitempty"`     // only used for output naming
	CorrelationID string `json:"correlation_id,omitempty"`
	ExpectedSize  int64  `json:"expected_size,omitempty"` // optional size hint in bytes
	ClientID      string `json:"-"`                       // rate-limit identity supplied by transport
}

// NewCorrelationID generates a correlation id for requests that did not carry one
func NewCorrelationID() string {
	return uuid.New().String()
}

// audioExtensions are containers that imply audio-only extraction
var audioExtensions = map[string]bool{
	"mp3":  true,
	"m4a":  true,
	"aac":  true,
	"opus": true,
	"ogg":  true,
	"wav":  true,
	"flac": true,
}

// IsAudioExtension reports whether ext names an audio-only container
func IsAudioExtension(ext string) bool {
	return audioExtensions[NormalizeExtension(ext)]
}

// NormalizeExtension lowercases ext and strips a leading dot
func NormalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// ParseQuality interprets the request's quality fields
func (r DownloadRequest) ParseQuality() Quality {
	if id := strings.TrimSpace(r.FormatID); id != "" {
		return Quality{Kind: QualityFormatID, FormatID: id}
	}

	q := strings.ToLower(strings.TrimSpace(r.Quality))
	switch q {
	case "":
		if IsAudioExtension(r.Extension) {
			return Quality{Kind: QualityAudio}
		}
		return Quality{Kind: QualityDefault}
	case "best", "highest", "max":
		if IsAudioExtension(r.Extension) {
			return Quality{Kind: QualityAudio}
		}
		return Quality{Kind: QualityBest}
	case "audio", "audio-only", "audioonly", "bestaudio":
		return Quality{Kind: QualityAudio}
	}

	if height, err := strconv.Atoi(strings.TrimSuffix(q, "p")); err == nil && height > 0 {
		if IsAudioExtension(r.Extension) {
			return Quality{Kind: QualityAudio}
		}
		return Quality{Kind: QualityHeight, Height: height}
	}

	// Unknown tokens fall back to the safe default rather than failing the request
	return Quality{Kind: QualityDefault}
}

// WithDefaults returns a copy with a correlation id and a container filled in
func (r DownloadRequest) WithDefaults() DownloadRequest {
	if r.CorrelationID == "" {
		r.CorrelationID = NewCorrelationID()
	}
	r.Extension = NormalizeExtension(r.Extension)
	if r.Extension == "" {
		if r.ParseQuality().Kind == QualityAudio {
			r.Extension = "mp3"
		} else {
			r.Extension = "mp4"
		}
	}
	return r
}
