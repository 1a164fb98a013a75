package domain

import "time"

// Phase tags a progress event
type Phase string

const (
	PhasePreparing       Phase = "preparing"
	PhaseExtractingInfo  Phase = "extracting-info"
	PhaseDownloading     Phase = "downloading"
	PhaseMerging         Phase = "merging"
	PhaseExtractingAudio Phase = "extracting-audio"
	PhaseVerifying       Phase = "verifying"
	PhaseTransferring    Phase = "transferring"
	PhaseComplete        Phase = "complete"
	PhaseError           Phase = "error"
	PhaseTimeout         Phase = "timeout"
)

// IsTerminal reports whether no further events are expected after this phase
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseError || p == PhaseTimeout
}

// ProgressEvent is the normalized progress model published per correlation id
type ProgressEvent struct {
	CorrelationID string    `json:"correlation_id"`
	Percent       float64   `json:"percent"`
	Phase         Phase     `json:"phase"`
	Message       string    `json:"message,omitempty"`
	Speed         string    `json:"speed,omitempty"`
	ETA           string    `json:"eta,omitempty"`
	Error         string    `json:"error,omitempty"`
	Attempt       int       `json:"attempt,omitempty"`
	TotalBytes    int64     `json:"total_bytes,omitempty"`
	Reset         bool      `json:"-"` // allows the percentage to go back, e.g. a new attempt
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProgressSink receives progress events
type ProgressSink interface {
	Publish(event ProgressEvent)
}

// ProgressSinkFunc adapts a function to ProgressSink
type ProgressSinkFunc func(event ProgressEvent)

// Publish calls f(event)
func (f ProgressSinkFunc) Publish(event ProgressEvent) {
	f(event)
}
