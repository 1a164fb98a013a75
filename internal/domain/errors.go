package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the failure taxonomy used for retry decisions
type ErrorKind string

const (
	KindAccessBlocked      ErrorKind = "access_blocked"
	KindTimeout            ErrorKind = "timeout"
	KindNetwork            ErrorKind = "network"
	KindFormatUnavailable  ErrorKind = "format_unavailable"
	KindMergeFailure       ErrorKind = "merge_failure"
	KindValidationRejected ErrorKind = "validation_rejected"
	KindProcessError       ErrorKind = "process_error"
	KindCancelled          ErrorKind = "cancelled"
	KindUnknown            ErrorKind = "unknown"
)

// Retryable reports whether another attempt may succeed after this kind of failure.
// MergeFailure and FormatUnavailable additionally depend on the remaining fallbacks.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindProcessError, KindCancelled:
		return false
	default:
		return true
	}
}

// Degrades reports whether the next attempt should move to a cheaper format
func (k ErrorKind) Degrades() bool {
	switch k {
	case KindTimeout, KindFormatUnavailable, KindMergeFailure, KindValidationRejected, KindUnknown:
		return true
	default:
		return false
	}
}

// Message is the human-readable summary for a kind
func (k ErrorKind) Message() string {
	switch k {
	case KindAccessBlocked:
		return "the source refused the request"
	case KindTimeout:
		return "the download took too long"
	case KindNetwork:
		return "a network error interrupted the download"
	case KindFormatUnavailable:
		return "no matching format is available"
	case KindMergeFailure:
		return "post-processing of the downloaded streams failed"
	case KindValidationRejected:
		return "the downloaded file looks broken"
	case KindProcessError:
		return "the extraction tool could not be started"
	case KindCancelled:
		return "the download was cancelled"
	default:
		return "the download failed"
	}
}

// Suggestion is the remediation offered to the caller, if any
func (k ErrorKind) Suggestion() string {
	switch k {
	case KindTimeout, KindValidationRejected:
		return "try lower quality"
	case KindAccessBlocked:
		return "try again later"
	case KindNetwork:
		return "check the URL and try again"
	case KindFormatUnavailable:
		return "try a different quality or format"
	case KindMergeFailure:
		return "try audio-only or a different container"
	case KindProcessError:
		return "check that the extraction tool is installed"
	default:
		return ""
	}
}

// FetchError is the structured terminal failure of a fetch
type FetchError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"error"`
	Suggestion string    `json:"suggestion,omitempty"`
	Diagnostic string    `json:"-"`
	Attempts   int       `json:"attempts"`
	Err        error     `json:"-"`
}

// NewFetchError builds a FetchError with the kind's default message and suggestion
func NewFetchError(kind ErrorKind, attempts int, diagnostic string, err error) *FetchError {
	return &FetchError{
		Kind:       kind,
		Message:    kind.Message(),
		Suggestion: kind.Suggestion(),
		Diagnostic: diagnostic,
		Attempts:   attempts,
		Err:        err,
	}
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrAlreadyActive is returned when a correlation id already has a live fetch
var ErrAlreadyActive = errors.New("a fetch with this correlation id is already running")

// KindOf extracts the ErrorKind from err, or KindUnknown
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsCancelled reports whether err is a cancellation outcome
func IsCancelled(err error) bool {
	return err != nil && KindOf(err) == KindCancelled
}
