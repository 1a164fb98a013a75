package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/yourusername/media-fetch-go/internal/domain"
	"github.com/yourusername/media-fetch-go/internal/engine"
	"go.uber.org/zap"
)

// ErrInvalidRequest is returned for requests the engine cannot act on
var ErrInvalidRequest = errors.New("invalid request")

// errCancelledByCaller is the cancellation cause for explicit Cancel calls
var errCancelledByCaller = errors.New("cancelled by caller")

// Runner runs one fetch to a validated artifact
type Runner interface {
	Run(ctx context.Context, req domain.DownloadRequest, sink domain.ProgressSink) (*engine.Artifact, error)
}

// Delivery is an artifact ready to be streamed to the caller
type Delivery struct {
	CorrelationID string
	Artifact      *engine.Artifact
	Stream        *engine.Stream
}

// FetchService owns the lifecycle of every in-flight fetch: the one-per-id
// admission table, cancellation, history, notifications and registry teardown.
type FetchService struct {
	runner    Runner
	registry  *engine.Registry
	history   domain.HistorySink
	notifier  domain.Notifier
	chunkSize int
	logger    *zap.Logger

	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
}

// FetchServiceOptions are the optional collaborators of a FetchService
type FetchServiceOptions struct {
	History   domain.HistorySink
	Notifier  domain.Notifier
	ChunkSize int
}

// NewFetchService creates a new fetch service
func NewFetchService(runner Runner, registry *engine.Registry, opts FetchServiceOptions, logger *zap.Logger) *FetchService {
	return &FetchService{
		runner:    runner,
		registry:  registry,
		history:   opts.History,
		notifier:  opts.Notifier,
		chunkSize: opts.ChunkSize,
		logger:    logger,
		active:    make(map[string]context.CancelCauseFunc),
	}
}

// Registry exposes progress for readers
func (s *FetchService) Registry() *engine.Registry {
	return s.registry
}

// Fetch runs req to completion and returns an open stream over the artifact.
// The stream owns the file: closing it, reading it to the end or cancelling
// ctx removes the file and ends the fetch.
func (s *FetchService) Fetch(ctx context.Context, req domain.DownloadRequest) (*Delivery, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	req = req.WithDefaults()
	id := req.CorrelationID

	ctx, err := s.admit(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Fetch started",
		zap.String("id", id),
		zap.String("url", req.URL),
		zap.String("quality", req.Quality),
		zap.String("ext", req.Extension))

	artifact, err := s.runner.Run(ctx, req, s.registry)
	if err != nil {
		s.finishFailed(req, err)
		return nil, err
	}

	s.record(req, artifact, nil)
	if s.notifier != nil {
		s.notifier.NotifyFetchCompleted(req)
	}

	s.registry.Publish(domain.ProgressEvent{
		CorrelationID: id,
		Attempt:       artifact.Attempts,
		Phase:         domain.PhaseTransferring,
		Percent:       100,
		TotalBytes:    artifact.Size,
		Message:       "Sending file",
	})

	stream, err := engine.OpenStream(ctx, artifact.Path, engine.StreamOptions{
		ContentType: artifact.ContentType,
		Filename:    SuggestedFilename(req, artifact.Plan.Container),
		ChunkSize:   s.chunkSize,
		OnClose: func(outcome engine.StreamOutcome) {
			s.finishStream(id, outcome)
		},
	})
	if err != nil {
		s.release(id)
		s.registry.Clear(id)
		return nil, domain.NewFetchError(domain.KindValidationRejected, artifact.Attempts, "", err)
	}

	return &Delivery{CorrelationID: id, Artifact: artifact, Stream: stream}, nil
}

// Cancel stops the fetch with the given correlation id. It reports whether one was running.
func (s *FetchService) Cancel(id string) bool {
	s.mu.Lock()
	cancel, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.logger.Info("Fetch cancel requested", zap.String("id", id))
	cancel(errCancelledByCaller)
	return true
}

// Active returns the number of in-flight fetches
func (s *FetchService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// admit claims id, refusing a second live fetch for the same id
func (s *FetchService) admit(parent context.Context, id string) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[id]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyActive, id)
	}
	ctx, cancel := context.WithCancelCause(parent)
	s.active[id] = cancel
	return ctx, nil
}

func (s *FetchService) release(id string) {
	s.mu.Lock()
	cancel, ok := s.active[id]
	delete(s.active, id)
	s.mu.Unlock()

	if ok {
		cancel(nil)
	}
}

func (s *FetchService) finishFailed(req domain.DownloadRequest, err error) {
	id := req.CorrelationID
	s.release(id)
	s.registry.Clear(id)

	if domain.IsCancelled(err) {
		s.logger.Info("Fetch cancelled", zap.String("id", id))
		return
	}

	s.logger.Warn("Fetch failed",
		zap.String("id", id),
		zap.String("kind", string(domain.KindOf(err))),
		zap.Error(err))
	s.record(req, nil, err)
	if s.notifier != nil {
		s.notifier.NotifyFetchFailed(req, err)
	}
}

func (s *FetchService) finishStream(id string, outcome engine.StreamOutcome) {
	if outcome.Completed {
		s.registry.Publish(domain.ProgressEvent{
			CorrelationID: id,
			Phase:         domain.PhaseComplete,
			Percent:       100,
			Message:       "Complete",
		})
	}
	if outcome.RemoveErr != nil {
		s.logger.Warn("Failed to remove artifact", zap.String("id", id), zap.Error(outcome.RemoveErr))
	}

	s.logger.Info("Stream closed",
		zap.String("id", id),
		zap.Bool("completed", outcome.Completed),
		zap.Int64("bytes", outcome.Bytes))

	s.release(id)
	s.registry.Clear(id)
}

func (s *FetchService) record(req domain.DownloadRequest, artifact *engine.Artifact, err error) {
	if s.history == nil {
		return
	}

	record := &domain.HistoryRecord{
		CorrelationID: req.CorrelationID,
		URL:           req.URL,
		Title:         req.Title,
		Format:        req.Extension,
		Success:       err == nil,
		CreatedAt:     time.Now(),
	}
	if artifact != nil {
		record.Format = artifact.Plan.Label
		record.Attempts = artifact.Attempts
		record.SizeBytes = artifact.Size
	}
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		record.ErrorKind = fetchErr.Kind
		record.Error = fetchErr.Message
		record.Attempts = fetchErr.Attempts
	} else if err != nil {
		record.ErrorKind = domain.KindUnknown
		record.Error = err.Error()
	}

	s.history.Record(record)
}

func validateRequest(req domain.DownloadRequest) error {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) url", ErrInvalidRequest)
	}
	return nil
}

// SuggestedFilename derives the download name from the title, falling back to "download"
func SuggestedFilename(req domain.DownloadRequest, container string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(req.Title))
	name = strings.Trim(name, ". ")
	if name == "" {
		name = "download"
	}
	if len(name) > 150 {
		name = strings.ToValidUTF8(name[:150], "")
	}

	if container == "" {
		container = req.Extension
	}
	if container == "" {
		return name
	}
	return name + "." + container
}
