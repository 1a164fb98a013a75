package engine

import (
	"context"
	"fmt"

	"github.com/yourusername/media-fetch-go/internal/domain"
	"go.uber.org/zap"
)

// Artifact is a validated output file handed to the caller, who owns it from then on
type Artifact struct {
	Path        string
	Size        int64
	ContentType string
	Plan        domain.FormatPlan
	Attempts    int
	Warning     string
}

// Dependencies are the collaborators of an Orchestrator. Providers are optional.
type Dependencies struct {
	Launcher    Launcher
	Credentials domain.CredentialProvider
	Proxies     domain.ProxyProvider
	Transcripts domain.TranscriptOpener
	Logger      *zap.Logger
	// EventLogger receives attempt lifecycle events, e.g. the fetch category log
	EventLogger *zap.Logger
}

// Orchestrator drives the supervisor across attempts, degrading the format
// plan and refreshing credentials according to the failure classification
type Orchestrator struct {
	planner     *Planner
	supervisor  *Supervisor
	validator   *ArtifactValidator
	temps       *TempAllocator
	tool        domain.ToolConfig
	maxAttempts int

	credentials domain.CredentialProvider
	proxies     domain.ProxyProvider
	transcripts domain.TranscriptOpener
	logger      *zap.Logger
	events      *zap.Logger
}

// NewOrchestrator wires an orchestrator from configuration
func NewOrchestrator(config *domain.Config, deps Dependencies) *Orchestrator {
	if deps.Launcher == nil {
		deps.Launcher = ExecLauncher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.EventLogger == nil {
		deps.EventLogger = zap.NewNop()
	}

	parser := NewProgressParser(config.Fetch.DownloadWindowLow, config.Fetch.DownloadWindowHi)
	supervisor := NewSupervisor(SupervisorConfig{
		Binary:         config.Tool.Binary,
		ConnectTimeout: config.Fetch.ConnectTimeout,
		OverallTimeout: config.Fetch.OverallTimeout,
		KillGrace:      config.Fetch.KillGrace,
	}, deps.Launcher, parser, deps.Logger)

	maxAttempts := config.Fetch.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Orchestrator{
		planner:     NewPlanner(config.Fetch),
		supervisor:  supervisor,
		validator:   NewArtifactValidator(config.Fetch.AudioFloorBytes, config.Fetch.VideoFloorBytes),
		temps:       NewTempAllocator(config.Fetch.TempDir),
		tool:        config.Tool,
		maxAttempts: maxAttempts,
		credentials: deps.Credentials,
		proxies:     deps.Proxies,
		transcripts: deps.Transcripts,
		logger:      deps.Logger,
		events:      deps.EventLogger,
	}
}

// Planner exposes the format planner
func (o *Orchestrator) Planner() *Planner {
	return o.planner
}

// attemptOutcome is what one attempt leaves behind
type attemptOutcome struct {
	artifact *Artifact
	err      *domain.FetchError
}

// Run fetches req, returning a validated artifact or a *domain.FetchError.
// Every attempt's files are gone when Run returns, except the artifact.
func (o *Orchestrator) Run(ctx context.Context, req domain.DownloadRequest, sink domain.ProgressSink) (*Artifact, error) {
	req = req.WithDefaults()
	id := req.CorrelationID
	logger := o.logger.With(zap.String("id", id))

	plan := o.planner.Plan(req)
	fallbacks := o.planner.Fallbacks(plan)
	next := 0
	forceRefresh := false

	var last *domain.FetchError
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, domain.NewFetchError(domain.KindCancelled, attempt-1, "", ctx.Err())
		}

		sink.Publish(domain.ProgressEvent{
			CorrelationID: id,
			Attempt:       attempt,
			Phase:         domain.PhasePreparing,
			Percent:       0,
			Reset:         true,
			Message:       fmt.Sprintf("Attempt %d: %s", attempt, plan.Label),
		})
		o.events.Info("attempt_started",
			zap.String("id", id),
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.String("selector", plan.Selector))

		out := o.runAttempt(ctx, req, plan, attempt, forceRefresh, sink)
		forceRefresh = false
		if out.artifact != nil {
			o.events.Info("fetch_completed",
				zap.String("id", id),
				zap.Int("attempt", attempt),
				zap.String("format", plan.Label),
				zap.Int64("size", out.artifact.Size))
			return out.artifact, nil
		}

		last = out.err
		last.Attempts = attempt
		if last.Kind == domain.KindCancelled {
			o.events.Info("fetch_cancelled", zap.String("id", id), zap.Int("attempt", attempt))
			return nil, last
		}

		o.events.Warn("attempt_failed",
			zap.String("id", id),
			zap.Int("attempt", attempt),
			zap.String("kind", string(last.Kind)),
			zap.String("selector", plan.Selector))
		sink.Publish(domain.ProgressEvent{
			CorrelationID: id,
			Attempt:       attempt,
			Phase:         domain.PhaseError,
			Message:       fmt.Sprintf("Attempt %d failed: %s", attempt, last.Message),
			Error:         string(last.Kind),
		})

		if !last.Kind.Retryable() || attempt == o.maxAttempts {
			break
		}

		switch {
		case last.Kind == domain.KindMergeFailure:
			i := nextUnmerged(fallbacks, next)
			if i < 0 {
				return nil, o.fail(sink, id, last)
			}
			plan, next = fallbacks[i], i+1
		case last.Kind.Degrades():
			if next >= len(fallbacks) {
				return nil, o.fail(sink, id, last)
			}
			plan = fallbacks[next]
			next++
		case last.Kind == domain.KindAccessBlocked:
			// Same format, fresh credentials
			if o.credentials != nil {
				o.credentials.Invalidate()
			}
			forceRefresh = true
		}
		logger.Info("Retrying fetch",
			zap.Int("next_attempt", attempt+1),
			zap.String("kind", string(last.Kind)),
			zap.String("selector", plan.Selector))
	}

	return nil, o.fail(sink, id, last)
}

// fail publishes the terminal error event
func (o *Orchestrator) fail(sink domain.ProgressSink, id string, err *domain.FetchError) *domain.FetchError {
	phase := domain.PhaseError
	if err.Kind == domain.KindTimeout {
		phase = domain.PhaseTimeout
	}
	o.events.Error("fetch_failed",
		zap.String("id", id),
		zap.String("kind", string(err.Kind)),
		zap.Int("attempts", err.Attempts),
		zap.Error(err))
	sink.Publish(domain.ProgressEvent{
		CorrelationID: id,
		Phase:         phase,
		Message:       err.Message,
		Error:         string(err.Kind),
	})
	return err
}

func (o *Orchestrator) runAttempt(ctx context.Context, req domain.DownloadRequest, plan domain.FormatPlan, attempt int, forceRefresh bool, sink domain.ProgressSink) attemptOutcome {
	id := req.CorrelationID
	logger := o.logger.With(zap.String("id", id), zap.Int("attempt", attempt))

	files, err := o.temps.Allocate(id, attempt)
	if err != nil {
		return attemptOutcome{err: domain.NewFetchError(domain.KindProcessError, attempt, "", err)}
	}
	// On every path except success the whole namespace goes
	keep := ""
	defer func() {
		if err := files.Cleanup(keep); err != nil {
			logger.Warn("Failed to remove attempt files", zap.Error(err))
		}
	}()

	cookiePath := o.prepareCredentials(ctx, files, forceRefresh, logger)
	proxy := ""
	if o.proxies != nil {
		if endpoint, ok := o.proxies.Next(); ok {
			proxy = endpoint
		}
	}

	args := BuildToolArgs(o.tool, AttemptArgs{
		URL:            req.URL,
		Plan:           plan,
		OutputTemplate: files.OutputTemplate(),
		CookiePath:     cookiePath,
		Proxy:          proxy,
	})

	transcript := domain.NopTranscript
	if o.transcripts != nil {
		transcript = o.transcripts.OpenTranscript(id, attempt, append([]string{o.tool.Binary}, args...))
	}

	result := o.supervisor.Run(ctx, RunSpec{
		CorrelationID: id,
		Attempt:       attempt,
		Args:          args,
		Sink:          sink,
		Transcript:    transcript,
	})
	if result.State != StateSucceeded {
		return attemptOutcome{err: domain.NewFetchError(result.Kind, attempt, result.Diagnostic, result.Err)}
	}

	path, err := files.Locate(plan.Container)
	if err != nil {
		logger.Warn("Tool exited cleanly without output", zap.Error(err))
		return attemptOutcome{err: domain.NewFetchError(domain.KindValidationRejected, attempt, result.Diagnostic, err)}
	}

	sink.Publish(domain.ProgressEvent{
		CorrelationID: id,
		Attempt:       attempt,
		Phase:         domain.PhaseVerifying,
		Message:       "Verifying output",
	})

	hint := req.ExpectedSize
	if hint <= 0 && !plan.NeedsMerge && !plan.AudioOnly {
		hint = result.SizeEstimate
	}
	verdict := o.validator.Validate(path, hint, plan.MediaKind())
	if !verdict.Accepted {
		logger.Warn("Output rejected", zap.String("reason", verdict.Reason), zap.Int64("size", verdict.Size))
		return attemptOutcome{err: domain.NewFetchError(domain.KindValidationRejected, attempt, result.Diagnostic,
			fmt.Errorf("output rejected: %s", verdict.Reason))}
	}
	if verdict.Warning != "" {
		logger.Warn("Output accepted outside expected size band", zap.String("warning", verdict.Warning))
	}

	keep = path
	return attemptOutcome{artifact: &Artifact{
		Path:        path,
		Size:        verdict.Size,
		ContentType: plan.ContentType,
		Plan:        plan,
		Attempts:    attempt,
		Warning:     verdict.Warning,
	}}
}

// prepareCredentials returns the attempt-scoped cookie copy, or "" to run
// without cookies. Credential problems never fail the attempt.
func (o *Orchestrator) prepareCredentials(ctx context.Context, files *AttemptFiles, force bool, logger *zap.Logger) string {
	if o.credentials == nil {
		return ""
	}

	path, isFallback, err := o.credentials.Acquire(ctx, force)
	if err != nil {
		logger.Warn("Credential acquisition failed, continuing without cookies", zap.Error(err))
		return ""
	}
	if path == "" {
		return ""
	}
	if isFallback {
		logger.Info("Using fallback credentials", zap.Bool("forced", force))
	}

	copied, err := files.CopyCookies(path)
	if err != nil {
		logger.Warn("Failed to copy cookies, continuing without them", zap.Error(err))
		return ""
	}
	return copied
}

func nextUnmerged(fallbacks []domain.FormatPlan, from int) int {
	for i := from; i < len(fallbacks); i++ {
		if !fallbacks[i].NeedsMerge {
			return i
		}
	}
	return -1
}
