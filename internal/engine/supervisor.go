package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yourusername/media-fetch-go/internal/domain"
	"go.uber.org/zap"
)

// AttemptState is the terminal state of one supervised run
type AttemptState string

const (
	StateSucceeded AttemptState = "succeeded"
	StateFailed    AttemptState = "failed"
	StateTimedOut  AttemptState = "timed_out"
	StateCancelled AttemptState = "cancelled"
	StateErrored   AttemptState = "errored"
)

const (
	defaultDrainTimeout = 2 * time.Second
	diagnosticBytes     = 1 << 20
	maxLineLength       = 1 << 20
)

// SupervisorConfig holds the timers of one attempt
type SupervisorConfig struct {
	Binary         string
	ConnectTimeout time.Duration
	OverallTimeout time.Duration
	KillGrace      time.Duration
	DrainTimeout   time.Duration
}

// RunSpec describes one attempt to supervise
type RunSpec struct {
	CorrelationID string
	Attempt       int
	Args          []string
	Sink          domain.ProgressSink
	Transcript    domain.Transcript
}

// RunResult is the terminal outcome of one attempt
type RunResult struct {
	State        AttemptState
	Kind         domain.ErrorKind // empty on success
	ExitCode     int
	Diagnostic   string
	SizeEstimate int64 // last total size reported by the tool, 0 if none
	Duration     time.Duration
	Err          error
}

// Supervisor owns the lifecycle of tool subprocesses
type Supervisor struct {
	config   SupervisorConfig
	launcher Launcher
	parser   *ProgressParser
	logger   *zap.Logger
}

// NewSupervisor creates a new supervisor
func NewSupervisor(config SupervisorConfig, launcher Launcher, parser *ProgressParser, logger *zap.Logger) *Supervisor {
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = defaultDrainTimeout
	}
	return &Supervisor{
		config:   config,
		launcher: launcher,
		parser:   parser,
		logger:   logger,
	}
}

// Run spawns one subprocess and blocks until it reaches a terminal state.
// Cancelling ctx terminates the process group and yields StateCancelled.
func (s *Supervisor) Run(ctx context.Context, spec RunSpec) RunResult {
	start := time.Now()
	if spec.Transcript == nil {
		spec.Transcript = domain.NopTranscript
	}
	logger := s.logger.With(zap.String("id", spec.CorrelationID), zap.Int("attempt", spec.Attempt))

	if err := ctx.Err(); err != nil {
		return RunResult{State: StateCancelled, Kind: domain.KindCancelled, ExitCode: -1, Err: err}
	}

	proc, err := s.launcher.Launch(s.config.Binary, spec.Args)
	if err != nil {
		logger.Error("Failed to spawn tool", zap.String("binary", s.config.Binary), zap.Error(err))
		spec.Transcript.Close(false, err.Error())
		return RunResult{
			State:    StateErrored,
			Kind:     domain.KindProcessError,
			ExitCode: -1,
			Err:      err,
			Duration: time.Since(start),
		}
	}
	logger.Debug("Tool started", zap.String("binary", s.config.Binary))

	run := &attemptRun{
		spec:   spec,
		parser: s.parser,
		diag:   newDiagnosticBuffer(diagnosticBytes),
		lines:  make(chan string, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		exited: make(chan error, 1),
	}
	go run.readOutput(proc.Output())
	go func() { run.exited <- proc.Wait() }()

	result := s.supervise(ctx, proc, run, logger)
	result.Duration = time.Since(start)
	result.Diagnostic = run.diag.String()
	result.SizeEstimate = run.sizeEstimate

	switch result.State {
	case StateSucceeded:
		spec.Sink.Publish(domain.ProgressEvent{
			CorrelationID: spec.CorrelationID,
			Attempt:       spec.Attempt,
			Phase:         domain.PhaseDownloading,
			Percent:       100,
			Message:       "Download finished",
		})
		spec.Transcript.Close(true, "exit status 0")
	case StateFailed:
		result.Kind = Classify(result.Diagnostic)
		spec.Transcript.Close(false, fmt.Sprintf("exit status %d (%s)", result.ExitCode, result.Kind))
	case StateTimedOut:
		result.Kind = domain.KindTimeout
		spec.Transcript.Close(false, "timed out")
	case StateCancelled:
		result.Kind = domain.KindCancelled
		spec.Transcript.Close(false, "cancelled")
	}

	logger.Debug("Tool finished",
		zap.String("state", string(result.State)),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration))
	return result
}

// supervise races output, exit and the timers, and terminates the process
// group when a timer or the context fires first
func (s *Supervisor) supervise(ctx context.Context, proc Process, run *attemptRun, logger *zap.Logger) RunResult {
	defer func() {
		close(run.stop)
		proc.Close()
		<-run.done
	}()

	connect := time.NewTimer(s.config.ConnectTimeout)
	defer connect.Stop()
	overall := time.NewTimer(s.config.OverallTimeout)
	defer overall.Stop()

	lines := run.lines
	sawOutput := false
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			sawOutput = true
			connect.Stop()
			run.handle(line, true)

		case err := <-run.exited:
			s.drain(run, lines, true)
			code := exitCode(err)
			if code == 0 {
				return RunResult{State: StateSucceeded}
			}
			return RunResult{State: StateFailed, ExitCode: code, Err: err}

		case <-connect.C:
			if sawOutput {
				continue
			}
			logger.Warn("No output from tool before connect timeout", zap.Duration("timeout", s.config.ConnectTimeout))
			run.diag.Add("connect timed out: no output from tool")
			s.terminate(proc, run, logger)
			return RunResult{State: StateTimedOut, ExitCode: -1}

		case <-overall.C:
			logger.Warn("Tool exceeded overall timeout", zap.Duration("timeout", s.config.OverallTimeout))
			run.diag.Add("overall timeout exceeded")
			s.terminate(proc, run, logger)
			return RunResult{State: StateTimedOut, ExitCode: -1}

		case <-ctx.Done():
			logger.Info("Attempt cancelled, stopping tool")
			s.terminate(proc, run, logger)
			return RunResult{State: StateCancelled, ExitCode: -1, Err: ctx.Err()}
		}
	}
}

// terminate sends SIGTERM to the group, then SIGKILL once the grace window
// passes. Output read meanwhile only feeds the diagnostic buffer.
func (s *Supervisor) terminate(proc Process, run *attemptRun, logger *zap.Logger) {
	if err := proc.Terminate(); err != nil {
		logger.Debug("Failed to signal tool", zap.Error(err))
	}
	if !run.waitExit(s.config.KillGrace) {
		logger.Warn("Tool ignored termination, killing", zap.Duration("grace", s.config.KillGrace))
		if err := proc.Kill(); err != nil {
			logger.Error("Failed to kill tool", zap.Error(err))
		}
		<-run.exited
	}
	s.drain(run, run.lines, false)
}

// drain consumes output still buffered after exit, bounded by DrainTimeout
func (s *Supervisor) drain(run *attemptRun, lines <-chan string, publish bool) {
	if lines == nil {
		return
	}
	deadline := time.NewTimer(s.config.DrainTimeout)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			run.handle(line, publish)
		case <-deadline.C:
			return
		}
	}
}

// attemptRun is the mutable state of one supervised process
type attemptRun struct {
	spec         RunSpec
	parser       *ProgressParser
	diag         *diagnosticBuffer
	lines        chan string
	stop         chan struct{}
	done         chan struct{} // closed when the reader goroutine returns
	exited       chan error
	sizeEstimate int64
}

func (r *attemptRun) readOutput(output io.Reader) {
	defer close(r.done)
	defer close(r.lines)

	scanner := bufio.NewScanner(output)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	scanner.Split(scanLinesOrCR)
	for scanner.Scan() {
		select {
		case r.lines <- scanner.Text():
		case <-r.stop:
			return
		}
	}
}

// handle records a line and, when publish is set, forwards parsed progress
func (r *attemptRun) handle(line string, publish bool) {
	line = strings.TrimRight(line, " ")
	if line == "" {
		return
	}
	r.spec.Transcript.WriteLine(line)

	event, ok := r.parser.Parse(line)
	if !ok {
		r.diag.Add(line)
		return
	}
	if event.TotalBytes > 0 {
		r.sizeEstimate = event.TotalBytes
	}
	if publish {
		event.CorrelationID = r.spec.CorrelationID
		event.Attempt = r.spec.Attempt
		r.spec.Sink.Publish(event)
	}
}

// waitExit waits up to timeout for the process to exit, consuming output
// without publishing it. It reports whether the process exited.
func (r *attemptRun) waitExit(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	lines := r.lines
	for {
		select {
		case <-r.exited:
			return true
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			r.handle(line, false)
		case <-timer.C:
			return false
		}
	}
}

// scanLinesOrCR splits on \n, \r\n or a bare \r so carriage-return progress
// redraws become separate lines
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// diagnosticBuffer keeps every unparsed line for classification up to a byte
// budget. Past the budget it keeps the opening lines and the most recent
// ones, and counts what was dropped in between.
type diagnosticBuffer struct {
	limit     int // byte budget for each of head and tail
	head      []string
	headBytes int
	sealed    bool
	tail      []string
	tailBytes int
	omitted   int
}

func newDiagnosticBuffer(maxBytes int) *diagnosticBuffer {
	return &diagnosticBuffer{limit: maxBytes / 2}
}

func (b *diagnosticBuffer) Add(line string) {
	if !b.sealed {
		if b.headBytes+len(line) <= b.limit {
			b.head = append(b.head, line)
			b.headBytes += len(line)
			return
		}
		b.sealed = true
	}

	b.tail = append(b.tail, line)
	b.tailBytes += len(line)
	for b.tailBytes > b.limit && len(b.tail) > 1 {
		b.tailBytes -= len(b.tail[0])
		b.tail = b.tail[1:]
		b.omitted++
	}
}

func (b *diagnosticBuffer) String() string {
	lines := make([]string, 0, len(b.head)+len(b.tail)+1)
	lines = append(lines, b.head...)
	if b.omitted > 0 {
		lines = append(lines, fmt.Sprintf("[... %d lines omitted ...]", b.omitted))
	}
	lines = append(lines, b.tail...)
	return strings.Join(lines, "\n")
}
