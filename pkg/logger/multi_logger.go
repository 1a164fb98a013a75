package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alessio/shellescape"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryFetch LogCategory = "fetch" // Attempt lifecycle events (JSON)
	CategoryError LogCategory = "error" // Application errors (JSON)
	CategoryTool  LogCategory = "tool"  // Raw tool transcripts (plain text)
)

// MultiLogger provides categorized logging with separate output files.
// Raw tool output goes to the tool transcript, not through zap.
type MultiLogger struct {
	loggers     map[LogCategory]*zap.Logger
	files       []*os.File
	config      MultiLoggerConfig
	mu          sync.RWMutex
	toolMu      sync.Mutex
	currentDate string
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{
		config: config,
	}
	if err := ml.open(time.Now().Format("20060102")); err != nil {
		return nil, err
	}
	return ml, nil
}

// open creates the category loggers for a date. Caller holds mu or owns ml.
func (ml *MultiLogger) open(date string) error {
	level, err := zapcore.ParseLevel(ml.config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	loggers := make(map[LogCategory]*zap.Logger)
	var files []*os.File

	fetchLogger, fetchFile, err := ml.createStructuredLogger(CategoryFetch, date, level)
	if err != nil {
		return fmt.Errorf("failed to create fetch logger: %w", err)
	}
	loggers[CategoryFetch] = fetchLogger
	files = append(files, fetchFile)

	errorLogger, errorFile, err := ml.createStructuredLogger(CategoryError, date, zapcore.ErrorLevel)
	if err != nil {
		fetchFile.Close()
		return fmt.Errorf("failed to create error logger: %w", err)
	}
	loggers[CategoryError] = errorLogger
	files = append(files, errorFile)

	for _, f := range ml.files {
		f.Close()
	}
	ml.loggers = loggers
	ml.files = files
	ml.currentDate = date
	return nil
}

// createStructuredLogger creates a JSON-formatted logger for a category
func (ml *MultiLogger) createStructuredLogger(category LogCategory, date string, level zapcore.Level) (*zap.Logger, *os.File, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""

	encoder := zapcore.NewJSONEncoder(encoderConfig)

	file, err := os.OpenFile(ml.logPath(category, date), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(file), level)
	return zap.New(core), file, nil
}

func (ml *MultiLogger) logPath(category LogCategory, date string) string {
	return filepath.Join(ml.config.LogsDir, fmt.Sprintf("%s-%s.log", category, date))
}

// rotate reopens the category files when the date changed
func (ml *MultiLogger) rotate() {
	today := time.Now().Format("20060102")

	ml.mu.RLock()
	current := ml.currentDate
	ml.mu.RUnlock()
	if today == current {
		return
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if ml.currentDate == today {
		return
	}
	for _, l := range ml.loggers {
		_ = l.Sync()
	}
	if err := ml.open(today); err != nil {
		// Keep writing to yesterday's files rather than losing events
		fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
	}
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.rotate()

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if logger, ok := ml.loggers[category]; ok {
		return logger
	}
	return ml.loggers[CategoryError]
}

// Fetch returns the fetch lifecycle logger
func (ml *MultiLogger) Fetch() *zap.Logger {
	return ml.GetLogger(CategoryFetch)
}

// Error returns the error logger
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAppError logs an application-level error (Go errors, panics)
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogFetchEvent logs a fetch lifecycle event with structured data
func (ml *MultiLogger) LogFetchEvent(event string, fields ...zap.Field) {
	ml.Fetch().Info(event, fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes and closes all category files
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}
	for _, f := range ml.files {
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}
	ml.files = nil
	return lastErr
}

// ToolTranscript collects one attempt's raw tool output and appends it to the
// daily tool log as a single block, so concurrent attempts never interleave
type ToolTranscript struct {
	ml     *MultiLogger
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// OpenTranscript starts a transcript with the attempt header
func (ml *MultiLogger) OpenTranscript(correlationID string, attempt int, command []string) *ToolTranscript {
	t := &ToolTranscript{ml: ml}
	fmt.Fprintf(&t.buf, "\n=== [%s] Fetch: %s attempt %d ===\n", timestamp(), correlationID, attempt)
	fmt.Fprintf(&t.buf, "$ %s\n", shellescape.QuoteCommand(command))
	return t
}

// WriteLine appends one raw tool line
func (t *ToolTranscript) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.buf.WriteString(line)
	t.buf.WriteByte('\n')
}

// Close writes the footer and flushes the block to the tool log
func (t *ToolTranscript) Close(success bool, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true

	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	fmt.Fprintf(&t.buf, "[%s] %s: %s\n", timestamp(), status, message)
	t.buf.WriteString(transcriptEnd + "\n")

	if err := t.ml.appendTool(t.buf.Bytes()); err != nil {
		t.ml.LogAppError("Failed to write tool transcript", zap.Error(err))
	}
	t.buf.Reset()
}

const transcriptEnd = "=== END ==="

func (ml *MultiLogger) appendTool(block []byte) error {
	ml.toolMu.Lock()
	defer ml.toolMu.Unlock()

	path := ml.logPath(CategoryTool, time.Now().Format("20060102"))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := file.Write(block); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}
