package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/app"
	"github.com/yourusername/media-fetch-go/internal/domain"
	"github.com/yourusername/media-fetch-go/internal/engine"
	"github.com/yourusername/media-fetch-go/internal/infrastructure"
	"github.com/yourusername/media-fetch-go/pkg/logger"
)

// runtime is the wired engine shared by serve and local fetch
type runtime struct {
	config   *domain.Config
	log      *zap.Logger
	multiLog *logger.MultiLogger
	history  domain.HistoryRepository
	rateGate *infrastructure.ClientRateGate
	service  *app.FetchService
}

// buildRuntime wires the engine from the config at path. Interactive runs
// log to stderr at warn level unless a log file is configured.
func buildRuntime(path string, interactive bool) (*runtime, error) {
	config, err := app.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var log *zap.Logger
	if interactive && isConsoleOutput(config.Logging.OutputPath) {
		log = logger.NewCLI()
	} else {
		log, err = logger.New(logger.Config{
			Level:      config.Logging.Level,
			Format:     config.Logging.Format,
			OutputPath: config.Logging.OutputPath,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt := &runtime{
		config:   config,
		log:      log,
		multiLog: multiLog,
		rateGate: infrastructure.NewClientRateGate(config.Server.RateLimit),
	}

	opts := app.FetchServiceOptions{ChunkSize: config.Fetch.ChunkSize}
	if config.History.Enabled {
		repo, err := infrastructure.NewSQLiteHistoryRepository(config.History.DatabasePath, log)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("failed to initialize history: %w", err)
		}
		rt.history = repo
		opts.History = repo
	}
	if config.Notification.Enabled {
		opts.Notifier = infrastructure.NewNotificationService(&config.Notification, log)
	}

	deps := engine.Dependencies{
		Proxies:     infrastructure.NewRoundRobinProxies(config.Proxy.Endpoints),
		Transcripts: app.NewToolTranscripts(multiLog),
		Logger:      log,
		EventLogger: multiLog.Fetch(),
	}
	if config.Credentials.CookieFile != "" {
		deps.Credentials = infrastructure.NewCookieProvider(config.Credentials, log)
	}

	orchestrator := engine.NewOrchestrator(config, deps)
	rt.service = app.NewFetchService(orchestrator, engine.NewRegistry(), opts, log)
	return rt, nil
}

func (rt *runtime) close() {
	if rt.history != nil {
		if err := rt.history.Close(); err != nil {
			rt.log.Warn("Failed to close history", zap.Error(err))
		}
	}
	if err := rt.multiLog.Close(); err != nil {
		rt.log.Warn("Failed to close logs", zap.Error(err))
	}
	_ = rt.log.Sync()
}

func isConsoleOutput(path string) bool {
	return path == "" || path == "stdout" || path == "stderr"
}
