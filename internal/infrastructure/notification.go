package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/yourusername/media-fetch-go/internal/domain"
	"go.uber.org/zap"
)

// NotificationService handles sending desktop notifications
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var (
		name string
		args []string
	)
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification %q with title %q`, message, title)
		if n.config.Sound {
			script += ` sound name "Glass"`
		}
		name, args = "osascript", []string{"-e", script}
	case "notify-send":
		name, args = "notify-send", []string{title, message}
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err := n.run(name, args...); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// NotifyFetchCompleted implements domain.Notifier
func (n *NotificationService) NotifyFetchCompleted(req domain.DownloadRequest) {
	_ = n.Send("Fetch Completed", fmt.Sprintf("Success: %s", describe(req)))
}

// NotifyFetchFailed implements domain.Notifier
func (n *NotificationService) NotifyFetchFailed(req domain.DownloadRequest, err error) {
	message := fmt.Sprintf("Failed: %s", describe(req))
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		message += fmt.Sprintf(" (%s)", kind)
	}
	_ = n.Send("Fetch Failed", message)
}

func describe(req domain.DownloadRequest) string {
	if title := strings.TrimSpace(req.Title); title != "" {
		return truncateString(title, 40)
	}
	return truncateString(req.URL, 30)
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
