package infrastructure

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/yourusername/media-fetch-go/internal/domain"
	"go.uber.org/zap"
)

// CookieFileEnv is set for the refresh command to the cookie file it must write
const CookieFileEnv = "MEDIAFETCH_COOKIE_FILE"

const (
	// forced refreshes closer together than this share the previous result
	minForcedRefreshInterval = 10 * time.Second
	lockRetryDelay           = 200 * time.Millisecond
)

// CookieProvider serves a Netscape cookie file, refreshing it with an external
// command when it is stale or has been invalidated. Concurrent callers in this
// process share one refresh; other processes are serialised with a file lock.
type CookieProvider struct {
	config domain.CredentialsConfig
	logger *zap.Logger
	lock   *flock.Flock
	touch  func(name string, atime, mtime time.Time) error

	refreshMu   sync.Mutex
	lastRefresh time.Time

	stateMu       sync.Mutex
	invalidatedAt time.Time
}

// NewCookieProvider creates a new cookie provider
func NewCookieProvider(config domain.CredentialsConfig, logger *zap.Logger) *CookieProvider {
	return &CookieProvider{
		config: config,
		logger: logger,
		lock:   flock.New(config.CookieFile + ".lock"),
		touch:  os.Chtimes,
	}
}

// Acquire implements domain.CredentialProvider
func (p *CookieProvider) Acquire(ctx context.Context, force bool) (string, bool, error) {
	if p.config.CookieFile == "" {
		return "", true, nil
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	if !p.needsRefresh(force) {
		return p.config.CookieFile, false, nil
	}

	if len(p.config.RefreshCommand) == 0 {
		return p.fallback(fmt.Errorf("cookie file is stale and no refresh command is configured"))
	}

	if err := p.refreshLocked(ctx, force); err != nil {
		return p.fallback(err)
	}
	return p.config.CookieFile, false, nil
}

// Invalidate implements domain.CredentialProvider
func (p *CookieProvider) Invalidate() {
	p.stateMu.Lock()
	p.invalidatedAt = time.Now()
	p.stateMu.Unlock()

	p.logger.Info("Cookies invalidated", zap.String("path", p.config.CookieFile))
}

// needsRefresh decides whether the file on disk can be handed out as is
func (p *CookieProvider) needsRefresh(force bool) bool {
	info, err := os.Stat(p.config.CookieFile)
	if err != nil {
		return true
	}

	p.stateMu.Lock()
	invalidatedAt := p.invalidatedAt
	p.stateMu.Unlock()

	modified := info.ModTime()
	switch {
	case p.config.MaxAge > 0 && time.Since(modified) > p.config.MaxAge:
		return true
	case !invalidatedAt.IsZero() && !modified.After(invalidatedAt):
		return true
	case force && time.Since(p.lastRefresh) > minForcedRefreshInterval:
		return true
	}
	return false
}

func (p *CookieProvider) refreshLocked(ctx context.Context, force bool) error {
	if err := os.MkdirAll(filepath.Dir(p.config.CookieFile), 0700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	locked, err := p.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock cookie file: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to lock cookie file")
	}
	defer func() {
		if err := p.lock.Unlock(); err != nil {
			p.logger.Warn("Failed to unlock cookie file", zap.Error(err))
		}
	}()

	// Another process may have refreshed while we waited for the lock
	before := modTime(p.config.CookieFile)
	if !force && !before.IsZero() && !p.needsRefresh(false) {
		return nil
	}

	timeout := p.config.RefreshTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, len(p.config.RefreshCommand))
	for i, a := range p.config.RefreshCommand {
		args[i] = strings.ReplaceAll(a, "{cookie_file}", p.config.CookieFile)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = append(os.Environ(), CookieFileEnv+"="+p.config.CookieFile)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("cookie refresh command failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	after := modTime(p.config.CookieFile)
	if after.IsZero() {
		return fmt.Errorf("cookie refresh command did not write %s", p.config.CookieFile)
	}
	// Coarse filesystem timestamps can hide a rewrite; make the refresh visible
	now := time.Now()
	if !after.After(p.invalidatedAtSnapshot()) {
		if err := p.touch(p.config.CookieFile, now, now); err != nil {
			p.logger.Warn("Failed to touch refreshed cookie file",
				zap.String("path", p.config.CookieFile),
				zap.Error(err))
		}
	}

	p.lastRefresh = now
	p.logger.Info("Cookies refreshed",
		zap.String("path", p.config.CookieFile),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (p *CookieProvider) invalidatedAtSnapshot() time.Time {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.invalidatedAt
}

// fallback hands out whatever exists on disk after a failed refresh
func (p *CookieProvider) fallback(cause error) (string, bool, error) {
	if _, err := os.Stat(p.config.CookieFile); err == nil {
		p.logger.Warn("Using stale cookies", zap.String("path", p.config.CookieFile), zap.Error(cause))
		return p.config.CookieFile, true, nil
	}
	p.logger.Warn("No cookies available", zap.Error(cause))
	return "", true, cause
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
