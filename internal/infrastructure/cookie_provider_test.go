package infrastructure

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/media-fetch-go/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const refreshScript = `echo run >> "$0"; printf '# Netscape HTTP Cookie File\n' > "$` + CookieFileEnv + `"`

func newTestCookieProvider(t *testing.T, withCommand bool) (*CookieProvider, string, string) {
	t.Helper()
	dir := t.TempDir()
	cookieFile := filepath.Join(dir, "cookies", "default.cookie")
	counter := filepath.Join(dir, "refreshes")

	config := domain.CredentialsConfig{
		CookieFile:     cookieFile,
		MaxAge:         time.Hour,
		RefreshTimeout: 5 * time.Second,
	}
	if withCommand {
		config.RefreshCommand = []string{"/bin/sh", "-c", refreshScript, counter}
	}
	return NewCookieProvider(config, zap.NewNop()), cookieFile, counter
}

func refreshCount(t *testing.T, counter string) int {
	t.Helper()
	data, err := os.ReadFile(counter)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "run")
}

func writeCookieFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte("# Netscape HTTP Cookie File\n"), 0600))
}

func TestCookieProvider_FreshFileIsServedAsIs(t *testing.T) {
	provider, cookieFile, counter := newTestCookieProvider(t, true)
	writeCookieFile(t, cookieFile)

	path, fallback, err := provider.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, cookieFile, path)
	assert.False(t, fallback)
	assert.Equal(t, 0, refreshCount(t, counter))
}

func TestCookieProvider_MissingFileIsRefreshed(t *testing.T) {
	provider, cookieFile, counter := newTestCookieProvider(t, true)

	path, fallback, err := provider.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, cookieFile, path)
	assert.False(t, fallback)
	assert.FileExists(t, cookieFile)
	assert.Equal(t, 1, refreshCount(t, counter))
}

func TestCookieProvider_InvalidateSharesOneRefresh(t *testing.T) {
	provider, cookieFile, counter := newTestCookieProvider(t, true)
	writeCookieFile(t, cookieFile)
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(cookieFile, old, old))

	provider.Invalidate()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path, fallback, err := provider.Acquire(context.Background(), true)
			assert.NoError(t, err)
			assert.Equal(t, cookieFile, path)
			assert.False(t, fallback)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, refreshCount(t, counter))
}

func TestCookieProvider_StaleWithoutCommandFallsBack(t *testing.T) {
	provider, cookieFile, _ := newTestCookieProvider(t, false)
	writeCookieFile(t, cookieFile)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(cookieFile, old, old))

	path, fallback, err := provider.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, cookieFile, path)
	assert.True(t, fallback)
}

func TestCookieProvider_MissingWithoutCommandFails(t *testing.T) {
	provider, _, _ := newTestCookieProvider(t, false)

	path, fallback, err := provider.Acquire(context.Background(), false)
	assert.Error(t, err)
	assert.Empty(t, path)
	assert.True(t, fallback)
}

func TestCookieProvider_FailedRefreshKeepsStaleFile(t *testing.T) {
	dir := t.TempDir()
	cookieFile := filepath.Join(dir, "default.cookie")
	writeCookieFile(t, cookieFile)

	provider := NewCookieProvider(domain.CredentialsConfig{
		CookieFile:     cookieFile,
		RefreshCommand: []string{"/bin/sh", "-c", "echo boom >&2; exit 1"},
		RefreshTimeout: 5 * time.Second,
	}, zap.NewNop())
	provider.Invalidate()

	path, fallback, err := provider.Acquire(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, cookieFile, path)
	assert.True(t, fallback)
}

func TestCookieProvider_NoCookieFileConfigured(t *testing.T) {
	provider := NewCookieProvider(domain.CredentialsConfig{}, zap.NewNop())

	path, fallback, err := provider.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.True(t, fallback)
}

func TestCookieProvider_TouchFailureIsLogged(t *testing.T) {
	provider, cookieFile, counter := newTestCookieProvider(t, true)
	core, logs := observer.New(zapcore.WarnLevel)
	provider.logger = zap.New(core)
	provider.touch = func(string, time.Time, time.Time) error { return os.ErrPermission }
	provider.invalidatedAt = time.Now().Add(time.Hour)

	path, _, err := provider.Acquire(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, cookieFile, path)
	assert.Equal(t, 1, refreshCount(t, counter))

	entries := logs.FilterMessage("Failed to touch refreshed cookie file").All()
	require.Len(t, entries, 1)
	assert.Equal(t, cookieFile, entries[0].ContextMap()["path"])
}
