package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/api/handlers"
	"github.com/yourusername/media-fetch-go/internal/app"
	"github.com/yourusername/media-fetch-go/internal/domain"
	"github.com/yourusername/media-fetch-go/internal/engine"
)

type runnerFunc func(ctx context.Context, req domain.DownloadRequest, sink domain.ProgressSink) (*engine.Artifact, error)

func (f runnerFunc) Run(ctx context.Context, req domain.DownloadRequest, sink domain.ProgressSink) (*engine.Artifact, error) {
	return f(ctx, req, sink)
}

type staticHistory struct {
	records []*domain.HistoryRecord
}

func (h *staticHistory) Record(r *domain.HistoryRecord) { h.records = append(h.records, r) }
func (h *staticHistory) Recent(limit int) ([]*domain.HistoryRecord, error) {
	if limit < len(h.records) {
		return h.records[:limit], nil
	}
	return h.records, nil
}
func (h *staticHistory) Stats() (*domain.HistoryStats, error) {
	return &domain.HistoryStats{Total: int64(len(h.records))}, nil
}
func (h *staticHistory) Close() error { return nil }

type gateFunc func(string) bool

func (g gateFunc) Allow(id string) bool { return g(id) }

func writeArtifact(t *testing.T, content []byte) runnerFunc {
	dir := t.TempDir()
	return func(ctx context.Context, req domain.DownloadRequest, sink domain.ProgressSink) (*engine.Artifact, error) {
		path := filepath.Join(dir, req.CorrelationID+".mp3")
		require.NoError(t, os.WriteFile(path, content, 0644))
		return &engine.Artifact{
			Path:        path,
			Size:        int64(len(content)),
			ContentType: "audio/mpeg",
			Plan:        domain.FormatPlan{Container: "mp3", Label: "audio mp3"},
			Attempts:    1,
		}, nil
	}
}

func setupRouter(t *testing.T, runner app.Runner, gate domain.RateGate) (http.Handler, *app.FetchService, *staticHistory) {
	t.Helper()
	history := &staticHistory{}
	service := app.NewFetchService(runner, engine.NewRegistry(), app.FetchServiceOptions{History: history}, zap.NewNop())
	router := SetupRouter(RouterConfig{
		Fetches:  service,
		History:  history,
		RateGate: gate,
		Logger:   zap.NewNop(),
	})
	return router, service, history
}

func postFetch(t *testing.T, router http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fetch", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestAPI_FetchStreamsArtifact(t *testing.T) {
	content := bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 1024)
	router, service, history := setupRouter(t, writeArtifact(t, content), nil)

	w := postFetch(t, router, map[string]string{
		"url":            "https://example.com/track",
		"quality":        "audio",
		"ext":            "mp3",
		"title":          "Café Song",
		"correlation_id": "abc-123",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "4096", w.Header().Get("Content-Length"))
	assert.Equal(t, "abc-123", w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, `attachment; filename="Cafe Song.mp3"; filename*=UTF-8''Caf%C3%A9%20Song.mp3`,
		w.Header().Get("Content-Disposition"))

	assert.Equal(t, 0, service.Active())
	assert.Equal(t, 0, service.Registry().Len())
	assert.Len(t, history.records, 1)
}

func TestAPI_FetchFailureIsStructured(t *testing.T) {
	router, _, _ := setupRouter(t, runnerFunc(func(ctx context.Context, req domain.DownloadRequest, sink domain.ProgressSink) (*engine.Artifact, error) {
		return nil, domain.NewFetchError(domain.KindTimeout, 3, "", errors.New("deadline"))
	}), nil)

	w := postFetch(t, router, map[string]string{"url": "https://example.com/v"})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var body handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, domain.KindTimeout, body.Kind)
	assert.Equal(t, 3, body.Attempts)
	assert.NotEmpty(t, body.Suggestion)
	assert.NotEmpty(t, body.CorrelationID)
	assert.Equal(t, body.CorrelationID, w.Header().Get("X-Correlation-ID"))
}

func TestAPI_FetchCancelledIsSilent(t *testing.T) {
	router, _, history := setupRouter(t, runnerFunc(func(ctx context.Context, req domain.DownloadRequest, sink domain.ProgressSink) (*engine.Artifact, error) {
		return nil, domain.NewFetchError(domain.KindCancelled, 1, "", context.Canceled)
	}), nil)

	w := postFetch(t, router, map[string]string{"url": "https://example.com/v"})
	assert.Equal(t, handlers.StatusClientClosedRequest, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Empty(t, history.records)
}

func TestAPI_FetchBadRequest(t *testing.T) {
	router, _, _ := setupRouter(t, writeArtifact(t, []byte("x")), nil)

	w := postFetch(t, router, map[string]string{"quality": "720"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postFetch(t, router, map[string]string{"url": "ftp://example.com/v"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_FetchRateLimited(t *testing.T) {
	router, _, _ := setupRouter(t, writeArtifact(t, []byte("x")), gateFunc(func(string) bool { return false }))

	w := postFetch(t, router, map[string]string{"url": "https://example.com/v"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAPI_CancelUnknown(t *testing.T) {
	router, _, _ := setupRouter(t, writeArtifact(t, []byte("x")), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/fetch/nope/cancel", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_CancelRunningFetch(t *testing.T) {
	started := make(chan struct{})
	router, _, _ := setupRouter(t, runnerFunc(func(ctx context.Context, req domain.DownloadRequest, sink domain.ProgressSink) (*engine.Artifact, error) {
		close(started)
		<-ctx.Done()
		return nil, domain.NewFetchError(domain.KindCancelled, 1, "", context.Cause(ctx))
	}), nil)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- postFetch(t, router, map[string]string{"url": "https://example.com/v", "correlation_id": "live"})
	}()
	<-started

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/fetch/live/cancel", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case fetch := <-done:
		assert.Equal(t, handlers.StatusClientClosedRequest, fetch.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not stop")
	}
}

func TestAPI_Progress(t *testing.T) {
	router, service, _ := setupRouter(t, writeArtifact(t, []byte("x")), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/progress/req-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	service.Registry().Publish(domain.ProgressEvent{CorrelationID: "req-1", Phase: domain.PhaseDownloading, Percent: 42})

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/progress/req-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var event domain.ProgressEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &event))
	assert.Equal(t, domain.PhaseDownloading, event.Phase)
	assert.Equal(t, 42.0, event.Percent)
}

func TestAPI_ProgressWebSocket(t *testing.T) {
	router, service, _ := setupRouter(t, writeArtifact(t, []byte("x")), nil)
	server := httptest.NewServer(router)
	defer server.Close()

	registry := service.Registry()
	registry.Publish(domain.ProgressEvent{CorrelationID: "ws-1", Phase: domain.PhaseDownloading, Percent: 10})

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/progress/ws-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first domain.ProgressEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 10.0, first.Percent)

	registry.Publish(domain.ProgressEvent{CorrelationID: "ws-1", Phase: domain.PhaseDownloading, Percent: 60})
	var second domain.ProgressEvent
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, 60.0, second.Percent)

	registry.Clear("ws-1")
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func TestAPI_HistoryAndHealth(t *testing.T) {
	router, _, history := setupRouter(t, writeArtifact(t, []byte("x")), nil)
	history.Record(&domain.HistoryRecord{CorrelationID: "h1", URL: "https://example.com/a", Success: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=5", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"correlation_id":"h1"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":0`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
