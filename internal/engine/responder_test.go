package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []StreamOutcome
	done     chan struct{}
}

func newOutcomeRecorder() *outcomeRecorder {
	return &outcomeRecorder{done: make(chan struct{}, 8)}
}

func (r *outcomeRecorder) record(o StreamOutcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *outcomeRecorder) all() []StreamOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StreamOutcome(nil), r.outcomes...)
}

func writeArtifact(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := bytes.Repeat([]byte("0123456789abcdef"), size/16+1)[:size]
	path := filepath.Join(t.TempDir(), "artifact.mp4")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func TestStreamFullConsumption(t *testing.T) {
	path, data := writeArtifact(t, 200*1024)
	rec := newOutcomeRecorder()

	s, err := OpenStream(context.Background(), path, StreamOptions{ContentType: "video/mp4", OnClose: rec.record})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), s.Size())

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.Close())
	outcomes := rec.all()
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Completed)
	assert.Equal(t, int64(len(data)), outcomes[0].Bytes)
	assert.NoError(t, outcomes[0].Err)
}

func TestStreamWriteTo(t *testing.T) {
	path, data := writeArtifact(t, 150*1024)
	s, err := OpenStream(context.Background(), path, StreamOptions{ChunkSize: 4096})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := s.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, buf.Bytes())
	assert.NoFileExists(t, path)
}

// A 10MB artifact cancelled after 3MB: delivery halts and the file is gone.
func TestStreamCancelMidTransfer(t *testing.T) {
	const total = 10 * 1024 * 1024
	path, _ := writeArtifact(t, total)
	rec := newOutcomeRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := OpenStream(ctx, path, StreamOptions{OnClose: rec.record})
	require.NoError(t, err)

	buf := make([]byte, 64*1024)
	var read int64
	for read < 3*1024*1024 {
		n, err := s.Read(buf)
		require.NoError(t, err)
		read += int64(n)
	}

	cancel()
	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not released after cancellation")
	}

	n, err := s.Read(buf)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.NoFileExists(t, path)

	entries, _ := os.ReadDir(filepath.Dir(path))
	assert.Empty(t, entries)

	outcomes := rec.all()
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Completed)
	assert.Equal(t, read, outcomes[0].Bytes)
	assert.ErrorIs(t, outcomes[0].Err, context.Canceled)
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	path, _ := writeArtifact(t, 1024)
	rec := newOutcomeRecorder()
	s, err := OpenStream(context.Background(), path, StreamOptions{OnClose: rec.record})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.NoFileExists(t, path)
	assert.Len(t, rec.all(), 1)
}

func TestStreamAlreadyCancelledContext(t *testing.T) {
	path, _ := writeArtifact(t, 1024)
	rec := newOutcomeRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := OpenStream(ctx, path, StreamOptions{OnClose: rec.record})
	require.NoError(t, err)

	<-rec.done
	_, err = s.Read(make([]byte, 10))
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.NoFileExists(t, path)
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("client went away")
	}
	w.after--
	return len(p), nil
}

func TestStreamWriteErrorReleases(t *testing.T) {
	path, _ := writeArtifact(t, 64*1024)
	rec := newOutcomeRecorder()
	s, err := OpenStream(context.Background(), path, StreamOptions{ChunkSize: 1024, OnClose: rec.record})
	require.NoError(t, err)

	n, err := s.WriteTo(&failingWriter{after: 3})
	assert.Error(t, err)
	assert.Equal(t, int64(3*1024), n)
	assert.NoFileExists(t, path)
	require.Len(t, rec.all(), 1)
	assert.False(t, rec.all()[0].Completed)
}

func TestOpenStreamMissingFile(t *testing.T) {
	_, err := OpenStream(context.Background(), filepath.Join(t.TempDir(), "gone"), StreamOptions{})
	assert.Error(t, err)
}
