package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

func TestWriteFile_RemovesPartialOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")

	_, err := writeFile(path, func(w io.Writer) (int64, error) {
		n, _ := w.Write([]byte("partial"))
		return int64(n), io.ErrUnexpectedEOF
	})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".part")
}

func TestWriteFile_Renames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "out.mp3")

	n, err := writeFile(path, func(w io.Writer) (int64, error) {
		return io.Copy(w, strings.NewReader("data"))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "clip.mp4", outputPath("", "clip.mp4"))
	assert.Equal(t, filepath.Join(dir, "clip.mp4"), outputPath(dir, "clip.mp4"))
	assert.Equal(t, "named.mp4", outputPath("named.mp4", "clip.mp4"))
}

func TestDescribeFailure(t *testing.T) {
	err := describeFailure(domain.NewFetchError(domain.KindTimeout, 3, "", nil))
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "Suggestion:")

	assert.EqualError(t, describeFailure(domain.NewFetchError(domain.KindCancelled, 1, "", nil)), "cancelled")
}

func TestRenderHistory(t *testing.T) {
	out := renderHistory([]*domain.HistoryRecord{
		{URL: "https://example.com/a", Format: "720p mp4", Success: true, Attempts: 1, SizeBytes: 3 << 20, CreatedAt: time.Now()},
		{URL: "https://example.com/b", Success: false, ErrorKind: domain.KindTimeout, Attempts: 3, CreatedAt: time.Now()},
	})
	assert.Contains(t, out, "720p mp4")
	assert.Contains(t, out, "3.0 MiB")
	assert.Contains(t, out, "timeout")
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "2.0 GiB", humanBytes(2<<30))
}
