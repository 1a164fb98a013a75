package app

import (
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/media-fetch-go/internal/domain"
)

func TestPreflight_OK(t *testing.T) {
	config := domain.DefaultConfig()
	config.Tool.Binary = "/bin/sh"
	config.Fetch.TempDir = filepath.Join(t.TempDir(), "tmp")

	assert.NoError(t, Preflight(config))
	assert.DirExists(t, config.Fetch.TempDir)
}

func TestPreflight_ReportsEveryProblem(t *testing.T) {
	config := domain.DefaultConfig()
	config.Tool.Binary = "definitely-not-a-real-tool-binary"
	config.Tool.FFmpegLocation = filepath.Join(t.TempDir(), "missing-ffmpeg")
	config.Fetch.TempDir = filepath.Join(t.TempDir(), "tmp")

	err := Preflight(config)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
}
