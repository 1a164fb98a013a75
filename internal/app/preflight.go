package app

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/hashicorp/go-multierror"
	"github.com/yourusername/media-fetch-go/internal/domain"
	"golang.org/x/sys/unix"
)

// Preflight checks that the tool can be found and the temp directory is
// writable. Every problem found is reported, not only the first.
func Preflight(config *domain.Config) error {
	var result *multierror.Error

	if _, err := exec.LookPath(config.Tool.Binary); err != nil {
		result = multierror.Append(result, fmt.Errorf("tool binary %q not found: %w", config.Tool.Binary, err))
	}

	if config.Tool.FFmpegLocation != "" {
		if _, err := os.Stat(config.Tool.FFmpegLocation); err != nil {
			result = multierror.Append(result, fmt.Errorf("ffmpeg location: %w", err))
		}
	}

	if err := os.MkdirAll(config.Fetch.TempDir, 0755); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to create temp directory: %w", err))
	} else if err := unix.Access(config.Fetch.TempDir, unix.W_OK|unix.X_OK); err != nil {
		result = multierror.Append(result, fmt.Errorf("temp directory %s is not writable: %w", config.Fetch.TempDir, err))
	}

	return result.ErrorOrNil()
}
