package engine

import (
	"strconv"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// AttemptArgs are the per-attempt inputs to the tool command line
type AttemptArgs struct {
	URL            string
	Plan           domain.FormatPlan
	OutputTemplate string
	CookiePath     string // attempt-scoped copy, empty when none
	Proxy          string
}

// BuildToolArgs renders the extraction tool's argument list. The URL always
// comes last, after "--", so a hostile URL cannot be read as an option.
func BuildToolArgs(tool domain.ToolConfig, a AttemptArgs) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"--no-mtime",
		"-f", a.Plan.Selector,
		"-o", a.OutputTemplate,
	}

	if tool.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(tool.Retries))
	}
	if tool.FragmentRetries > 0 {
		args = append(args, "--fragment-retries", strconv.Itoa(tool.FragmentRetries))
	}
	if tool.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(tool.SocketTimeout.Seconds())))
	}
	if tool.ConcurrentFragments > 0 {
		args = append(args, "--concurrent-fragments", strconv.Itoa(tool.ConcurrentFragments))
	}
	if a.CookiePath != "" {
		args = append(args, "--cookies", a.CookiePath)
	}
	if a.Proxy != "" {
		args = append(args, "--proxy", a.Proxy)
	}
	if tool.FFmpegLocation != "" {
		args = append(args, "--ffmpeg-location", tool.FFmpegLocation)
	}

	args = append(args, a.Plan.PostArgs...)
	args = append(args, tool.ExtraArgs...)
	return append(args, "--", a.URL)
}
