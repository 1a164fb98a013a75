package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yourusername/media-fetch-go/internal/domain"
)

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}

func TestBuildToolArgs(t *testing.T) {
	tool := domain.ToolConfig{
		Retries:             5,
		FragmentRetries:     10,
		SocketTimeout:       20 * time.Second,
		ConcurrentFragments: 4,
		FFmpegLocation:      "/opt/ffmpeg",
		ExtraArgs:           []string{"--geo-bypass"},
	}
	plan := testPlanner().Plan(domain.DownloadRequest{Quality: "480"})

	args := BuildToolArgs(tool, AttemptArgs{
		URL:            "-https://example.com/v",
		Plan:           plan,
		OutputTemplate: "/tmp/mf-x.%(ext)s",
		CookiePath:     "/tmp/mf-x-cookies.txt",
		Proxy:          "socks5://127.0.0.1:1080",
	})

	assert.Equal(t, "--newline", args[0])
	assert.Equal(t, plan.Selector, args[indexOf(args, "-f")+1])
	assert.Equal(t, "/tmp/mf-x.%(ext)s", args[indexOf(args, "-o")+1])
	assert.Equal(t, "20", args[indexOf(args, "--socket-timeout")+1])
	assert.Equal(t, "4", args[indexOf(args, "--concurrent-fragments")+1])
	assert.Equal(t, "/tmp/mf-x-cookies.txt", args[indexOf(args, "--cookies")+1])
	assert.Equal(t, "socks5://127.0.0.1:1080", args[indexOf(args, "--proxy")+1])
	assert.Equal(t, "/opt/ffmpeg", args[indexOf(args, "--ffmpeg-location")+1])
	assert.Equal(t, "mp4", args[indexOf(args, "--merge-output-format")+1])
	assert.NotEqual(t, -1, indexOf(args, "--geo-bypass"))
	assert.Equal(t, []string{"--", "-https://example.com/v"}, args[len(args)-2:])
}

func TestBuildToolArgsOptionalsOmitted(t *testing.T) {
	plan := testPlanner().Plan(domain.DownloadRequest{Quality: "audio"})
	args := BuildToolArgs(domain.ToolConfig{}, AttemptArgs{URL: "u", Plan: plan, OutputTemplate: "o"})

	assert.Equal(t, -1, indexOf(args, "--cookies"))
	assert.Equal(t, -1, indexOf(args, "--proxy"))
	assert.Equal(t, -1, indexOf(args, "--retries"))
	assert.NotEqual(t, -1, indexOf(args, "-x"))
	assert.Equal(t, "u", args[len(args)-1])
}
