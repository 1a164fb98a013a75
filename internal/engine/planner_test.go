package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/media-fetch-go/internal/domain"
)

func testPlanner() *Planner {
	return NewPlanner(domain.DefaultConfig().Fetch)
}

func TestPlanAudioOnly(t *testing.T) {
	plan := testPlanner().Plan(domain.DownloadRequest{URL: "https://example.com/v", Quality: "audio", Extension: "mp3"})

	assert.True(t, plan.AudioOnly)
	assert.False(t, plan.NeedsMerge)
	assert.Equal(t, "mp3", plan.Container)
	assert.Equal(t, "audio/mpeg", plan.ContentType)
	assert.Equal(t, domain.MediaAudio, plan.MediaKind())
	assert.Equal(t, []string{"-x", "--audio-format", "mp3", "--audio-quality", "0"}, plan.PostArgs)
}

func TestPlanDefaultIsBounded(t *testing.T) {
	plan := testPlanner().Plan(domain.DownloadRequest{URL: "https://example.com/v"})

	assert.Equal(t, 720, plan.Height)
	assert.True(t, plan.NeedsMerge)
	assert.Equal(t, "video/mp4", plan.ContentType)
	assert.Equal(t,
		"bv*[height<=720][vcodec^=avc1][ext=mp4]+ba[ext=m4a]/bv*[height<=720][ext=mp4]+ba[ext=m4a]/bv*[height<=720]+ba/bv*[height<=1080]+ba/b",
		plan.Selector)
	assert.Contains(t, plan.PostArgs, "Merger+ffmpeg_o:-c:v copy -c:a aac")
}

func TestPlanChainRelaxesOneConstraintAtATime(t *testing.T) {
	plan := testPlanner().Plan(domain.DownloadRequest{Quality: "480"})
	alternatives := strings.Split(plan.Selector, "/")

	require.Len(t, alternatives, 5)
	assert.Contains(t, alternatives[0], "[vcodec^=avc1]")
	assert.NotContains(t, alternatives[1], "vcodec")
	assert.Contains(t, alternatives[1], "[ext=mp4]")
	assert.Equal(t, "bv*[height<=480]+ba", alternatives[2])
	assert.Equal(t, "bv*[height<=1080]+ba", alternatives[3])
	assert.Equal(t, "b", alternatives[4])
}

func TestPlanBestKeepsCeilingFallback(t *testing.T) {
	plan := testPlanner().Plan(domain.DownloadRequest{Quality: "best"})
	alternatives := strings.Split(plan.Selector, "/")

	assert.Equal(t, "bv*[vcodec^=avc1][ext=mp4]+ba[ext=m4a]", alternatives[0])
	assert.Contains(t, plan.Selector, "[height<=1080]")
	assert.Greater(t, len(alternatives), 1)
}

func TestPlanHeightClampedToMax(t *testing.T) {
	plan := testPlanner().Plan(domain.DownloadRequest{Quality: "2160p"})
	assert.Equal(t, 1080, plan.Height)
	assert.NotContains(t, plan.Selector, "2160")
}

func TestPlanFormatID(t *testing.T) {
	plan := testPlanner().Plan(domain.DownloadRequest{FormatID: "137", Quality: "360"})
	assert.True(t, strings.HasPrefix(plan.Selector, "137+ba[ext=m4a]/137/"))
	assert.True(t, plan.NeedsMerge)
}

func TestPlanContainers(t *testing.T) {
	tests := []struct {
		ext         string
		container   string
		contentType string
		audioCodec  string
	}{
		{"webm", "webm", "video/webm", "libopus"},
		{"mkv", "mkv", "video/x-matroska", "aac"},
		{"avi", "mp4", "video/mp4", "aac"},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			plan := testPlanner().Plan(domain.DownloadRequest{Extension: tt.ext})
			assert.Equal(t, tt.container, plan.Container)
			assert.Equal(t, tt.contentType, plan.ContentType)
			assert.Contains(t, plan.PostArgs, "Merger+ffmpeg_o:-c:v copy -c:a "+tt.audioCodec)
			assert.NotContains(t, plan.Selector, "//")
		})
	}
}

func TestPlanAudioContainers(t *testing.T) {
	tests := map[string]string{
		"m4a":  "audio/mp4",
		"opus": "audio/ogg",
		"flac": "audio/flac",
		"wav":  "audio/wav",
	}
	for ext, contentType := range tests {
		plan := testPlanner().Plan(domain.DownloadRequest{Extension: ext})
		assert.True(t, plan.AudioOnly, ext)
		assert.Equal(t, contentType, plan.ContentType, ext)
	}
}

// Every fallback sequence must strictly decrease in cost and never repeat a selector.
func TestFallbacksStrictlyCheaper(t *testing.T) {
	requests := []domain.DownloadRequest{
		{},
		{Quality: "best"},
		{Quality: "1080"},
		{Quality: "480"},
		{Quality: "144"},
		{FormatID: "22"},
		{Quality: "audio"},
		{Extension: "webm", Quality: "720"},
		{Extension: "mkv"},
	}

	p := testPlanner()
	for _, req := range requests {
		original := p.Plan(req)
		sequence := append([]domain.FormatPlan{original}, p.Fallbacks(original)...)

		seen := map[string]bool{}
		for i, plan := range sequence {
			assert.False(t, seen[plan.Selector], "selector repeated: %s", plan.Selector)
			seen[plan.Selector] = true
			if i > 0 {
				assert.Less(t, plan.Cost, sequence[i-1].Cost, "fallback %d for %+v", i, req)
			}
		}
		assert.Greater(t, len(sequence), 1, "%+v has no fallbacks", req)
	}
}

func TestFallbacksDefaultVideo(t *testing.T) {
	p := testPlanner()
	fallbacks := p.Fallbacks(p.Plan(domain.DownloadRequest{}))

	require.Len(t, fallbacks, 3)
	assert.Equal(t, 480, fallbacks[0].Height)
	assert.Equal(t, 360, fallbacks[1].Height)
	assert.Equal(t, "b", fallbacks[2].Selector)
	assert.False(t, fallbacks[2].NeedsMerge)
}

func TestFallbacksAudio(t *testing.T) {
	p := testPlanner()
	fallbacks := p.Fallbacks(p.Plan(domain.DownloadRequest{Extension: "m4a"}))

	require.Len(t, fallbacks, 2)
	for _, f := range fallbacks {
		assert.True(t, f.AudioOnly)
		assert.Equal(t, "m4a", f.Container)
	}
}
