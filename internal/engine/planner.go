package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// containerProfile describes how a video container is selected and merged
type containerProfile struct {
	videoCodec  string // required codec prefix for the most specific alternative
	videoExt    string // stream extension constraint, empty for none
	audioExt    string
	audioCodec  string // ffmpeg encoder used when merging
	contentType string
}

var videoContainers = map[string]containerProfile{
	"mp4":  {videoCodec: "avc1", videoExt: "mp4", audioExt: "m4a", audioCodec: "aac", contentType: "video/mp4"},
	"webm": {videoCodec: "vp9", videoExt: "webm", audioExt: "webm", audioCodec: "libopus", contentType: "video/webm"},
	"mkv":  {videoCodec: "avc1", audioCodec: "aac", contentType: "video/x-matroska"},
}

type audioProfile struct {
	format      string // --audio-format value
	contentType string
}

var audioContainers = map[string]audioProfile{
	"mp3":  {format: "mp3", contentType: "audio/mpeg"},
	"m4a":  {format: "m4a", contentType: "audio/mp4"},
	"aac":  {format: "aac", contentType: "audio/aac"},
	"opus": {format: "opus", contentType: "audio/ogg"},
	"ogg":  {format: "vorbis", contentType: "audio/ogg"},
	"wav":  {format: "wav", contentType: "audio/wav"},
	"flac": {format: "flac", contentType: "audio/flac"},
}

// Costs order plans across retries. Video plans cost ten per line of
// resolution ceiling, merged plans cost slightly more than unmerged ones.
const (
	costAnything   = 1
	costMergeExtra = 5
	costAudioBest  = 30
	costAudioLow   = 20
	costAudioWorst = 10
)

// Planner turns a request's quality intent into format plans. It does no I/O.
type Planner struct {
	defaultHeight   int
	maxHeight       int
	fallbackHeights []int
}

// NewPlanner creates a planner from the fetch policy
func NewPlanner(cfg domain.FetchConfig) *Planner {
	heights := make([]int, 0, len(cfg.FallbackHeights))
	seen := make(map[int]bool)
	for _, h := range cfg.FallbackHeights {
		if h > 0 && !seen[h] {
			seen[h] = true
			heights = append(heights, h)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	p := &Planner{
		defaultHeight:   cfg.DefaultHeight,
		maxHeight:       cfg.MaxHeight,
		fallbackHeights: heights,
	}
	if p.maxHeight <= 0 {
		p.maxHeight = 1080
	}
	if p.defaultHeight <= 0 || p.defaultHeight > p.maxHeight {
		p.defaultHeight = p.maxHeight
	}
	return p
}

// Plan computes the original plan for a request
func (p *Planner) Plan(req domain.DownloadRequest) domain.FormatPlan {
	req = req.WithDefaults()
	q := req.ParseQuality()

	if q.Kind == domain.QualityAudio {
		return p.audioPlan(req.Extension, "ba/b", costAudioBest, "best audio")
	}

	ext, profile := videoProfile(req.Extension)

	switch q.Kind {
	case domain.QualityBest:
		unbounded := profile.alternative(0, true, true)
		plan := p.videoPlan(ext, profile, p.maxHeight)
		plan.Selector = unbounded + "/" + plan.Selector
		plan.Height = 0
		plan.Cost = (p.maxHeight+1)*10 + costMergeExtra
		plan.Label = "best"
		return plan
	case domain.QualityFormatID:
		plan := p.videoPlan(ext, profile, p.defaultHeight)
		audio := "ba"
		if profile.audioExt != "" {
			audio = fmt.Sprintf("ba[ext=%s]", profile.audioExt)
		}
		plan.Selector = fmt.Sprintf("%s+%s/%s/%s", q.FormatID, audio, q.FormatID, plan.Selector)
		plan.Cost++
		plan.Label = "format " + q.FormatID
		return plan
	case domain.QualityHeight:
		h := q.Height
		if h > p.maxHeight {
			h = p.maxHeight
		}
		return p.videoPlan(ext, profile, h)
	default:
		return p.videoPlan(ext, profile, p.defaultHeight)
	}
}

// Fallbacks returns the retry sequence that follows original. Every entry is
// strictly cheaper than the one before it and no selector repeats.
func (p *Planner) Fallbacks(original domain.FormatPlan) []domain.FormatPlan {
	var candidates []domain.FormatPlan

	if original.AudioOnly {
		candidates = []domain.FormatPlan{
			p.audioPlan(original.Container, "ba[abr<=128]/wa", costAudioLow, "low bitrate audio"),
			p.audioPlan(original.Container, "wa/w", costAudioWorst, "worst audio"),
		}
	} else {
		ext, profile := videoProfile(original.Container)
		for _, h := range p.fallbackHeights {
			candidates = append(candidates, p.videoPlan(ext, profile, h))
		}
		candidates = append(candidates, p.anythingPlan(ext, profile))
	}

	fallbacks := make([]domain.FormatPlan, 0, len(candidates))
	lastCost := original.Cost
	seen := map[string]bool{original.Selector: true}
	for _, c := range candidates {
		if c.Cost >= lastCost || seen[c.Selector] {
			continue
		}
		seen[c.Selector] = true
		lastCost = c.Cost
		fallbacks = append(fallbacks, c)
	}
	return fallbacks
}

func (p *Planner) videoPlan(ext string, profile containerProfile, height int) domain.FormatPlan {
	alternatives := []string{
		profile.alternative(height, true, true),
		profile.alternative(height, false, true),
		profile.alternative(height, false, false),
	}
	if height < p.maxHeight {
		alternatives = append(alternatives, profile.alternative(p.maxHeight, false, false))
	}
	alternatives = append(alternatives, "b")

	return domain.FormatPlan{
		Selector:    joinAlternatives(alternatives),
		Container:   ext,
		ContentType: profile.contentType,
		NeedsMerge:  true,
		Height:      height,
		PostArgs:    mergeArgs(ext, profile),
		Cost:        height*10 + costMergeExtra,
		Label:       fmt.Sprintf("%dp %s", height, ext),
	}
}

func (p *Planner) anythingPlan(ext string, profile containerProfile) domain.FormatPlan {
	return domain.FormatPlan{
		Selector:    "b",
		Container:   ext,
		ContentType: profile.contentType,
		PostArgs:    []string{"--remux-video", ext},
		Cost:        costAnything,
		Label:       "any single file",
	}
}

func (p *Planner) audioPlan(ext, selector string, cost int, label string) domain.FormatPlan {
	ext = domain.NormalizeExtension(ext)
	profile, ok := audioContainers[ext]
	if !ok {
		ext = "mp3"
		profile = audioContainers[ext]
	}
	return domain.FormatPlan{
		Selector:    selector,
		Container:   ext,
		ContentType: profile.contentType,
		AudioOnly:   true,
		PostArgs:    []string{"-x", "--audio-format", profile.format, "--audio-quality", "0"},
		Cost:        cost,
		Label:       fmt.Sprintf("%s %s", label, ext),
	}
}

// alternative renders one "video+audio" selection. height 0 means unbounded.
func (c containerProfile) alternative(height int, withCodec, withExt bool) string {
	var b strings.Builder
	b.WriteString("bv*")
	if height > 0 {
		fmt.Fprintf(&b, "[height<=%d]", height)
	}
	if withCodec && c.videoCodec != "" {
		fmt.Fprintf(&b, "[vcodec^=%s]", c.videoCodec)
	}
	if withExt && c.videoExt != "" {
		fmt.Fprintf(&b, "[ext=%s]", c.videoExt)
	}
	b.WriteString("+ba")
	if withExt && c.audioExt != "" {
		fmt.Fprintf(&b, "[ext=%s]", c.audioExt)
	}
	return b.String()
}

func videoProfile(ext string) (string, containerProfile) {
	ext = domain.NormalizeExtension(ext)
	profile, ok := videoContainers[ext]
	if !ok {
		ext = "mp4"
		profile = videoContainers[ext]
	}
	return ext, profile
}

func mergeArgs(ext string, profile containerProfile) []string {
	return []string{
		"--merge-output-format", ext,
		"--remux-video", ext,
		"--postprocessor-args", "Merger+ffmpeg_o:-c:v copy -c:a " + profile.audioCodec,
	}
}

// joinAlternatives joins selection alternatives with "/", dropping duplicates
func joinAlternatives(alternatives []string) string {
	seen := make(map[string]bool, len(alternatives))
	out := make([]string, 0, len(alternatives))
	for _, a := range alternatives {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return strings.Join(out, "/")
}
