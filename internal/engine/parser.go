package engine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// Fixed percentages for phases the tool reports without numbers
const (
	percentExtractingInfo  = 5
	percentMerging         = 90
	percentExtractingAudio = 88
)

var (
	percentPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)%` +
		`(?:\s+of\s+~?\s*(\d+(?:\.\d+)?)\s*([KMGT]i?B|B))?` +
		`(?:\s+at\s+(Unknown B/s|\S+))?` +
		`(?:\s+ETA\s+(\S+))?`)
	fragmentPattern = regexp.MustCompile(`(?i)total fragments:\s*\d+`)
)

var mergeMarkers = []string{"[Merger]", "[VideoRemuxer]", "[VideoConvertor]", "[FixupM3u8]"}

var audioMarkers = []string{"[ExtractAudio]"}

var infoMarkers = []string{
	"[info]",
	"Downloading webpage",
	"Extracting URL",
	"Downloading player",
	"Downloading JSON",
	"Downloading API JSON",
	"Downloading m3u8",
	"Downloading MPD manifest",
}

var sizeUnits = map[string]float64{
	"B":   1,
	"KB":  1000,
	"MB":  1000 * 1000,
	"GB":  1000 * 1000 * 1000,
	"TB":  1000 * 1000 * 1000 * 1000,
	"KiB": 1 << 10,
	"MiB": 1 << 20,
	"GiB": 1 << 30,
	"TiB": 1 << 40,
}

// ProgressParser maps raw tool lines onto the normalized progress model.
// It is stateless and safe for concurrent use.
type ProgressParser struct {
	low  float64
	high float64
}

// NewProgressParser creates a parser that maps the tool's 0-100% download
// progress onto [low, high] of overall progress
func NewProgressParser(low, high float64) *ProgressParser {
	if low < 0 || high > 100 || low >= high {
		low, high = 10, 85
	}
	return &ProgressParser{low: low, high: high}
}

// Parse returns the event derived from line, or false when the line carries
// no progress. Unrecognized lines are not errors.
func (p *ProgressParser) Parse(line string) (domain.ProgressEvent, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return domain.ProgressEvent{}, false
	}

	if strings.HasPrefix(line, "[download]") {
		if event, ok := p.parseDownload(line); ok {
			return event, true
		}
	}

	switch {
	case hasAnyMarker(line, mergeMarkers):
		return domain.ProgressEvent{Phase: domain.PhaseMerging, Percent: percentMerging, Message: "Merging streams"}, true
	case hasAnyMarker(line, audioMarkers):
		return domain.ProgressEvent{Phase: domain.PhaseExtractingAudio, Percent: percentExtractingAudio, Message: "Extracting audio"}, true
	case hasAnyMarker(line, infoMarkers):
		return domain.ProgressEvent{Phase: domain.PhaseExtractingInfo, Percent: percentExtractingInfo, Message: "Extracting media info"}, true
	case fragmentPattern.MatchString(line):
		return domain.ProgressEvent{Phase: domain.PhaseDownloading, Percent: p.low, Message: "Downloading fragments"}, true
	}

	return domain.ProgressEvent{}, false
}

func (p *ProgressParser) parseDownload(line string) (domain.ProgressEvent, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return domain.ProgressEvent{}, false
	}
	raw, err := strconv.ParseFloat(m[1], 64)
	if err != nil || raw > 100 {
		return domain.ProgressEvent{}, false
	}

	event := domain.ProgressEvent{
		Phase:   domain.PhaseDownloading,
		Percent: p.scale(raw),
		Message: "Downloading",
		Speed:   m[4],
		ETA:     m[5],
	}
	if m[2] != "" {
		event.TotalBytes = parseSize(m[2], m[3])
	}
	return event, true
}

// scale maps a raw 0-100 value into the download window
func (p *ProgressParser) scale(raw float64) float64 {
	return p.low + raw*(p.high-p.low)/100
}

func parseSize(value, unit string) int64 {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	mult, ok := sizeUnits[unit]
	if !ok {
		return 0
	}
	return int64(n * mult)
}

func hasAnyMarker(line string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}
