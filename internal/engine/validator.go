package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/yourusername/media-fetch-go/internal/domain"
)

// Rejection reasons
const (
	ReasonMissingOutput = "missing-output"
	ReasonTooSmall      = "too-small"
	ReasonSizeMismatch  = "size-mismatch"
	ReasonNotMedia      = "not-media"
)

// Ratio bands applied when an expected size is known
const (
	innerBandLow  = 0.5
	innerBandHigh = 2.0
	outerBandLow  = 0.1
	outerBandHigh = 5.0
)

const sniffLength = 512

// Verdict is the result of validating an artifact
type Verdict struct {
	Accepted bool
	Reason   string // set when rejected
	Warning  string // set when accepted outside the inner tolerance band
	Size     int64
}

func (v Verdict) String() string {
	if v.Accepted {
		if v.Warning != "" {
			return "accepted (" + v.Warning + ")"
		}
		return "accepted"
	}
	return "rejected: " + v.Reason
}

// ArtifactValidator performs cheap, read-only checks on a finished artifact
type ArtifactValidator struct {
	audioFloor int64
	videoFloor int64
}

// NewArtifactValidator creates a validator with per-kind size floors
func NewArtifactValidator(audioFloor, videoFloor int64) *ArtifactValidator {
	return &ArtifactValidator{audioFloor: audioFloor, videoFloor: videoFloor}
}

// Validate checks the file at path. expected is the size hint in bytes, 0 when unknown.
func (v *ArtifactValidator) Validate(path string, expected int64, kind domain.MediaKind) Verdict {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Verdict{Reason: ReasonMissingOutput}
	}

	size := info.Size()
	if size < v.floor(kind) {
		return Verdict{Reason: ReasonTooSmall, Size: size}
	}

	if expected > 0 {
		return checkRatio(size, expected)
	}

	if looksLikeText(path) {
		return Verdict{Reason: ReasonNotMedia, Size: size}
	}
	return Verdict{Accepted: true, Size: size}
}

func (v *ArtifactValidator) floor(kind domain.MediaKind) int64 {
	if kind == domain.MediaAudio {
		return v.audioFloor
	}
	return v.videoFloor
}

// checkRatio applies the inner and outer tolerance bands. Bounds are inclusive.
func checkRatio(size, expected int64) Verdict {
	ratio := float64(size) / float64(expected)
	switch {
	case ratio >= innerBandLow && ratio <= innerBandHigh:
		return Verdict{Accepted: true, Size: size}
	case ratio >= outerBandLow && ratio <= outerBandHigh:
		return Verdict{
			Accepted: true,
			Size:     size,
			Warning:  fmt.Sprintf("size %d is %.2fx the expected %d", size, ratio, expected),
		}
	default:
		return Verdict{Reason: ReasonSizeMismatch, Size: size}
	}
}

// minTextPrefix is how many leading printable bytes mark a body as text when
// the detector only sees an opaque binary
const minTextPrefix = 16

// looksLikeText reports whether the file is an error page, API response or
// other text instead of a media container. Unknown binary types pass.
func looksLikeText(path string) bool {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	if isMediaType(mtype) {
		return false
	}
	if isTextType(mtype) {
		return true
	}

	head, err := readHead(path, sniffLength)
	if err != nil {
		return false
	}
	return printablePrefix(head) >= minTextPrefix
}

func isMediaType(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "video/") || strings.HasPrefix(s, "audio/") || m.Is("application/ogg") {
			return true
		}
	}
	return false
}

func isTextType(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") || m.Is("application/json") || m.Is("application/xml") {
			return true
		}
	}
	return false
}

// printablePrefix counts the leading printable ASCII bytes after any BOM and
// leading whitespace
func printablePrefix(head []byte) int {
	head = bytes.TrimLeft(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")), " \t\r\n")
	n := 0
	for _, b := range head {
		if (b < 0x20 || b > 0x7e) && b != '\t' && b != '\r' && b != '\n' {
			break
		}
		n++
	}
	return n
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:read], nil
}
