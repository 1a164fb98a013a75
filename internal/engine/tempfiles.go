package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// partialSuffixes mark files the tool leaves behind mid-download
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

var formatFragment = regexp.MustCompile(`\.f[0-9A-Za-z-]+\.[A-Za-z0-9]+$`)

// TempAllocator hands out attempt-scoped file namespaces in one directory
type TempAllocator struct {
	dir string
}

// NewTempAllocator creates an allocator rooted at dir
func NewTempAllocator(dir string) *TempAllocator {
	return &TempAllocator{dir: dir}
}

// Dir returns the root directory
func (a *TempAllocator) Dir() string {
	return a.dir
}

// AttemptFiles is the namespace owned by one attempt. Every file the attempt
// creates starts with Stem.
type AttemptFiles struct {
	Stem       string
	CookiePath string
}

// Allocate reserves a fresh namespace. Names embed a random UUID so no two
// attempts, even across unrelated requests, can collide.
func (a *TempAllocator) Allocate(correlationID string, attempt int) (*AttemptFiles, error) {
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	id := unsafeNameChars.ReplaceAllString(correlationID, "")
	if len(id) > 36 {
		id = id[:36]
	}
	name := fmt.Sprintf("mf-%s-%d-%s", id, attempt, uuid.New().String())
	return &AttemptFiles{Stem: filepath.Join(a.dir, name)}, nil
}

// OutputTemplate is the tool's -o value
func (f *AttemptFiles) OutputTemplate() string {
	return f.Stem + ".%(ext)s"
}

// CopyCookies copies the provider's cookie file into the attempt namespace so
// the tool never rewrites the provider's copy
func (f *AttemptFiles) CopyCookies(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer in.Close()

	dst := f.Stem + "-cookies.txt"
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create cookie copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to copy cookie file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to copy cookie file: %w", err)
	}

	f.CookiePath = dst
	return dst, nil
}

// Locate finds the finished artifact: <stem>.<container> if present, otherwise
// the largest complete file in the namespace
func (f *AttemptFiles) Locate(container string) (string, error) {
	preferred := f.Stem + "." + container
	if info, err := os.Stat(preferred); err == nil && !info.IsDir() {
		return preferred, nil
	}

	matches, err := f.list(".")
	if err != nil {
		return "", err
	}

	var best string
	var bestSize int64 = -1
	for _, m := range matches {
		if isPartial(m) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = m, info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no output file for %s", filepath.Base(f.Stem))
	}
	return best, nil
}

// Cleanup removes every file of the namespace except keep
func (f *AttemptFiles) Cleanup(keep string) error {
	matches, err := f.list("")
	if err != nil {
		return err
	}

	var result error
	for _, m := range matches {
		if m == keep {
			continue
		}
		if err := os.RemoveAll(m); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Files lists what currently exists in the namespace
func (f *AttemptFiles) Files() []string {
	matches, _ := f.list("")
	return matches
}

// list returns the paths in the stem's directory whose names start with the
// stem's base name followed by sep. The directory is read rather than globbed
// so metacharacters in the temp dir path are taken literally.
func (f *AttemptFiles) list(sep string) ([]string, error) {
	dir, prefix := filepath.Dir(f.Stem), filepath.Base(f.Stem)+sep
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list attempt files: %w", err)
	}

	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}
	return matches, nil
}

func isPartial(path string) bool {
	for _, s := range partialSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return formatFragment.MatchString(filepath.Base(path))
}
