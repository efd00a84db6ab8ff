package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// File extensions for capture output.
const (
	RawExt       = ".ts"
	FinalizedExt = ".mp4"
)

// timestampLayout formats the session start time embedded in segment names.
const timestampLayout = "2006_01_02_15_04_05"

// partPattern extracts the part number embedded in a segment filename.
// Segment names look like <performer>_part<N>_<timestamp><ext>; the part
// number is the serialization format merge ordering depends on, so the same
// pattern backs both naming and parsing.
var partPattern = regexp.MustCompile(`_part(\d+)_`)

// Layout derives deterministic output paths for one capture session.
// It is a pure value: performer name and session start time are fixed at
// session start, and the part number selects the segment within the session.
type Layout struct {
	Dir       string
	Performer string
	StartedAt time.Time
}

// NewLayout creates a layout for a capture session starting now.
func NewLayout(dir, performer string, startedAt time.Time) Layout {
	return Layout{Dir: dir, Performer: sanitizeName(performer), StartedAt: startedAt}
}

// SegmentPath returns the raw segment path for the given part number.
func (l Layout) SegmentPath(part int) string {
	name := fmt.Sprintf("%s_part%d_%s%s", l.Performer, part, l.StartedAt.Format(timestampLayout), RawExt)
	return filepath.Join(l.Dir, name)
}

// EnsureDir creates the output directory if absent.
func (l Layout) EnsureDir() error {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", l.Dir, err)
	}
	return nil
}

// FinalizedPath derives the finalized-container path from a raw segment path
// by extension substitution.
func FinalizedPath(rawPath string) string {
	return strings.TrimSuffix(rawPath, RawExt) + FinalizedExt
}

// PartNumber parses the part number embedded in a segment filename.
// Returns an error if the name does not follow the segment naming scheme.
func PartNumber(path string) (int, error) {
	m := partPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, fmt.Errorf("no part number in segment name %q", filepath.Base(path))
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("parsing part number in %q: %w", filepath.Base(path), err)
	}
	return n, nil
}

// sanitizeName strips path separators and whitespace from a performer name
// so it is always safe as a filename component.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	replacer := strings.NewReplacer("/", "-", "\\", "-", string(filepath.Separator), "-")
	name = replacer.Replace(name)
	if name == "" {
		name = "unknown"
	}
	return name
}
