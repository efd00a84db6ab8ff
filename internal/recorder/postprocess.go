package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MicroDaWay/bilidash/internal/ffmpeg"
)

// Errors returned by post-processing.
var (
	// ErrConversionFailed indicates the finalize or merge subprocess
	// exited non-zero. The raw input is preserved.
	ErrConversionFailed = errors.New("conversion failed")

	// ErrEmptySelection indicates MergeSegments was called with no inputs.
	ErrEmptySelection = errors.New("no segments selected")
)

// PostProcessor converts raw transport-stream segments into finalized,
// directly playable MP4 files and concatenates finalized segments, always by
// stream copy.
type PostProcessor struct {
	client *ffmpeg.Client
	logger *slog.Logger
}

// NewPostProcessor creates a post-processor around the given FFmpeg client.
func NewPostProcessor(client *ffmpeg.Client, logger *slog.Logger) *PostProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostProcessor{client: client, logger: logger}
}

// Finalize converts one raw segment into its finalized counterpart and
// deletes the raw file on success. A failed deletion is logged and
// tolerated: the finalized file already exists and is the source of truth.
func (p *PostProcessor) Finalize(ctx context.Context, rawPath string) (string, error) {
	finalized := FinalizedPath(rawPath)

	if err := p.client.Finalize(rawPath, finalized).Run(ctx); err != nil {
		return "", fmt.Errorf("%w: finalizing %s: %v", ErrConversionFailed, filepath.Base(rawPath), err)
	}

	if err := os.Remove(rawPath); err != nil {
		p.logger.Warn("finalized segment but raw file deletion failed",
			slog.String("raw", rawPath),
			slog.String("error", err.Error()),
		)
	}

	p.logger.Info("segment finalized",
		slog.String("raw", rawPath),
		slog.String("finalized", finalized),
	)
	return finalized, nil
}

// MergeSegments losslessly concatenates the selected finalized segments into
// one output file. Ordering is by the part number embedded in each filename,
// sorted numerically so part10 follows part2. The concat manifest is a
// scoped temporary resource, removed regardless of outcome.
func (p *PostProcessor) MergeSegments(ctx context.Context, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", ErrEmptySelection
	}

	type numbered struct {
		path string
		part int
	}
	segments := make([]numbered, 0, len(paths))
	for _, p := range paths {
		part, err := PartNumber(p)
		if err != nil {
			return "", fmt.Errorf("ordering selection: %w", err)
		}
		segments = append(segments, numbered{path: p, part: part})
	}
	// Numeric order, not lexical: part10 must follow part2.
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].part < segments[j].part
	})
	ordered := make([]string, len(segments))
	for i, s := range segments {
		ordered[i] = s.path
	}

	dir := filepath.Dir(ordered[0])
	output := filepath.Join(dir, mergedName(ordered[0]))

	manifest, err := writeManifest(dir, ordered)
	if err != nil {
		return "", err
	}
	defer os.Remove(manifest)

	if err := p.client.Concat(manifest, output).Run(ctx); err != nil {
		return "", fmt.Errorf("%w: merging %d segments: %v", ErrConversionFailed, len(ordered), err)
	}

	p.logger.Info("segments merged",
		slog.Int("count", len(ordered)),
		slog.String("output", output),
	)
	return output, nil
}

// mergedName derives the merge output filename from the first segment's
// performer prefix.
func mergedName(firstSegment string) string {
	base := filepath.Base(firstSegment)
	performer := base
	if i := strings.Index(base, "_part"); i > 0 {
		performer = base[:i]
	} else {
		performer = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return fmt.Sprintf("%s_merged_%s%s", performer, time.Now().Format(timestampLayout), FinalizedExt)
}

// writeManifest writes the FFmpeg concat-demuxer manifest listing the inputs.
func writeManifest(dir string, paths []string) (string, error) {
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("creating concat manifest: %w", err)
	}

	var b strings.Builder
	for _, p := range paths {
		// Single quotes in the path would break the concat format.
		escaped := strings.ReplaceAll(p, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing concat manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing concat manifest: %w", err)
	}
	return f.Name(), nil
}
