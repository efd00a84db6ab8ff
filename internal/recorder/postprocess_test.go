package recorder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MicroDaWay/bilidash/internal/ffmpeg"
)

// stubTranscoder writes an executable shell script standing in for the real
// binary and returns a client bound to it.
func stubTranscoder(t *testing.T, script string) *ffmpeg.Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	client, err := ffmpeg.NewClient(path)
	require.NoError(t, err)
	return client
}

// touchLastArg creates the output file the way a successful stream copy would.
const touchLastArg = `for a in "$@"; do last="$a"; done
touch "$last"`

func TestFinalize_DeletesRawOnSuccess(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "alice_part1_2026_01_02_03_04_05.ts")
	require.NoError(t, os.WriteFile(raw, []byte("ts data"), 0644))

	post := NewPostProcessor(stubTranscoder(t, touchLastArg), nil)
	finalized, err := post.Finalize(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, FinalizedPath(raw), finalized)
	assert.FileExists(t, finalized)
	assert.NoFileExists(t, raw)
}

func TestFinalize_KeepsRawOnFailure(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "alice_part1_2026_01_02_03_04_05.ts")
	require.NoError(t, os.WriteFile(raw, []byte("ts data"), 0644))

	post := NewPostProcessor(stubTranscoder(t, "exit 1"), nil)
	_, err := post.Finalize(context.Background(), raw)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrConversionFailed)
	assert.FileExists(t, raw)
}

func TestMergeSegments_EmptySelection(t *testing.T) {
	post := NewPostProcessor(stubTranscoder(t, touchLastArg), nil)
	_, err := post.MergeSegments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptySelection)
}

func TestMergeSegments_NumericOrdering(t *testing.T) {
	dir := t.TempDir()
	parts := []string{
		filepath.Join(dir, "alice_part2_2026_01_02_03_04_05.mp4"),
		filepath.Join(dir, "alice_part10_2026_01_02_03_04_05.mp4"),
		filepath.Join(dir, "alice_part1_2026_01_02_03_04_05.mp4"),
	}
	for _, p := range parts {
		require.NoError(t, os.WriteFile(p, []byte("mp4"), 0644))
	}

	// The stub copies the concat manifest aside before "merging" so the
	// input order handed to the concat step can be asserted.
	manifestCopy := filepath.Join(t.TempDir(), "manifest.txt")
	t.Setenv("MANIFEST_COPY", manifestCopy)
	script := `manifest=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then manifest="$a"; fi
  prev="$a"
  last="$a"
done
cp "$manifest" "$MANIFEST_COPY"
touch "$last"`

	post := NewPostProcessor(stubTranscoder(t, script), nil)
	merged, err := post.MergeSegments(context.Background(), parts)
	require.NoError(t, err)
	assert.FileExists(t, merged)
	assert.Contains(t, filepath.Base(merged), "alice_merged_")

	data, err := os.ReadFile(manifestCopy)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "_part1_")
	assert.Contains(t, lines[1], "_part2_")
	assert.Contains(t, lines[2], "_part10_")
}

func TestMergeSegments_ManifestRemovedOnFailure(t *testing.T) {
	dir := t.TempDir()
	seg := filepath.Join(dir, "alice_part1_2026_01_02_03_04_05.mp4")
	require.NoError(t, os.WriteFile(seg, []byte("mp4"), 0644))

	post := NewPostProcessor(stubTranscoder(t, "exit 1"), nil)
	_, err := post.MergeSegments(context.Background(), []string{seg})
	require.ErrorIs(t, err, ErrConversionFailed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "concat-", "manifest should be cleaned up")
	}
}

func TestMergeSegments_RejectsUnparseableName(t *testing.T) {
	dir := t.TempDir()
	seg := filepath.Join(dir, "not-a-segment.mp4")
	require.NoError(t, os.WriteFile(seg, []byte("mp4"), 0644))

	post := NewPostProcessor(stubTranscoder(t, touchLastArg), nil)
	_, err := post.MergeSegments(context.Background(), []string{seg})
	assert.Error(t, err)
}

func TestRecoverOrphans_FinalizesOnce(t *testing.T) {
	dir := t.TempDir()
	orphan := filepath.Join(dir, "alice_part3_2026_01_02_03_04_05.ts")
	require.NoError(t, os.WriteFile(orphan, []byte("ts data"), 0644))

	post := NewPostProcessor(stubTranscoder(t, touchLastArg), nil)

	recovered, err := RecoverOrphans(context.Background(), dir, post, nil)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.FileExists(t, FinalizedPath(orphan))
	assert.NoFileExists(t, orphan)

	// Second sweep is a no-op: the finalized counterpart already exists.
	recovered, err = RecoverOrphans(context.Background(), dir, post, nil)
	require.NoError(t, err)
	assert.Empty(t, recovered)
}

func TestRecoverOrphans_SkipsAlreadyFinalized(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "alice_part1_2026_01_02_03_04_05.ts")
	require.NoError(t, os.WriteFile(raw, []byte("ts data"), 0644))
	require.NoError(t, os.WriteFile(FinalizedPath(raw), []byte("mp4"), 0644))

	post := NewPostProcessor(stubTranscoder(t, "exit 1"), nil)
	recovered, err := RecoverOrphans(context.Background(), dir, post, nil)
	require.NoError(t, err)
	assert.Empty(t, recovered)
}

func TestRecoverOrphans_MissingDirectory(t *testing.T) {
	post := NewPostProcessor(stubTranscoder(t, touchLastArg), nil)
	recovered, err := RecoverOrphans(context.Background(), filepath.Join(t.TempDir(), "absent"), post, nil)
	assert.NoError(t, err)
	assert.Empty(t, recovered)
}
