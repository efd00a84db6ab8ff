package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_SegmentPath(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	l := NewLayout("/rec", "alice", start)

	assert.Equal(t, "/rec/alice_part1_2026_01_02_03_04_05.ts", l.SegmentPath(1))
	assert.Equal(t, "/rec/alice_part12_2026_01_02_03_04_05.ts", l.SegmentPath(12))
}

func TestLayout_RoundTrip(t *testing.T) {
	start := time.Date(2026, 5, 6, 7, 8, 9, 0, time.Local)
	l := NewLayout("/rec", "bob", start)

	for _, part := range []int{1, 2, 9, 10, 11, 123} {
		raw := l.SegmentPath(part)
		assert.Equal(t, "/rec", filepath.Dir(raw))

		got, err := PartNumber(raw)
		require.NoError(t, err)
		assert.Equal(t, part, got)

		final := FinalizedPath(raw)
		assert.Equal(t, filepath.Dir(raw), filepath.Dir(final))
		got, err = PartNumber(final)
		require.NoError(t, err)
		assert.Equal(t, part, got)
	}
}

func TestFinalizedPath(t *testing.T) {
	assert.Equal(t, "/rec/a_part1_x.mp4", FinalizedPath("/rec/a_part1_x.ts"))
}

func TestPartNumber_Invalid(t *testing.T) {
	_, err := PartNumber("/rec/not-a-segment.ts")
	assert.Error(t, err)
}

func TestLayout_EnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "recordings")
	l := NewLayout(dir, "alice", time.Now())

	require.NoError(t, l.EnsureDir())
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent.
	assert.NoError(t, l.EnsureDir())
}

func TestSanitizeName(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local)

	l := NewLayout("/rec", "a/b\\c", start)
	assert.Equal(t, "a-b-c", l.Performer)

	l = NewLayout("/rec", "  ", start)
	assert.Equal(t, "unknown", l.Performer)
}

func TestClassifyDiagnosticLine(t *testing.T) {
	tests := []struct {
		line string
		want Diagnostic
	}{
		{"[https @ 0x55] HTTP error 403 Forbidden", DiagnosticExpired},
		{"[hls @ 0x55] Failed to reload playlist 0", DiagnosticExpired},
		{"frame= 1234 fps= 30 q=-1.0 size=  10240KiB", DiagnosticUnrelated},
		{"", DiagnosticUnrelated},
		{"[hls @ 0x55] Opening 'segment42.ts' for reading", DiagnosticUnrelated},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyDiagnosticLine(tt.line), tt.line)
	}
}
