package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MicroDaWay/bilidash/internal/ffmpeg"
)

// Capture scripts used by the fake launcher. Each receives the segment path
// as $1 and mimics the real transcoder's behavior: create the output, then
// either wait for the stdin quit channel, emit an expiry diagnostic, or die.
// The waiting scripts exec into cat so the stand-in stays a single process:
// a kill must take the stdin and stderr pipes down with it, as it does for
// the real transcoder.
const (
	scriptCapture = `touch "$1"; exec cat >/dev/null`
	scriptExpire  = `touch "$1"; echo "403 Forbidden" 1>&2; exec cat >/dev/null`
	scriptCrash   = `touch "$1"; exit 1`
)

// scriptLauncher launches shell stand-ins instead of the real transcoder,
// picking the i-th script for the i-th launch (the last one repeats).
type scriptLauncher struct {
	mu      sync.Mutex
	scripts []string
	outputs []string
}

func (l *scriptLauncher) Capture(playlistURL, outputPath string) *ffmpeg.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := len(l.outputs)
	if idx >= len(l.scripts) {
		idx = len(l.scripts) - 1
	}
	l.outputs = append(l.outputs, outputPath)
	return &ffmpeg.Command{
		Binary: "/bin/sh",
		Args:   []string{"-c", l.scripts[idx], "sh", outputPath},
		Input:  playlistURL,
		Output: outputPath,
	}
}

func (l *scriptLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.outputs)
}

func (l *scriptLauncher) segment(i int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outputs[i]
}

// fakeResolver serves a fixed liveness answer and a finite queue of playlist
// URLs; once the queue is drained, resolution fails.
type fakeResolver struct {
	mu       sync.Mutex
	live     bool
	meta     RoomLiveness
	urls     []string
	resolved int
}

func (f *fakeResolver) IsLive(ctx context.Context, roomID int64) (RoomLiveness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	liv := f.meta
	liv.Live = f.live
	return liv, nil
}

func (f *fakeResolver) ResolveLiveURL(ctx context.Context, roomID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved >= len(f.urls) {
		return "", errors.New("playlist fetch failed")
	}
	url := f.urls[f.resolved]
	f.resolved++
	return url, nil
}

func (f *fakeResolver) setLive(live bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = live
}

// recordingFinalizer records every segment handed to it and mimics a
// successful conversion.
type recordingFinalizer struct {
	mu    sync.Mutex
	calls []string
}

func (f *recordingFinalizer) Finalize(ctx context.Context, rawPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawPath)
	finalized := FinalizedPath(rawPath)
	if err := os.WriteFile(finalized, []byte("mp4"), 0644); err != nil {
		return "", err
	}
	os.Remove(rawPath)
	return finalized, nil
}

func (f *recordingFinalizer) finalized() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func testOptions(dir string) Options {
	return Options{
		Dir:            dir,
		SettleDelay:    20 * time.Millisecond,
		RestartBackoff: 20 * time.Millisecond,
		StopTimeout:    5 * time.Second,
		WatchInterval:  20 * time.Millisecond,
	}
}

func startRecorder(t *testing.T, resolver Resolver, launcher Launcher, fin Finalizer, opts Options) *Recorder {
	t.Helper()
	r := New(resolver, launcher, fin, opts, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func waitIdle(t *testing.T, r *Recorder) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := r.CurrentStatus(context.Background())
		return err == nil && s.State == "idle"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStart_Idempotent(t *testing.T) {
	resolver := &fakeResolver{live: true, meta: RoomLiveness{Performer: "alice", Title: "hello"}, urls: []string{"http://cdn/a.m3u8"}}
	launcher := &scriptLauncher{scripts: []string{scriptCapture}}
	fin := &recordingFinalizer{}
	r := startRecorder(t, resolver, launcher, fin, testOptions(t.TempDir()))

	first, err := r.Start(context.Background(), 12345)
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Performer)
	assert.False(t, first.Watching)
	assert.Contains(t, first.SegmentPath, "_part1_")

	second, err := r.Start(context.Background(), 12345)
	require.NoError(t, err)
	assert.Equal(t, first.SegmentPath, second.SegmentPath)
	assert.Equal(t, 1, launcher.launches())

	require.NoError(t, r.Stop(context.Background()))
	waitIdle(t, r)
}

func TestStop_Idempotent(t *testing.T) {
	resolver := &fakeResolver{live: true, meta: RoomLiveness{Performer: "alice"}, urls: []string{"http://cdn/a.m3u8"}}
	launcher := &scriptLauncher{scripts: []string{scriptCapture}}
	fin := &recordingFinalizer{}
	r := startRecorder(t, resolver, launcher, fin, testOptions(t.TempDir()))

	res, err := r.Start(context.Background(), 12345)
	require.NoError(t, err)

	require.NoError(t, r.Stop(context.Background()))
	require.NoError(t, r.Stop(context.Background()))
	waitIdle(t, r)

	require.NoError(t, r.Stop(context.Background()))
	require.Eventually(t, func() bool {
		return len(fin.finalized()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{res.SegmentPath}, fin.finalized())
}

func TestStop_WhileIdle(t *testing.T) {
	resolver := &fakeResolver{}
	launcher := &scriptLauncher{scripts: []string{scriptCapture}}
	r := startRecorder(t, resolver, launcher, &recordingFinalizer{}, testOptions(t.TempDir()))

	assert.NoError(t, r.Stop(context.Background()))
	assert.False(t, r.IsRecording())
}

func TestFinalizeOnCrash(t *testing.T) {
	// One playlist URL: the relaunch after the crash cannot resolve a fresh
	// one, and with a restart bound of one attempt the session gives up.
	resolver := &fakeResolver{live: true, meta: RoomLiveness{Performer: "alice"}, urls: []string{"http://cdn/a.m3u8"}}
	launcher := &scriptLauncher{scripts: []string{scriptCrash}}
	fin := &recordingFinalizer{}
	opts := testOptions(t.TempDir())
	opts.MaxRestartAttempts = 1
	r := startRecorder(t, resolver, launcher, fin, opts)

	res, err := r.Start(context.Background(), 12345)
	require.NoError(t, err)

	waitIdle(t, r)
	require.Eventually(t, func() bool {
		return len(fin.finalized()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{res.SegmentPath}, fin.finalized())
	assert.Equal(t, 1, launcher.launches())
}

func TestRestart_OnExpiry(t *testing.T) {
	resolver := &fakeResolver{
		live: true,
		meta: RoomLiveness{Performer: "alice"},
		urls: []string{"http://cdn/a.m3u8", "http://cdn/b.m3u8"},
	}
	launcher := &scriptLauncher{scripts: []string{scriptExpire, scriptCapture}}
	fin := &recordingFinalizer{}
	r := startRecorder(t, resolver, launcher, fin, testOptions(t.TempDir()))

	res, err := r.Start(context.Background(), 12345)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := r.CurrentStatus(context.Background())
		return err == nil && s.State == "recording" && s.Part == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, launcher.launches())
	assert.Contains(t, launcher.segment(1), "_part2_")
	require.Eventually(t, func() bool {
		return len(fin.finalized()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{res.SegmentPath}, fin.finalized())
	assert.True(t, r.IsRecording())

	require.NoError(t, r.Stop(context.Background()))
	waitIdle(t, r)
	require.Eventually(t, func() bool {
		return len(fin.finalized()) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPartNumbers_StrictlyIncrease(t *testing.T) {
	resolver := &fakeResolver{
		live: true,
		meta: RoomLiveness{Performer: "alice"},
		urls: []string{"u1", "u2", "u3", "u4"},
	}
	launcher := &scriptLauncher{scripts: []string{scriptExpire, scriptExpire, scriptExpire, scriptCapture}}
	fin := &recordingFinalizer{}
	r := startRecorder(t, resolver, launcher, fin, testOptions(t.TempDir()))

	_, err := r.Start(context.Background(), 12345)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return launcher.launches() == 4
	}, 10*time.Second, 10*time.Millisecond)

	for i := 0; i < 4; i++ {
		part, err := PartNumber(launcher.segment(i))
		require.NoError(t, err)
		assert.Equal(t, i+1, part)
	}

	require.NoError(t, r.Stop(context.Background()))
	waitIdle(t, r)
}

func TestStop_DuringRestart(t *testing.T) {
	// One playlist URL: after the expiry the relaunch cannot resolve a fresh
	// one, so the session parks in the restart backoff until stopped.
	resolver := &fakeResolver{live: true, meta: RoomLiveness{Performer: "alice"}, urls: []string{"http://cdn/a.m3u8"}}
	launcher := &scriptLauncher{scripts: []string{scriptExpire}}
	fin := &recordingFinalizer{}
	opts := testOptions(t.TempDir())
	opts.RestartBackoff = time.Hour
	r := startRecorder(t, resolver, launcher, fin, opts)

	_, err := r.Start(context.Background(), 12345)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := r.CurrentStatus(context.Background())
		return err == nil && s.State == "restarting"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, r.Stop(context.Background()))
	waitIdle(t, r)
	require.Eventually(t, func() bool {
		return len(fin.finalized()) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStatus_ClearedAfterStop(t *testing.T) {
	resolver := &fakeResolver{live: true, meta: RoomLiveness{Performer: "alice"}, urls: []string{"http://cdn/a.m3u8"}}
	launcher := &scriptLauncher{scripts: []string{scriptCapture}}
	r := startRecorder(t, resolver, launcher, &recordingFinalizer{}, testOptions(t.TempDir()))

	_, err := r.Start(context.Background(), 12345)
	require.NoError(t, err)

	require.NoError(t, r.Stop(context.Background()))
	waitIdle(t, r)

	s, err := r.CurrentStatus(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.RoomID)
	assert.Empty(t, s.Performer)
	assert.Empty(t, s.Segment)
	assert.Zero(t, s.Part)
}

func TestWatchMode_PromotesWhenLive(t *testing.T) {
	resolver := &fakeResolver{live: false, meta: RoomLiveness{Performer: "alice"}, urls: []string{"http://cdn/a.m3u8"}}
	launcher := &scriptLauncher{scripts: []string{scriptCapture}}
	fin := &recordingFinalizer{}
	r := startRecorder(t, resolver, launcher, fin, testOptions(t.TempDir()))

	res, err := r.Start(context.Background(), 12345)
	require.NoError(t, err)
	assert.True(t, res.Watching)
	assert.Empty(t, res.SegmentPath)
	assert.True(t, r.IsWatching())
	assert.False(t, r.IsRecording())
	assert.Equal(t, 0, launcher.launches())

	resolver.setLive(true)
	require.Eventually(t, func() bool {
		return r.IsRecording()
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, launcher.launches())

	require.NoError(t, r.Stop(context.Background()))
	waitIdle(t, r)
}

func TestStop_WhileWatching(t *testing.T) {
	resolver := &fakeResolver{live: false, meta: RoomLiveness{Performer: "alice"}}
	launcher := &scriptLauncher{scripts: []string{scriptCapture}}
	r := startRecorder(t, resolver, launcher, &recordingFinalizer{}, testOptions(t.TempDir()))

	res, err := r.Start(context.Background(), 12345)
	require.NoError(t, err)
	assert.True(t, res.Watching)

	require.NoError(t, r.Stop(context.Background()))
	waitIdle(t, r)
	assert.False(t, r.IsWatching())
	assert.Equal(t, 0, launcher.launches())
}

// End-to-end through the real post-processor: the stub transcoder handles
// both the capture invocation (waits on stdin like the real thing) and the
// finalize invocation (plain stream copy).
func TestScenario_StartStopFinalizes(t *testing.T) {
	dir := t.TempDir()
	client := stubTranscoder(t, `for a in "$@"; do last="$a"; done
touch "$last"
case "$*" in *mpegts*) exec cat >/dev/null ;; esac`)

	resolver := &fakeResolver{live: true, meta: RoomLiveness{Performer: "alice", Title: "hello"}, urls: []string{"http://cdn/a.m3u8"}}
	post := NewPostProcessor(client, nil)
	r := startRecorder(t, resolver, client, post, testOptions(dir))

	res, err := r.Start(context.Background(), 12345)
	require.NoError(t, err)
	require.True(t, r.IsRecording())
	require.Contains(t, filepath.Base(res.SegmentPath), "_part1_")

	require.Eventually(t, func() bool {
		_, err := os.Stat(res.SegmentPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.NoFileExists(t, FinalizedPath(res.SegmentPath))

	require.NoError(t, r.Stop(context.Background()))
	require.Eventually(t, func() bool {
		if r.IsRecording() {
			return false
		}
		if _, err := os.Stat(FinalizedPath(res.SegmentPath)); err != nil {
			return false
		}
		_, err := os.Stat(res.SegmentPath)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)
}
