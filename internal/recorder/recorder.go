package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicroDaWay/bilidash/internal/ffmpeg"
)

// State is the recorder's lifecycle state.
type State int

const (
	// StateIdle means no capture session exists.
	StateIdle State = iota
	// StateWatching means the requested room is offline and the recorder is
	// polling liveness, promoting to recording once the room goes live.
	StateWatching
	// StateRecording means a capture subprocess is running.
	StateRecording
	// StateRestarting means the playlist URL expired mid-capture and the
	// recorder is obtaining a fresh one before relaunching.
	StateRestarting
	// StateStopping means a graceful shutdown of the subprocess is underway.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateRecording:
		return "recording"
	case StateRestarting:
		return "restarting"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// RoomLiveness is the result of one liveness query. Playlist URLs are
// time-limited, so liveness is always re-fetched and never cached.
type RoomLiveness struct {
	Live      bool
	Performer string
	Title     string
	CoverURL  string
	AreaName  string
	LiveTime  string
}

// Resolver answers liveness queries and mints fresh playlist URLs for a
// broadcast room.
type Resolver interface {
	IsLive(ctx context.Context, roomID int64) (RoomLiveness, error)
	ResolveLiveURL(ctx context.Context, roomID int64) (string, error)
}

// Launcher builds the capture subprocess invocation. Satisfied by
// *ffmpeg.Client.
type Launcher interface {
	Capture(playlistURL, outputPath string) *ffmpeg.Command
}

// Finalizer converts one raw segment into its playable counterpart.
// Satisfied by *PostProcessor.
type Finalizer interface {
	Finalize(ctx context.Context, rawPath string) (string, error)
}

// ErrNotRunning is returned by commands issued before Run has started or
// after it has returned.
var ErrNotRunning = errors.New("recorder is not running")

// Options configures a Recorder.
type Options struct {
	// Dir is the recordings output directory.
	Dir string
	// SettleDelay is the pause between killing an expired capture and
	// resolving a fresh playlist URL.
	SettleDelay time.Duration
	// RestartBackoff is the delay between failed playlist resolutions
	// during a restart.
	RestartBackoff time.Duration
	// MaxRestartAttempts bounds consecutive failed resolutions during a
	// restart. Zero means retry indefinitely.
	MaxRestartAttempts int
	// StopTimeout bounds graceful shutdown before escalating to a kill.
	StopTimeout time.Duration
	// WatchInterval is the liveness polling period while watching an
	// offline room.
	WatchInterval time.Duration
}

// StartResult is the response to a start command.
type StartResult struct {
	Performer   string `json:"performer"`
	Title       string `json:"title"`
	CoverURL    string `json:"cover_url"`
	LiveTime    string `json:"live_time"`
	AreaName    string `json:"area_name"`
	Watching    bool   `json:"watching"`
	SegmentPath string `json:"segment_path,omitempty"`
}

// Status is a point-in-time snapshot of the recorder.
type Status struct {
	State     string               `json:"state"`
	Recording bool                 `json:"recording"`
	Watching  bool                 `json:"watching"`
	RoomID    int64                `json:"room_id,omitempty"`
	Performer string               `json:"performer,omitempty"`
	Segment   string               `json:"segment,omitempty"`
	Part      int                  `json:"part,omitempty"`
	Stats     *ffmpeg.ProcessStats `json:"stats,omitempty"`
}

// Recorder supervises at most one capture subprocess at a time. All state
// lives on the Run goroutine; commands and subprocess events are funneled
// through it, so transitions never race and no mutex guards the session.
type Recorder struct {
	resolver  Resolver
	launcher  Launcher
	finalizer Finalizer
	opts      Options
	logger    *slog.Logger

	cmds    chan func()
	stopped chan struct{}

	// Session state below is owned exclusively by the Run goroutine.
	runCtx   context.Context
	state    State
	roomID   int64
	liveness RoomLiveness
	layout   Layout
	part     int
	segment  string
	proc     *ffmpeg.Process
	diag     <-chan string
	attempts int
	timer    *time.Timer
}

// New creates a Recorder. Run must be started before commands are issued.
func New(resolver Resolver, launcher Launcher, finalizer Finalizer, opts Options, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = time.Second
	}
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = 5 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = 30 * time.Second
	}
	return &Recorder{
		resolver:  resolver,
		launcher:  launcher,
		finalizer: finalizer,
		opts:      opts,
		logger:    logger,
		cmds:      make(chan func()),
		stopped:   make(chan struct{}),
	}
}

// Run drives the event loop until ctx is canceled. It must be called exactly
// once, on its own goroutine. On cancellation any running capture is killed
// and its segment finalized before Run returns.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.stopped)
	r.runCtx = ctx

	for {
		var exited <-chan struct{}
		if r.proc != nil {
			exited = r.proc.Done()
		}
		var tick <-chan time.Time
		if r.timer != nil {
			tick = r.timer.C
		}

		select {
		case fn := <-r.cmds:
			fn()
		case line, ok := <-r.diag:
			if !ok {
				// Stream ended ahead of the exit notification.
				r.diag = nil
				continue
			}
			r.handleDiagnostic(line)
		case <-exited:
			r.handleExit()
		case <-tick:
			r.timer = nil
			r.handleTick()
		case <-ctx.Done():
			r.shutdown()
			return
		}
	}
}

// Start begins capturing the given room, or starts watching it if offline.
// Calling Start while a session is active is a no-op that returns the
// current session's metadata and active segment path.
func (r *Recorder) Start(ctx context.Context, roomID int64) (StartResult, error) {
	var res StartResult
	var cmdErr error
	err := r.do(ctx, func() {
		res, cmdErr = r.handleStart(roomID)
	})
	if err != nil {
		return StartResult{}, err
	}
	return res, cmdErr
}

// Stop ends the active session. Stopping an idle recorder is a no-op, as is
// a second Stop while one is already in flight.
func (r *Recorder) Stop(ctx context.Context) error {
	return r.do(ctx, r.handleStop)
}

// IsRecording reports whether a capture subprocess is active, including
// during a mid-session restart.
func (r *Recorder) IsRecording() bool {
	s, err := r.CurrentStatus(context.Background())
	return err == nil && s.Recording
}

// IsWatching reports whether the recorder is polling an offline room.
func (r *Recorder) IsWatching() bool {
	s, err := r.CurrentStatus(context.Background())
	return err == nil && s.Watching
}

// CurrentStatus returns a snapshot of the recorder state, including process
// resource stats while a capture is running.
func (r *Recorder) CurrentStatus(ctx context.Context) (Status, error) {
	var s Status
	err := r.do(ctx, func() {
		s = Status{
			State:     r.state.String(),
			Recording: r.state == StateRecording || r.state == StateRestarting,
			Watching:  r.state == StateWatching,
			RoomID:    r.roomID,
			Performer: r.liveness.Performer,
			Segment:   r.segment,
			Part:      r.part,
		}
		if r.proc != nil {
			if stats, err := r.proc.Stats(); err == nil {
				s.Stats = stats
			}
		}
	})
	return s, err
}

// do executes fn on the event-loop goroutine and waits for it.
func (r *Recorder) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case r.cmds <- func() {
		fn()
		close(done)
	}:
	case <-r.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) handleStart(roomID int64) (StartResult, error) {
	if r.state != StateIdle {
		res := r.currentResult()
		r.logger.Info("start ignored, session already active",
			slog.String("state", r.state.String()),
			slog.String("segment", r.segment),
		)
		return res, nil
	}

	liv, err := r.resolver.IsLive(r.runCtx, roomID)
	if err != nil {
		return StartResult{}, fmt.Errorf("checking room %d liveness: %w", roomID, err)
	}
	r.roomID = roomID
	r.liveness = liv

	if !liv.Live {
		r.state = StateWatching
		r.schedule(r.opts.WatchInterval)
		r.logger.Info("room offline, watching",
			slog.Int64("room_id", roomID),
			slog.Duration("interval", r.opts.WatchInterval),
		)
		return r.currentResult(), nil
	}

	url, err := r.resolver.ResolveLiveURL(r.runCtx, roomID)
	if err != nil {
		r.reset()
		return StartResult{}, fmt.Errorf("resolving playlist for room %d: %w", roomID, err)
	}
	if err := r.beginSession(url); err != nil {
		r.reset()
		return StartResult{}, err
	}
	return r.currentResult(), nil
}

func (r *Recorder) handleStop() {
	switch r.state {
	case StateIdle, StateStopping:
		// No-op: nothing to stop, or a stop is already draining.
	case StateWatching:
		r.stopTimer()
		r.logger.Info("stopped watching", slog.Int64("room_id", r.roomID))
		r.reset()
	case StateRestarting:
		r.stopTimer()
		if r.proc != nil {
			// The expired process was killed but has not reaped yet; its
			// exit event will finalize the segment and return to idle. The
			// wait is bounded the same way a recording stop is.
			r.state = StateStopping
			r.escalateStop(r.proc)
		} else {
			r.reset()
		}
	case StateRecording:
		r.state = StateStopping
		r.escalateStop(r.proc)
	}
}

// escalateStop asks the process to finish, killing it if it has not exited
// within StopTimeout. Runs off the event loop; the exit event completes the
// transition either way.
func (r *Recorder) escalateStop(proc *ffmpeg.Process) {
	timeout := r.opts.StopTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = proc.GracefulStop(ctx)
	}()
}

// handleDiagnostic inspects one subprocess stderr line for an expiry
// signature and triggers the restart transition.
func (r *Recorder) handleDiagnostic(line string) {
	if ClassifyDiagnosticLine(line) != DiagnosticExpired {
		return
	}
	if r.state != StateRecording {
		return
	}
	r.logger.Warn("playlist expired, restarting capture",
		slog.Int64("room_id", r.roomID),
		slog.Int("part", r.part),
		slog.String("diagnostic", line),
	)
	// The stream is already broken; no point in a graceful shutdown.
	r.state = StateRestarting
	r.attempts = 0
	r.proc.Kill()
}

// handleExit runs on every subprocess exit, whatever caused it, and always
// hands the segment that was active at that exit to the finalizer.
func (r *Recorder) handleExit() {
	exitErr := r.proc.ExitErr()
	r.proc = nil
	r.diag = nil
	seg := r.segment
	r.segment = ""

	r.logger.Info("capture process exited",
		slog.Int64("room_id", r.roomID),
		slog.Int("part", r.part),
		slog.String("state", r.state.String()),
		slog.Any("error", exitErr),
	)
	r.finalizeAsync(seg)

	switch r.state {
	case StateStopping:
		r.reset()
	case StateRestarting:
		r.schedule(r.opts.SettleDelay)
	case StateRecording:
		// The process died without a stop or an expiry signature. Treat it
		// like an expiry and try to resume with a fresh URL.
		r.logger.Warn("capture process died unexpectedly", slog.Int64("room_id", r.roomID))
		r.state = StateRestarting
		r.attempts = 0
		r.schedule(r.opts.SettleDelay)
	default:
		r.reset()
	}
}

func (r *Recorder) handleTick() {
	switch r.state {
	case StateWatching:
		r.watchTick()
	case StateRestarting:
		r.restartTick()
	}
}

func (r *Recorder) watchTick() {
	liv, err := r.resolver.IsLive(r.runCtx, r.roomID)
	if err != nil {
		r.logger.Warn("liveness poll failed", slog.Int64("room_id", r.roomID), slog.String("error", err.Error()))
		r.schedule(r.opts.WatchInterval)
		return
	}
	if !liv.Live {
		r.schedule(r.opts.WatchInterval)
		return
	}
	r.liveness = liv

	url, err := r.resolver.ResolveLiveURL(r.runCtx, r.roomID)
	if err != nil {
		r.logger.Warn("playlist resolution failed, still watching",
			slog.Int64("room_id", r.roomID),
			slog.String("error", err.Error()),
		)
		r.schedule(r.opts.WatchInterval)
		return
	}
	if err := r.beginSession(url); err != nil {
		r.logger.Error("starting capture from watch mode failed",
			slog.Int64("room_id", r.roomID),
			slog.String("error", err.Error()),
		)
		r.reset()
	}
}

func (r *Recorder) restartTick() {
	url, err := r.resolver.ResolveLiveURL(r.runCtx, r.roomID)
	if err != nil {
		r.attempts++
		if r.opts.MaxRestartAttempts > 0 && r.attempts >= r.opts.MaxRestartAttempts {
			r.logger.Error("giving up on restart after repeated resolution failures",
				slog.Int64("room_id", r.roomID),
				slog.Int("attempts", r.attempts),
				slog.String("error", err.Error()),
			)
			r.reset()
			return
		}
		r.logger.Warn("playlist resolution failed, retrying",
			slog.Int64("room_id", r.roomID),
			slog.Int("attempt", r.attempts),
			slog.String("error", err.Error()),
		)
		r.schedule(r.opts.RestartBackoff)
		return
	}

	if err := r.launch(url, r.part+1); err != nil {
		r.logger.Error("relaunching capture failed", slog.Int64("room_id", r.roomID), slog.String("error", err.Error()))
		r.reset()
		return
	}
	r.state = StateRecording
	r.attempts = 0
}

// beginSession allocates the session layout and launches part 1.
func (r *Recorder) beginSession(playlistURL string) error {
	r.layout = NewLayout(r.opts.Dir, r.liveness.Performer, time.Now())
	if err := r.layout.EnsureDir(); err != nil {
		return err
	}
	if err := r.launch(playlistURL, 1); err != nil {
		return err
	}
	r.state = StateRecording
	r.attempts = 0
	return nil
}

// launch spawns one capture attempt for the given part number.
func (r *Recorder) launch(playlistURL string, part int) error {
	seg := r.layout.SegmentPath(part)
	proc, err := r.launcher.Capture(playlistURL, seg).Start(r.runCtx)
	if err != nil {
		return fmt.Errorf("launching capture for part %d: %w", part, err)
	}
	r.proc = proc
	r.diag = proc.Lines()
	r.part = part
	r.segment = seg
	r.logger.Info("capture started",
		slog.Int64("room_id", r.roomID),
		slog.String("performer", r.liveness.Performer),
		slog.Int("part", part),
		slog.String("segment", seg),
		slog.Int("pid", proc.PID()),
	)
	return nil
}

// finalizeAsync hands a raw segment to the finalizer without blocking the
// event loop. Conversion failure is logged and the raw file kept.
func (r *Recorder) finalizeAsync(rawPath string) {
	if rawPath == "" {
		return
	}
	logger := r.logger
	finalizer := r.finalizer
	go func() {
		if _, err := finalizer.Finalize(context.Background(), rawPath); err != nil {
			logger.Error("finalizing segment failed",
				slog.String("raw", rawPath),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// shutdown tears down any active capture when the run context ends. The
// final segment is finalized synchronously so nothing is lost on exit.
func (r *Recorder) shutdown() {
	r.stopTimer()
	if r.proc == nil {
		return
	}
	proc := r.proc
	seg := r.segment
	r.proc = nil
	r.segment = ""

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.StopTimeout)
	defer cancel()
	_ = proc.GracefulStop(ctx)

	if seg != "" {
		if _, err := r.finalizer.Finalize(context.Background(), seg); err != nil {
			r.logger.Error("finalizing segment failed",
				slog.String("raw", seg),
				slog.String("error", err.Error()),
			)
		}
	}
	r.reset()
}

func (r *Recorder) currentResult() StartResult {
	return StartResult{
		Performer:   r.liveness.Performer,
		Title:       r.liveness.Title,
		CoverURL:    r.liveness.CoverURL,
		LiveTime:    r.liveness.LiveTime,
		AreaName:    r.liveness.AreaName,
		Watching:    r.state == StateWatching,
		SegmentPath: r.segment,
	}
}

// reset clears the whole session so an idle snapshot carries nothing of the
// previous one.
func (r *Recorder) reset() {
	r.state = StateIdle
	r.roomID = 0
	r.liveness = RoomLiveness{}
	r.part = 0
	r.segment = ""
	r.attempts = 0
}

func (r *Recorder) schedule(d time.Duration) {
	r.stopTimer()
	r.timer = time.NewTimer(d)
}

func (r *Recorder) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
