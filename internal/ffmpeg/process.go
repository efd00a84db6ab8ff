package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrSpawnFailed indicates the FFmpeg process could not be started.
var ErrSpawnFailed = errors.New("spawning ffmpeg failed")

// Command represents a single FFmpeg invocation.
type Command struct {
	Binary string
	Args   []string
	Input  string
	Output string
}

// Run executes the command to completion and returns an error carrying the
// last stderr lines when FFmpeg exits non-zero. Used for the short-lived
// finalize and concat invocations.
func (c *Command) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	// Keep a short tail of diagnostics for error context.
	var tail []string
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if len(tail) >= 10 {
			tail = tail[1:]
		}
		tail = append(tail, scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		if len(tail) > 0 {
			return fmt.Errorf("ffmpeg exited: %w (stderr: %s)", err, strings.Join(tail, "; "))
		}
		return fmt.Errorf("ffmpeg exited: %w", err)
	}
	return nil
}

// waitDelay bounds two tail risks around process exit: a canceled context
// waiting for the quit keystroke to take effect, and exit detection waiting
// on a stderr pipe that a descendant of the dead process still holds open.
var waitDelay = 5 * time.Second

// Start launches the command as a supervised long-running process with the
// stdin control channel and diagnostic stream wired up. Used for capture.
//
// Context cancellation requests a clean quit via stdin rather than a kill;
// termination is otherwise owned by the caller through GracefulStop and
// Kill, with waitDelay as the escalation backstop.
func (c *Command) Start(ctx context.Context) (*Process, error) {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stdin pipe: %w", err)
	}

	// Stderr goes through an in-process pipe instead of StderrPipe so that
	// Wait owns the OS-level pipe: after waitDelay it can release it even
	// when a leftover child of the dead process holds the write end.
	pr, pw := io.Pipe()
	cmd.Stderr = pw

	p := &Process{
		cmd:        cmd,
		stdin:      stdin,
		stderr:     pw,
		lines:      make(chan string, 64),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	cmd.Cancel = func() error {
		_ = p.sendQuit()
		return nil
	}

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	p.started = time.Now()

	go p.readDiagnostics(pr)
	go p.wait()

	return p, nil
}

// Process is a running FFmpeg capture process.
type Process struct {
	cmd     *exec.Cmd
	stderr  *io.PipeWriter
	started time.Time

	lines      chan string
	done       chan struct{}
	readerDone chan struct{}

	mu          sync.Mutex
	stdin       io.WriteCloser
	stdinClosed bool
	exitErr     error
}

// Lines returns the line-oriented diagnostic stream (FFmpeg stderr).
// The channel is closed when the stream ends.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Done returns a channel closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the process exit error, valid after Done is closed.
// A nil value means exit code zero.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// PID returns the process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Duration returns how long the process has been running.
func (p *Process) Duration() time.Duration {
	return time.Since(p.started)
}

// GracefulStop asks FFmpeg to finish by sending the "q" keystroke on stdin,
// then waits for the exit notification. If the process does not exit before
// ctx is done, it escalates to a forced kill and still waits for the exit
// notification.
func (p *Process) GracefulStop(ctx context.Context) error {
	// A failed quit write means a quit is already in flight or the process
	// is dead; either way the bounded wait below resolves it.
	_ = p.sendQuit()

	select {
	case <-p.done:
		return p.ExitErr()
	case <-ctx.Done():
		p.Kill()
		<-p.done
		return p.ExitErr()
	}
}

// Kill terminates the process outright. Safe to call after exit.
func (p *Process) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// Stats samples resource usage of the running process.
func (p *Process) Stats() (*ProcessStats, error) {
	pid := p.PID()
	if pid == 0 {
		return nil, errors.New("process not started")
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("inspecting process %d: %w", pid, err)
	}

	stats := &ProcessStats{
		PID:      pid,
		Duration: p.Duration(),
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		stats.MemoryRSSBytes = mem.RSS
	}
	return stats, nil
}

// ProcessStats contains resource usage for a capture process.
type ProcessStats struct {
	PID            int           `json:"pid"`
	CPUPercent     float64       `json:"cpu_percent"`
	MemoryRSSBytes uint64        `json:"memory_rss_bytes"`
	Duration       time.Duration `json:"duration"`
}

// sendQuit writes the quit keystroke and closes stdin. Returns an error if
// stdin was already closed or the write failed.
func (p *Process) sendQuit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdinClosed {
		return errors.New("stdin already closed")
	}
	p.stdinClosed = true

	if _, err := io.WriteString(p.stdin, "q"); err != nil {
		p.stdin.Close()
		return fmt.Errorf("writing quit keystroke: %w", err)
	}
	return p.stdin.Close()
}

// readDiagnostics forwards stderr lines to the diagnostic channel, dropping
// lines if the consumer falls behind so a slow reader never blocks FFmpeg.
func (p *Process) readDiagnostics(r io.Reader) {
	defer close(p.readerDone)
	defer close(p.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		select {
		case p.lines <- scanner.Text():
		default:
		}
	}
}

func (p *Process) wait() {
	err := p.cmd.Wait()

	// Wait has released the OS-level stderr pipe; end the in-process pipe
	// so the scanner drains and closes the diagnostic channel.
	p.stderr.Close()
	<-p.readerDone

	p.mu.Lock()
	p.exitErr = err
	if !p.stdinClosed {
		p.stdinClosed = true
		p.stdin.Close()
	}
	p.mu.Unlock()

	close(p.done)
}
