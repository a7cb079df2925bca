package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTerminateGrace is how long a gracefully terminated process may
	// take to exit before it is killed.
	DefaultTerminateGrace = 2 * time.Second

	chunkBufferSize = 4096
)

// Supervisor spawns and supervises generation subprocesses. It holds only
// configuration; all per-run state lives in the Run it returns, so one
// Supervisor can serve overlapping runs.
type Supervisor struct {
	binary  string
	mode    ScanMode
	markers []string
	grace   time.Duration
	env     []string
	logger  *slog.Logger

	wrapStdout func(io.Reader) io.Reader
}

// SupervisorOption is a functional option for configuring Supervisor.
type SupervisorOption func(*Supervisor)

// WithScanMode sets how stop markers are searched for.
func WithScanMode(mode ScanMode) SupervisorOption {
	return func(s *Supervisor) {
		s.mode = mode
	}
}

// WithStopMarkers replaces DefaultStopMarkers.
func WithStopMarkers(markers ...string) SupervisorOption {
	return func(s *Supervisor) {
		s.markers = markers
	}
}

// WithTerminateGrace sets the delay between a graceful termination request
// and a forced kill.
func WithTerminateGrace(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithEnv appends variables to the inherited environment of each child.
func WithEnv(env ...string) SupervisorOption {
	return func(s *Supervisor) {
		s.env = append(s.env, env...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSupervisor creates a supervisor for the executable at binary.
func NewSupervisor(binary string, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		binary: binary,
		mode:   ScanChunk,
		grace:  DefaultTerminateGrace,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "supervisor")

	return s
}

// Start spawns the executable with args. The deadline timer starts at spawn
// time. A spawn failure never produces a Run.
func (s *Supervisor) Start(ctx context.Context, args []string, timeout time.Duration) (*Run, error) {
	cmd := exec.Command(s.binary, args...)
	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, NewError(KindProcessError, fmt.Errorf("creating stdout pipe: %w", err), Detail{ExitCode: -1})
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, NewError(KindProcessError, fmt.Errorf("creating stderr pipe: %w", err), Detail{ExitCode: -1})
	}

	if err := cmd.Start(); err != nil {
		kind := KindProcessError
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			kind = KindProcessNotFound
		}
		s.logger.Error("failed to start process", "binary", s.binary, "error", err)
		return nil, NewError(kind, fmt.Errorf("starting %s: %w", s.binary, err), Detail{ExitCode: -1})
	}

	r := &Run{
		cmd:      cmd,
		detector: NewStopDetector(s.mode, s.markers...),
		deadline: timeout,
		grace:    s.grace,
		logger:   s.logger.With("pid", cmd.Process.Pid),
		start:    time.Now(),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		finished: make(chan struct{}),
	}

	r.logger.Debug("process started",
		"binary", s.binary,
		"args", len(args),
		"deadline", timeout,
	)

	var out io.Reader = stdout
	if s.wrapStdout != nil {
		out = s.wrapStdout(stdout)
	}

	var g errgroup.Group
	g.Go(func() error { return r.pumpStdout(out) })
	g.Go(func() error { return r.pumpStderr(stderr) })

	go r.waitExit(&g)

	timer := time.AfterFunc(timeout, func() { r.resolve(OutcomeTimedOut, "") })
	stopCtx := context.AfterFunc(ctx, func() { r.resolve(OutcomeCanceled, "") })

	go r.supervise(ctx, timer, stopCtx)

	return r, nil
}

// Run is one supervised subprocess invocation. Its mutable state is private
// to the run and is only ever touched by the run's own goroutines.
type Run struct {
	cmd      *exec.Cmd
	detector *StopDetector
	deadline time.Duration
	grace    time.Duration
	logger   *slog.Logger
	start    time.Time

	mu       sync.Mutex
	stdout   strings.Builder
	stderr   strings.Builder
	chunks   int
	resolved bool
	reaped   bool
	snapshot RunState
	readErr  error
	exitErr  error

	// done is closed when the run resolves, exited when the process has
	// been reaped, finished when Wait may return.
	done     chan struct{}
	exited   chan struct{}
	finished chan struct{}

	state *RunState
	err   error
}

// Wait blocks until the run has resolved and the process has been reaped.
// The state is returned alongside Timeout and Canceled errors so the partial
// output can be inspected. It is safe to call Wait more than once.
func (r *Run) Wait() (*RunState, error) {
	<-r.finished
	return r.state, r.err
}

// Finalize forces the run to resolve with whatever output has accumulated,
// as if a stop marker had been seen. It reports whether this call resolved
// the run.
func (r *Run) Finalize() bool {
	return r.resolve(OutcomeFinalized, "")
}

// Deadline returns the run's deadline.
func (r *Run) Deadline() time.Duration {
	return r.deadline
}

// Progress returns the current chunk count and output length.
func (r *Run) Progress() (chunks, bytes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks, r.stdout.Len()
}

// StartTime returns when the process was spawned.
func (r *Run) StartTime() time.Time {
	return r.start
}

func (r *Run) pumpStdout(rd io.Reader) error {
	buf := make([]byte, chunkBufferSize)
	for {
		n, err := rd.Read(buf)
		if n > 0 {
			r.onStdout(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			err = fmt.Errorf("reading stdout: %w", err)
			r.fail(err)
			return err
		}
	}
}

func (r *Run) pumpStderr(rd io.Reader) error {
	buf := make([]byte, chunkBufferSize)
	for {
		n, err := rd.Read(buf)
		if n > 0 {
			r.mu.Lock()
			if !r.resolved {
				r.stderr.Write(buf[:n])
			}
			r.mu.Unlock()
		}
		if err != nil {
			// stderr is diagnostic only; a failed read never affects the run.
			return nil
		}
	}
}

// onStdout records one chunk and checks it for a stop marker. Chunks that
// arrive after resolution are drained and dropped.
func (r *Run) onStdout(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return
	}

	r.stdout.Write(chunk)
	r.chunks++

	if marker, ok := r.detector.Scan(chunk); ok {
		r.resolveLocked(OutcomeStopped, marker)
	}
}

// fail resolves the run as failed as soon as stdout can no longer be read,
// so the process is killed instead of running on unread.
func (r *Run) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr == nil {
		r.readErr = err
	}
	r.resolveLocked(OutcomeFailed, "")
}

func (r *Run) waitExit(g *errgroup.Group) {
	readErr := g.Wait()
	exitErr := r.cmd.Wait()

	r.mu.Lock()
	r.reaped = true
	if r.readErr == nil {
		r.readErr = readErr
	}
	r.exitErr = exitErr
	if readErr != nil {
		r.resolveLocked(OutcomeFailed, "")
	} else {
		r.resolveLocked(OutcomeClosed, "")
	}
	r.mu.Unlock()

	close(r.exited)
}

// resolve is the resolve-once guard. Exactly one outcome wins; later
// attempts are no-ops.
func (r *Run) resolve(outcome Outcome, marker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(outcome, marker)
}

func (r *Run) resolveLocked(outcome Outcome, marker string) bool {
	if r.resolved {
		return false
	}
	r.resolved = true
	r.snapshot = RunState{
		Output:      r.stdout.String(),
		ErrorOutput: r.stderr.String(),
		ChunkCount:  r.chunks,
		StartTime:   r.start,
		Elapsed:     time.Since(r.start),
		Outcome:     outcome,
		StopMarker:  marker,
		ExitCode:    -1,
	}
	close(r.done)
	return true
}

// supervise waits for resolution, terminates the process as the outcome
// requires, reaps it, and publishes the final state.
func (r *Run) supervise(ctx context.Context, timer *time.Timer, stopCtx func() bool) {
	<-r.done
	timer.Stop()
	stopCtx()

	r.mu.Lock()
	state := r.snapshot
	r.mu.Unlock()

	switch state.Outcome {
	case OutcomeStopped, OutcomeFinalized:
		r.signal(terminateProcess, "terminate")
		select {
		case <-r.exited:
		case <-time.After(r.grace):
			r.logger.Warn("process ignored termination, killing", "grace", r.grace)
			r.signal(killProcess, "kill")
			<-r.exited
		}
	case OutcomeTimedOut, OutcomeCanceled, OutcomeFailed:
		r.signal(killProcess, "kill")
		<-r.exited
	default:
		<-r.exited
	}

	r.mu.Lock()
	state.ExitErr = r.exitErr
	readErr := r.readErr
	r.mu.Unlock()

	if ps := r.cmd.ProcessState; ps != nil {
		state.ExitCode = ps.ExitCode()
	}

	r.state = &state
	r.err = r.resultError(ctx, &state, readErr)

	r.logger.Info("run resolved",
		"outcome", state.Outcome,
		"marker", state.StopMarker,
		"chunks", state.ChunkCount,
		"bytes", len(state.Output),
		"elapsed", state.Elapsed,
		"exit_code", state.ExitCode,
	)

	close(r.finished)
}

func (r *Run) resultError(ctx context.Context, state *RunState, readErr error) error {
	switch state.Outcome {
	case OutcomeTimedOut:
		return NewError(KindTimeout,
			fmt.Errorf("deadline of %v exceeded after %d chunks", r.deadline, state.ChunkCount),
			state.Detail(r.deadline))
	case OutcomeCanceled:
		return NewError(KindCanceled, context.Cause(ctx), state.Detail(r.deadline))
	case OutcomeFailed:
		return NewError(KindProcessError, readErr, state.Detail(r.deadline))
	}
	return nil
}

func (r *Run) signal(fn func(*os.Process) error, action string) {
	r.mu.Lock()
	reaped := r.reaped
	r.mu.Unlock()
	if reaped {
		return
	}
	if err := fn(r.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.logger.Warn("failed to signal process", "action", action, "error", err)
	}
}
