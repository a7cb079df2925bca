// Package llm drives a locally installed text-generation executable as a
// child process. It builds the argument vector, streams stdout, decides when
// the answer is complete from stop markers, a deadline, or process exit, and
// converts every subprocess-level fault into a typed GenerationError.
package llm

import (
	"context"
	"time"
)

// Outcome records which event resolved a run.
type Outcome string

const (
	// OutcomeStopped means a stop marker was seen in the output.
	OutcomeStopped Outcome = "stopped"

	// OutcomeClosed means the process exited on its own.
	OutcomeClosed Outcome = "closed"

	// OutcomeTimedOut means the run deadline elapsed.
	OutcomeTimedOut Outcome = "timed_out"

	// OutcomeCanceled means the caller's context was cancelled.
	OutcomeCanceled Outcome = "canceled"

	// OutcomeFinalized means the run was force-finalized through Run.Finalize.
	OutcomeFinalized Outcome = "finalized"

	// OutcomeFailed means reading the process output failed.
	OutcomeFailed Outcome = "failed"
)

// RunState is the record of one subprocess execution, captured at the moment
// the run resolved. It is owned by the caller of the supervisor and never
// shared between runs.
type RunState struct {
	// Output is everything read from stdout before resolution.
	Output string

	// ErrorOutput is everything read from stderr before resolution.
	ErrorOutput string

	// ChunkCount is the number of stdout reads that delivered data.
	ChunkCount int

	StartTime time.Time
	Elapsed   time.Duration

	Outcome Outcome

	// StopMarker is the marker that triggered OutcomeStopped.
	StopMarker string

	// ExitCode is the process exit status, or -1 when it was killed by a
	// signal or never reported one.
	ExitCode int

	// ExitErr is the error reported by the process exit, if any.
	ExitErr error
}

// Runner starts generation subprocesses.
type Runner interface {
	// Start spawns the executable with args and returns a handle owned by
	// the caller. Spawn failures are returned as *GenerationError.
	Start(ctx context.Context, args []string, timeout time.Duration) (*Run, error)
}
