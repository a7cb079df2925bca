package llm

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Kind classifies a generation failure.
type Kind string

const (
	KindProcessNotFound Kind = "process_not_found"
	KindTimeout         Kind = "timeout"
	KindEmptyResponse   Kind = "empty_response"
	KindProcessError    Kind = "process_error"
	KindCanceled        Kind = "canceled"
)

// Sentinels matched by GenerationError.Is, one per Kind.
var (
	ErrProcessNotFound = errors.New("process not found")
	ErrTimeout         = errors.New("generation timed out")
	ErrEmptyResponse   = errors.New("empty response")
	ErrProcessError    = errors.New("process error")
	ErrCanceled        = errors.New("generation canceled")
)

var kindSentinels = map[Kind]error{
	KindProcessNotFound: ErrProcessNotFound,
	KindTimeout:         ErrTimeout,
	KindEmptyResponse:   ErrEmptyResponse,
	KindProcessError:    ErrProcessError,
	KindCanceled:        ErrCanceled,
}

const (
	outputPreviewLen = 200
	stderrPreviewLen = 500
)

// Detail is the diagnostic payload attached to a GenerationError. Partial
// output is kept here for diagnosis and is never returned as a result.
type Detail struct {
	PartialOutput string        `json:"partialOutput,omitempty"`
	Stderr        string        `json:"stderr,omitempty"`
	OutputLength  int           `json:"outputLength"`
	ChunkCount    int           `json:"chunkCount"`
	Elapsed       time.Duration `json:"elapsed"`
	Deadline      time.Duration `json:"deadline,omitempty"`
	ExitCode      int           `json:"exitCode"`
}

// GenerationError is the only error type a generation surfaces to callers.
// Callers can use errors.As to inspect Kind and Detail, or errors.Is with the
// Err* sentinels.
type GenerationError struct {
	Kind   Kind
	Err    error
	Detail Detail
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *GenerationError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// NewError builds a GenerationError of the given kind.
func NewError(kind Kind, err error, detail Detail) *GenerationError {
	return &GenerationError{Kind: kind, Err: err, Detail: detail}
}

// KindOf returns the kind of err, or "" when err is not a GenerationError.
func KindOf(err error) Kind {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return ""
}

// Detail summarizes the state for an error payload: a head preview of the
// output, a tail preview of stderr, and the counters.
func (s *RunState) Detail(deadline time.Duration) Detail {
	return Detail{
		PartialOutput: truncateString(s.Output, outputPreviewLen),
		Stderr:        tailString(s.ErrorOutput, stderrPreviewLen),
		OutputLength:  len(s.Output),
		ChunkCount:    s.ChunkCount,
		Elapsed:       s.Elapsed,
		Deadline:      deadline,
		ExitCode:      s.ExitCode,
	}
}

// truncateString truncates s to at most maxLen bytes on a rune boundary,
// adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// tailString keeps the last maxLen bytes of s on a rune boundary.
func tailString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	start := len(s) - maxLen + 3
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return "..." + s[start:]
}
