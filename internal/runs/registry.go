// Package runs tracks in-flight generation runs so they can be listed and
// finalized by id, and keeps a bounded history of recently resolved runs.
package runs

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/llm"
)

// ErrNotFound is returned when no in-flight run has the given id.
var ErrNotFound = errors.New("run not found")

// Handle is the part of a run the registry needs.
type Handle interface {
	Finalize() bool
	Progress() (chunks, bytes int)
	StartTime() time.Time
	Deadline() time.Duration
}

// Summary describes one run, in flight or resolved.
type Summary struct {
	ID          string      `json:"id"`
	Outcome     llm.Outcome `json:"outcome,omitempty"`
	Active      bool        `json:"active"`
	ChunkCount  int         `json:"chunkCount"`
	OutputBytes int         `json:"outputBytes"`
	ElapsedMs   int64       `json:"elapsedMs"`
	DeadlineMs  int64       `json:"deadlineMs,omitempty"`
	StartedAt   time.Time   `json:"startedAt"`
	resolvedAt  time.Time
}

// Registry holds active runs and recently resolved summaries.
type Registry struct {
	mu         sync.Mutex
	active     map[string]Handle
	history    []Summary
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewRegistry creates a registry keeping at most maxEntries resolved
// summaries, each for at most ttl. A ttl of zero keeps them until evicted by
// count.
func NewRegistry(maxEntries int, ttl time.Duration) *Registry {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &Registry{
		active:     make(map[string]Handle),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// DefaultRegistry keeps the last 50 runs for an hour.
func DefaultRegistry() *Registry {
	return NewRegistry(50, time.Hour)
}

// Register starts tracking an in-flight run.
func (r *Registry) Register(id string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[id] = h
}

// Finalize resolves the run with id using its accumulated output. It reports
// whether this call resolved the run; false means it had already resolved.
func (r *Registry) Finalize(id string) (bool, error) {
	r.mu.Lock()
	h, ok := r.active[id]
	r.mu.Unlock()

	if !ok {
		return false, ErrNotFound
	}
	return h.Finalize(), nil
}

// Complete stops tracking id and records the resolved state in the history.
func (r *Registry) Complete(id string, state *llm.RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, id)
	if state == nil || r.maxEntries == 0 {
		return
	}

	r.history = append(r.history, Summary{
		ID:          id,
		Outcome:     state.Outcome,
		ChunkCount:  state.ChunkCount,
		OutputBytes: len(state.Output),
		ElapsedMs:   state.Elapsed.Milliseconds(),
		StartedAt:   state.StartTime,
		resolvedAt:  r.now(),
	})

	if len(r.history) > r.maxEntries {
		r.history = r.history[len(r.history)-r.maxEntries:]
	}
}

// Active returns the number of in-flight runs.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// List returns active runs first, oldest start first, then resolved runs,
// most recent first. Expired history is pruned on the way.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()
	now := r.now()

	active := make([]Summary, 0, len(r.active))
	for id, h := range r.active {
		chunks, bytes := h.Progress()
		started := h.StartTime()
		active = append(active, Summary{
			ID:          id,
			Active:      true,
			ChunkCount:  chunks,
			OutputBytes: bytes,
			ElapsedMs:   now.Sub(started).Milliseconds(),
			DeadlineMs:  h.Deadline().Milliseconds(),
			StartedAt:   started,
		})
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartedAt.Before(active[j].StartedAt)
	})

	out := active
	for i := len(r.history) - 1; i >= 0; i-- {
		out = append(out, r.history[i])
	}
	return out
}

func (r *Registry) pruneLocked() {
	if r.ttl <= 0 {
		return
	}
	cutoff := r.now().Add(-r.ttl)
	keep := r.history[:0]
	for _, s := range r.history {
		if s.resolvedAt.After(cutoff) {
			keep = append(keep, s)
		}
	}
	r.history = keep
}
