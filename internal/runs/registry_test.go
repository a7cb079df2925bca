package runs

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/llm"
)

type fakeRun struct {
	mu        sync.Mutex
	finalized bool
	chunks    int
	bytes     int
	start     time.Time
}

func (f *fakeRun) Finalize() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalized {
		return false
	}
	f.finalized = true
	return true
}

func (f *fakeRun) Progress() (int, int)    { return f.chunks, f.bytes }
func (f *fakeRun) StartTime() time.Time    { return f.start }
func (f *fakeRun) Deadline() time.Duration { return 30 * time.Second }

func TestRegistry_Finalize(t *testing.T) {
	r := DefaultRegistry()
	run := &fakeRun{start: time.Now()}
	r.Register("a", run)

	ok, err := r.Finalize("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first finalize to resolve the run")
	}

	ok, err = r.Finalize("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second finalize to be a no-op")
	}

	if _, err := r.Finalize("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_CompleteMovesToHistory(t *testing.T) {
	r := NewRegistry(10, time.Hour)
	start := time.Now()
	r.Register("a", &fakeRun{start: start, chunks: 2, bytes: 7})

	if got := r.Active(); got != 1 {
		t.Fatalf("expected 1 active run, got %d", got)
	}

	list := r.List()
	if len(list) != 1 || !list[0].Active || list[0].ChunkCount != 2 || list[0].OutputBytes != 7 {
		t.Fatalf("unexpected active listing: %+v", list)
	}

	r.Complete("a", &llm.RunState{
		Output:     "Bonjour",
		ChunkCount: 2,
		StartTime:  start,
		Elapsed:    1500 * time.Millisecond,
		Outcome:    llm.OutcomeStopped,
	})

	if got := r.Active(); got != 0 {
		t.Errorf("expected 0 active runs, got %d", got)
	}
	list = r.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(list))
	}
	s := list[0]
	if s.Active || s.Outcome != llm.OutcomeStopped || s.OutputBytes != 7 || s.ElapsedMs != 1500 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestRegistry_TrimsToMaxEntries(t *testing.T) {
	r := NewRegistry(3, 0)
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		r.Register(id, &fakeRun{})
		r.Complete(id, &llm.RunState{Outcome: llm.OutcomeClosed})
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(list))
	}
	for i, want := range []string{"5", "4", "3"} {
		if list[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, list[i].ID)
		}
	}
}

func TestRegistry_PrunesExpired(t *testing.T) {
	r := NewRegistry(10, time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	r.Complete("old", &llm.RunState{Outcome: llm.OutcomeClosed})
	now = now.Add(2 * time.Minute)
	r.Complete("new", &llm.RunState{Outcome: llm.OutcomeClosed})

	list := r.List()
	if len(list) != 1 || list[0].ID != "new" {
		t.Errorf("expected only the recent run, got %+v", list)
	}
}

func TestRegistry_ZeroHistory(t *testing.T) {
	r := NewRegistry(0, time.Hour)
	r.Register("a", &fakeRun{})
	r.Complete("a", &llm.RunState{Outcome: llm.OutcomeClosed})

	if got := len(r.List()); got != 0 {
		t.Errorf("expected no history, got %d", got)
	}
}
