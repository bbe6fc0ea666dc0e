package scheduler

import (
	"math/rand"
	"testing"
	"time"
)

func TestHeapOrdering(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(42))
	base := time.Unix(1_700_000_000, 0)

	var h taskHeap
	const n = 200
	for i := 0; i < n; i++ {
		h.insert(&ScheduledTask{
			Name:    "task",
			NextRun: base.Add(time.Duration(r.Intn(1_000_000)) * time.Millisecond),
		})
	}
	if h.size() != n {
		t.Fatalf("size = %d, want %d", h.size(), n)
	}

	prev := time.Time{}
	for i := 0; i < n; i++ {
		if min := h.peekMin(); min == nil {
			t.Fatalf("peekMin returned nil with %d items left", n-i)
		} else if got := h.extractMin(); got != min {
			t.Fatalf("extractMin returned a different item than peekMin")
		} else {
			if got.NextRun.Before(prev) {
				t.Fatalf("extraction out of order: %v before %v", got.NextRun, prev)
			}
			prev = got.NextRun
		}
		if h.size() != n-i-1 {
			t.Fatalf("size = %d after %d extractions, want %d", h.size(), i+1, n-i-1)
		}
	}
}

func TestHeapEmpty(t *testing.T) {
	t.Parallel()
	var h taskHeap
	if h.extractMin() != nil {
		t.Fatal("extractMin on empty heap should return nil")
	}
	if h.peekMin() != nil {
		t.Fatal("peekMin on empty heap should return nil")
	}
	if h.size() != 0 {
		t.Fatalf("size = %d, want 0", h.size())
	}
}

func TestHeapInterleaved(t *testing.T) {
	t.Parallel()
	base := time.Unix(1_700_000_000, 0)
	var h taskHeap

	h.insert(&ScheduledTask{Name: "late", NextRun: base.Add(time.Hour)})
	h.insert(&ScheduledTask{Name: "early", NextRun: base.Add(time.Minute)})
	if got := h.extractMin(); got.Name != "early" {
		t.Fatalf("extractMin = %s, want early", got.Name)
	}
	h.insert(&ScheduledTask{Name: "earliest", NextRun: base})
	if got := h.peekMin(); got.Name != "earliest" {
		t.Fatalf("peekMin = %s, want earliest", got.Name)
	}

	snap := h.snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(snap))
	}
	// snapshot is a copy; mutating it must not affect the heap
	snap[0] = nil
	if h.peekMin() == nil {
		t.Fatal("snapshot mutation leaked into heap")
	}
}

func TestHeapDailyScenario(t *testing.T) {
	t.Parallel()
	now := time.Unix(0, 0).UTC()
	day := 24 * time.Hour

	mk := func(name string, position time.Duration) *ScheduledTask {
		r := Recurrence{Period: day, Position: position}
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate(%s): %v", name, err)
		}
		return &ScheduledTask{Name: name, Recurrence: r, NextRun: r.Next(now)}
	}

	var h taskHeap
	h.insert(mk("midnight", 0))
	h.insert(mk("noon", 12*time.Hour))
	h.insert(mk("one-am", time.Hour))

	want := map[string]time.Duration{
		"midnight": day, // position 0 is not after now, advanced a full period
		"noon":     12 * time.Hour,
		"one-am":   time.Hour,
	}
	for _, item := range h.snapshot() {
		if got := item.NextRun.Sub(now); got != want[item.Name] {
			t.Errorf("%s: next run offset = %v, want %v", item.Name, got, want[item.Name])
		}
	}
	if got := h.peekMin(); got.Name != "one-am" {
		t.Fatalf("peekMin = %s, want one-am", got.Name)
	}
}
