package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"droidpanel/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	cfg := Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db")}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "  NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v, want nil store and nil error", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver must error")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("sqlite without a path must error")
	}
}

func TestAppendAndRecentRuns(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	entries := []RunEntry{
		{Task: "hierarchy-snapshot", Started: base, Duration: 1200 * time.Millisecond, Success: true, Message: "captured", SessionID: "sess-1"},
		{Task: "screenshot-janitor", Started: base.Add(time.Minute), Duration: 300 * time.Millisecond, Success: false, Error: "shell: exit 1"},
		{Task: "device-health", Started: base.Add(2 * time.Minute), Duration: 80 * time.Millisecond, Success: true, Reconnects: 1},
	}
	for _, e := range entries {
		if err := st.AppendRun(ctx, e); err != nil {
			t.Fatalf("AppendRun(%s): %v", e.Task, err)
		}
	}

	runs, err := st.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	// newest first
	if runs[0].Task != "device-health" || runs[1].Task != "screenshot-janitor" {
		t.Fatalf("order = %s, %s", runs[0].Task, runs[1].Task)
	}
	if !runs[0].Success || runs[0].Reconnects != 1 {
		t.Fatalf("device-health = %+v", runs[0])
	}
	if runs[1].Success || runs[1].Error != "shell: exit 1" {
		t.Fatalf("screenshot-janitor = %+v", runs[1])
	}
	if !runs[1].Started.Equal(base.Add(time.Minute)) {
		t.Fatalf("started = %v, want %v", runs[1].Started, base.Add(time.Minute))
	}
	if runs[1].Duration != 300*time.Millisecond {
		t.Fatalf("duration = %v", runs[1].Duration)
	}

	all, err := st.RecentRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("default limit returned %d rows, want 3", len(all))
	}
}

func TestAppendFillsStarted(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.AppendRun(ctx, RunEntry{Task: "probe", Success: true}); err != nil {
		t.Fatal(err)
	}
	runs, err := st.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Started.IsZero() {
		t.Fatalf("runs = %+v, want a non-zero started time", runs)
	}
}
