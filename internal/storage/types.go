package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the run-history store.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "" or "none": storage disabled
//
// Scheduler state (next-run times, the heap) is never persisted; only the
// execution audit trail is.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means driver default
	KeepRuns    int           // prune beyond this many rows; 0 means keep all
}

// RunEntry records one task execution outcome.
// Keep it compact and schema-stable.
type RunEntry struct {
	ID         int64
	Task       string
	Started    time.Time
	Duration   time.Duration
	Success    bool
	Message    string
	Error      string
	SessionID  string
	Reconnects uint64
}
