package scheduler

import (
	"context"
	"time"

	"droidpanel/internal/session"
)

// Config controls the scheduler service.
type Config struct {
	Enabled bool

	// TickInterval is how often the internal ticker wakes the loop.
	// The HTTP trigger can wake it at any time in addition.
	TickInterval time.Duration

	// TasksDir holds optional per-unit YAML recurrence manifests.
	TasksDir string

	// DispatchTimeout bounds one task execution end to end.
	DispatchTimeout time.Duration

	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 30 * time.Second
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 2 * time.Minute
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// Result is what a unit reports back from one execution.
// The scheduler never interprets Data or Message beyond logging.
type Result struct {
	Success bool
	Message string
	Data    any
}

// Unit is a schedulable automation task.
//
// Recurrence returns the unit's default recurrence; nil means the unit is
// not schedulable (it is skipped with a logged reason). Manifests in the
// tasks directory may override the returned values per deployment.
type Unit interface {
	Name() string
	Recurrence() *Recurrence
	Execute(ctx context.Context, sess *session.Lease) (Result, error)
}

// ScheduledTask is one heap entry. NextRun is recomputed after every
// dispatch; the entry itself lives for the process lifetime.
type ScheduledTask struct {
	Name       string
	Recurrence Recurrence
	Unit       Unit
	NextRun    time.Time
}

// HistoryItem records one finished dispatch for the status surface.
type HistoryItem struct {
	Name       string
	Started    time.Time
	Duration   time.Duration
	Success    bool
	Message    string
	Error      string
	SessionID  string
	Reconnects uint64
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	NextRun  time.Time     `json:"next_run"`
}

// TaskInfo describes one queued task in a Snapshot.
type TaskInfo struct {
	Name     string        `json:"name"`
	NextRun  time.Time     `json:"next_run"`
	Period   time.Duration `json:"period,omitempty"`
	Position time.Duration `json:"position,omitempty"`
	Jitter   time.Duration `json:"jitter,omitempty"`
	Cron     string        `json:"cron,omitempty"`
}

// Snapshot is a lightweight view for the status endpoint.
type Snapshot struct {
	Enabled     bool          `json:"enabled"`
	Initialized bool          `json:"initialized"`
	QueueSize   int           `json:"queue_size"`
	NextDue     time.Time     `json:"next_due,omitzero"`
	Tasks       []TaskInfo    `json:"tasks"`
	History     []HistoryItem `json:"history,omitempty"`
}
