package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Recurrence describes when a task fires.
//
// Either Cron is set (a 5-field cron expression or descriptor like
// "@daily"), or Period/Position/Jitter describe a period-aligned anchor:
// the task fires at Position within each Period-aligned window, randomized
// uniformly within [-Jitter, +Jitter].
type Recurrence struct {
	Period   time.Duration
	Position time.Duration
	Jitter   time.Duration
	Cron     string

	schedule cron.Schedule
}

// Validate checks the recurrence and parses the cron expression if set.
// It must be called (and pass) before Next is used.
func (r *Recurrence) Validate() error {
	if strings.TrimSpace(r.Cron) != "" {
		sched, err := cronParser.Parse(r.Cron)
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", r.Cron, err)
		}
		r.schedule = sched
		return nil
	}
	if r.Period <= 0 {
		return errors.New("period must be positive")
	}
	if r.Position < 0 || r.Position >= r.Period {
		return fmt.Errorf("position %s out of range [0, %s)", r.Position, r.Period)
	}
	if r.Jitter < 0 {
		return errors.New("jitter must be >= 0")
	}
	return nil
}

// Next computes the next run strictly after now.
//
// For periodic recurrences the anchor is the start of the period-aligned
// window containing now; the jittered target is advanced whole periods
// until it lands in the future, so long-running or delayed executions
// converge back onto the intended cadence instead of drifting.
func (r *Recurrence) Next(now time.Time) time.Time {
	if r.schedule != nil {
		return r.schedule.Next(now)
	}

	start := now.Truncate(r.Period)
	target := start.Add(r.Position + jitterOffset(r.Jitter))
	for !target.After(now) {
		target = target.Add(r.Period)
	}
	return target
}

// String renders the recurrence for logs and the status endpoint.
func (r *Recurrence) String() string {
	if r.Cron != "" {
		return "cron:" + r.Cron
	}
	if r.Jitter > 0 {
		return fmt.Sprintf("every %s at %s ±%s", r.Period, r.Position, r.Jitter)
	}
	return fmt.Sprintf("every %s at %s", r.Period, r.Position)
}

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// jitterOffset draws uniformly from the closed range [-j, +j].
func jitterOffset(j time.Duration) time.Duration {
	if j <= 0 {
		return 0
	}
	rngMu.Lock()
	defer rngMu.Unlock()
	return time.Duration(rng.Int63n(int64(2*j)+1)) - j
}
