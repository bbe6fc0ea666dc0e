// Package scheduler runs droidpanel's recurring automation tasks.
//
// # Overview
//
// Tasks are compiled-in units (see internal/units) with a declared
// recurrence, optionally overridden by a YAML manifest in the tasks
// directory. Scheduling is driven by a min-heap ordered on each task's next
// run time: a tick drains every due entry, dispatches it on its own
// goroutine, and reinserts it with a freshly computed run time regardless
// of outcome. A task is therefore in the heap exactly once at all times
// between dispatches.
//
// # Recurrence formats
//
// A task recurrence is either:
//
//   - Periodic: a period plus a position within the period and an optional
//     jitter, e.g. period "24h", position "4h30m", jitter "10m". The next
//     run lands on the period-aligned position (randomized within the
//     jitter window), advanced until strictly in the future.
//   - Cron: a standard 5-field cron expression, e.g. "30 4 * * *".
//
// # Triggering and concurrency
//
// Tick is safe to call concurrently (internal ticker and HTTP trigger may
// overlap) and returns without waiting for dispatched tasks. Each dispatch
// leases the shared automation session, executes the unit, releases the
// lease, and reschedules. Failures and panics are contained: they surface
// only through logs, the event bus, and the run history.
package scheduler
