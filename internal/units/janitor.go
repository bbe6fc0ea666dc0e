package units

import (
	"context"
	"fmt"
	"time"

	"droidpanel/internal/scheduler"
	"droidpanel/internal/session"
)

// ScreenshotJanitor clears stale screenshots off the device nightly so
// long-running test phones don't fill their storage.
type ScreenshotJanitor struct {
	// Dir is the on-device directory to prune.
	Dir string
	// MaxAgeDays keeps files newer than this.
	MaxAgeDays int
}

func NewScreenshotJanitor() *ScreenshotJanitor {
	return &ScreenshotJanitor{Dir: "/sdcard/Pictures/Screenshots", MaxAgeDays: 7}
}

func (u *ScreenshotJanitor) Name() string { return "screenshot-janitor" }

func (u *ScreenshotJanitor) Recurrence() *scheduler.Recurrence {
	// 03:30 device-local, spread over ten minutes so a fleet pointed at
	// one backend doesn't fire as a herd.
	return &scheduler.Recurrence{
		Period:   24 * time.Hour,
		Position: 3*time.Hour + 30*time.Minute,
		Jitter:   10 * time.Minute,
	}
}

func (u *ScreenshotJanitor) Execute(ctx context.Context, sess *session.Lease) (scheduler.Result, error) {
	args := map[string]any{
		"command": fmt.Sprintf("find %s -type f -mtime +%d -delete", u.Dir, u.MaxAgeDays),
	}
	if _, err := sess.Invoke(ctx, "shell", args); err != nil {
		return scheduler.Result{}, err
	}
	return scheduler.Result{
		Success: true,
		Message: fmt.Sprintf("pruned screenshots older than %dd in %s", u.MaxAgeDays, u.Dir),
	}, nil
}
