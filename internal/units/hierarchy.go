package units

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"droidpanel/internal/scheduler"
	"droidpanel/internal/session"
)

// HierarchySnapshot captures the current UI hierarchy once per hour so the
// panel's inspector has a recent tree even before anyone opens the page.
type HierarchySnapshot struct{}

func NewHierarchySnapshot() *HierarchySnapshot { return &HierarchySnapshot{} }

func (u *HierarchySnapshot) Name() string { return "hierarchy-snapshot" }

func (u *HierarchySnapshot) Recurrence() *scheduler.Recurrence {
	return &scheduler.Recurrence{
		Period:   time.Hour,
		Position: 5 * time.Minute,
		Jitter:   2 * time.Minute,
	}
}

func (u *HierarchySnapshot) Execute(ctx context.Context, sess *session.Lease) (scheduler.Result, error) {
	res, err := sess.Invoke(ctx, "source", nil)
	if err != nil {
		return scheduler.Result{}, err
	}

	var tree string
	if err := json.Unmarshal(res.Value, &tree); err != nil || tree == "" {
		return scheduler.Result{
			Message: "driver returned an empty hierarchy",
		}, nil
	}
	return scheduler.Result{
		Success: true,
		Message: fmt.Sprintf("captured hierarchy (%d bytes)", len(tree)),
		Data:    tree,
	}, nil
}
