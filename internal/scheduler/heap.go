package scheduler

// taskHeap is an array-backed binary min-heap ordered by NextRun.
//
// It is not goroutine-safe; the owning Service serializes access under its
// mutex. There is no decrease-key: tasks are always extracted before
// dispatch and reinserted with a fresh NextRun afterwards.
type taskHeap struct {
	items []*ScheduledTask
}

func (h *taskHeap) size() int { return len(h.items) }

func (h *taskHeap) insert(t *ScheduledTask) {
	h.items = append(h.items, t)
	h.siftUp(len(h.items) - 1)
}

// peekMin returns the earliest-due task without removing it, or nil when
// the heap is empty.
func (h *taskHeap) peekMin() *ScheduledTask {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// extractMin removes and returns the earliest-due task, or nil when the
// heap is empty.
func (h *taskHeap) extractMin() *ScheduledTask {
	n := len(h.items)
	if n == 0 {
		return nil
	}
	min := h.items[0]
	h.items[0] = h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return min
}

// snapshot returns a copy of the backing slice in implementation-defined
// (heap) order, for status reporting only.
func (h *taskHeap) snapshot() []*ScheduledTask {
	out := make([]*ScheduledTask, len(h.items))
	copy(out, h.items)
	return out
}

func (h *taskHeap) less(i, j int) bool {
	return h.items[i].NextRun.Before(h.items[j].NextRun)
}

func (h *taskHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			return
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *taskHeap) siftDown(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		smallest := left
		if right := left + 1; right < n && h.less(right, left) {
			smallest = right
		}
		if !h.less(smallest, i) {
			return
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}
