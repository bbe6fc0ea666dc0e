package scheduler

import "sort"

// Snapshot reports the scheduler state for the status endpoint.
// Tasks are sorted by next run for stable presentation; the heap's own
// internal order is not meaningful to callers.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	initialized := s.initialized
	items := s.heap.snapshot()
	s.mu.Unlock()

	tasks := make([]TaskInfo, 0, len(items))
	for _, t := range items {
		tasks = append(tasks, TaskInfo{
			Name:     t.Name,
			NextRun:  t.NextRun,
			Period:   t.Recurrence.Period,
			Position: t.Recurrence.Position,
			Jitter:   t.Recurrence.Jitter,
			Cron:     t.Recurrence.Cron,
		})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].NextRun.Before(tasks[j].NextRun) })

	snap := Snapshot{
		Enabled:     enabled,
		Initialized: initialized,
		QueueSize:   len(tasks),
		Tasks:       tasks,
	}
	if len(tasks) > 0 {
		snap.NextDue = tasks[0].NextRun
	}

	s.hmu.Lock()
	snap.History = make([]HistoryItem, len(s.history))
	copy(snap.History, s.history)
	s.hmu.Unlock()

	return snap
}
