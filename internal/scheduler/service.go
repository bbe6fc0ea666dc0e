package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"droidpanel/internal/eventbus"
	"droidpanel/internal/session"
	"droidpanel/internal/storage"
	"droidpanel/pkg/logx"
)

// Service owns the task heap and drives dispatches.
//
// The heap and the initialized flag are the only shared mutable state;
// both are guarded by mu across tick extraction, dispatch reinsertion and
// snapshot reads.
type Service struct {
	log      logx.Logger
	bus      eventbus.Bus
	sessions *session.Manager
	store    storage.Store
	units    []Unit

	mu          sync.Mutex
	cfg         Config
	heap        taskHeap
	initialized bool

	stopMu     sync.Mutex
	stopCh     chan struct{}
	runCancel  context.CancelFunc
	tickerWG   sync.WaitGroup
	dispatchWG sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, units []Unit, sessions *session.Manager, store storage.Store, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		units:    units,
		sessions: sessions,
		store:    store,
		log:      log,
		bus:      bus,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
	// The registry is intentionally static for the process lifetime;
	// recurrence changes take effect on restart.
}

// Start launches the internal ticker. Ticks may also arrive from the HTTP
// trigger at any time; both paths share Tick's locking.
func (s *Service) Start(ctx context.Context) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stopCh != nil {
		return
	}
	if !s.Enabled() {
		s.log.Info("scheduler disabled")
		return
	}
	s.stopCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	s.mu.Lock()
	interval := s.cfg.TickInterval
	s.mu.Unlock()

	stopCh := s.stopCh
	s.tickerWG.Add(1)
	go func() {
		defer s.tickerWG.Done()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-stopCh:
				return
			case <-tick.C:
				s.Tick(runCtx)
			}
		}
	}()
	s.log.Info("scheduler started", logx.Duration("tick_interval", interval))
}

// Stop halts the ticker and waits (bounded by ctx) for in-flight
// dispatches to finish.
func (s *Service) Stop(ctx context.Context) {
	s.stopMu.Lock()
	if s.stopCh == nil {
		s.stopMu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	cancel := s.runCancel
	s.runCancel = nil
	s.stopMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.tickerWG.Wait()

	done := make(chan struct{})
	go func() {
		s.dispatchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for dispatches")
	}
}

// Tick checks for due tasks and dispatches them. It is safe to invoke
// concurrently and on a cold scheduler, and returns without waiting for
// dispatched tasks. The returned count is how many tasks became due.
func (s *Service) Tick(ctx context.Context) (int, error) {
	s.mu.Lock()
	if !s.initialized {
		// Lazy one-time population; a failure leaves initialized false so
		// the next trigger retries from scratch.
		if err := s.populateLocked(time.Now()); err != nil {
			s.mu.Unlock()
			s.log.Error("task registry population failed", logx.Err(err))
			return 0, err
		}
		s.initialized = true
	}

	now := time.Now()
	var due []*ScheduledTask
	for {
		next := s.heap.peekMin()
		if next == nil || next.NextRun.After(now) {
			break
		}
		due = append(due, s.heap.extractMin())
	}
	var wait time.Duration
	if next := s.heap.peekMin(); next != nil {
		wait = time.Until(next.NextRun)
	}
	empty := s.heap.size() == 0 && len(due) == 0
	s.mu.Unlock()

	if len(due) == 0 {
		if empty {
			s.log.Debug("tick: queue empty")
		} else {
			s.log.Debug("tick: nothing due", logx.Duration("next_in", wait))
		}
		return 0, nil
	}

	for _, t := range due {
		t := t
		s.dispatchWG.Add(1)
		go s.dispatch(ctx, t, now)
	}
	return len(due), nil
}

// dispatch runs one due task: lease the session, execute the unit, release
// the lease, then reschedule. The reinsert happens in a defer so the task
// returns to the heap exactly once on success, reported failure, or panic.
func (s *Service) dispatch(ctx context.Context, t *ScheduledTask, dueAt time.Time) {
	defer s.dispatchWG.Done()

	started := time.Now()
	var (
		res       Result
		execErr   error
		sessionID string
	)

	defer func() {
		if r := recover(); r != nil {
			execErr = fmt.Errorf("panic: %v", r)
			s.log.Error("panic in task dispatch",
				logx.String("task", t.Name),
				logx.Any("panic", r),
				logx.Stack(logx.StackTrace(3, 16)))
		}
		next := s.reschedule(t)
		s.record(t, started, sessionID, res, execErr, next)
	}()

	s.publish(eventbus.TaskStarted, TaskEvent{Name: t.Name, Started: started})

	s.mu.Lock()
	timeout := s.cfg.DispatchTimeout
	s.mu.Unlock()
	// The trigger (HTTP request, stopped ticker) may be canceled the moment
	// Tick returns; a dispatched task still runs to completion, bounded only
	// by its own timeout.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	lease, err := s.sessions.Lease(runCtx)
	if err != nil {
		execErr = fmt.Errorf("session acquire: %w", err)
		return
	}
	defer lease.Close()
	sessionID = lease.SessionID()

	res, execErr = t.Unit.Execute(runCtx, lease)
}

// reschedule computes a fresh NextRun from the current time (not the
// original due time) and reinserts the task. NextRun is only ever written
// under s.mu; once the task is back in the heap a concurrent tick may
// re-extract it, so callers use the returned value instead of reading the
// field again.
func (s *Service) reschedule(t *ScheduledTask) time.Time {
	next := t.Recurrence.Next(time.Now())
	s.mu.Lock()
	t.NextRun = next
	s.heap.insert(t)
	s.mu.Unlock()
	return next
}

// record funnels the dispatch outcome to the log, the event bus, the
// in-memory history ring and the optional run store. Failures stop here;
// nothing propagates back into the loop.
func (s *Service) record(t *ScheduledTask, started time.Time, sessionID string, res Result, execErr error, next time.Time) {
	dur := time.Since(started)
	success := execErr == nil && res.Success

	item := HistoryItem{
		Name:      t.Name,
		Started:   started,
		Duration:  dur,
		Success:   success,
		Message:   res.Message,
		SessionID: sessionID,
	}
	if execErr != nil {
		item.Error = execErr.Error()
	}

	ev := TaskEvent{
		Name:     t.Name,
		Started:  started,
		Duration: dur,
		Success:  success,
		Message:  res.Message,
		Error:    item.Error,
		NextRun:  next,
	}

	if success {
		s.log.Info("task completed",
			logx.String("task", t.Name),
			logx.Duration("dur", dur),
			logx.Time("next_run", next))
		s.publish(eventbus.TaskFinished, ev)
	} else {
		s.log.Warn("task failed",
			logx.String("task", t.Name),
			logx.Duration("dur", dur),
			logx.String("message", res.Message),
			logx.String("err", item.Error),
			logx.Time("next_run", next))
		s.publish(eventbus.TaskFailed, ev)
	}

	s.mu.Lock()
	historySize := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()

	if s.store != nil {
		// The dispatch ctx may already be canceled; the write gets its own
		// deadline so the outcome is not lost.
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		entry := storage.RunEntry{
			Task:      t.Name,
			Started:   started,
			Duration:  dur,
			Success:   success,
			Message:   res.Message,
			Error:     item.Error,
			SessionID: sessionID,
		}
		if err := s.store.AppendRun(sctx, entry); err != nil {
			s.log.Debug("run history write failed", logx.String("task", t.Name), logx.Err(err))
		}
	}
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
