// Package session owns the single shared automation-driver session.
//
// At most one live handle exists process-wide. Concurrent acquirers collapse
// onto one connect (single-flight), operations that hit a crash signature
// force a reconnect and are retried a bounded number of times, and the
// handle is torn down when the last lease is released.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"droidpanel/internal/driver"
	"droidpanel/internal/eventbus"
	"droidpanel/pkg/logx"
)

type Manager struct {
	log logx.Logger
	drv driver.Client
	bus eventbus.Bus

	mu         sync.Mutex
	cfg        Config
	handle     *driver.Handle
	connecting chan struct{}
	leases     int
	closed     bool

	connects   uint64
	reconnects uint64
}

func NewManager(cfg Config, drv driver.Client, log logx.Logger, bus eventbus.Bus) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{cfg: cfg.withDefaults(), drv: drv, log: log, bus: bus}
}

func (m *Manager) Apply(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg.withDefaults()
	m.mu.Unlock()
}

// Lease acquires the shared session for the duration of one task execution.
// The caller must Close the lease; the session is torn down once no lease
// remains. Concurrent calls never open a second session.
func (m *Manager) Lease(ctx context.Context) (*Lease, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.leases++
	m.mu.Unlock()

	if _, err := m.session(ctx); err != nil {
		m.releaseLease()
		return nil, err
	}
	return &Lease{m: m}, nil
}

// session returns the live handle, connecting if needed (single-flight).
func (m *Manager) session(ctx context.Context) (driver.Handle, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return driver.Handle{}, ErrClosed
		}
		if m.handle != nil {
			h := *m.handle
			verify := m.cfg.VerifyOnAcquire
			m.mu.Unlock()
			if verify && !m.drv.Healthy(ctx, h) {
				m.log.Warn("session failed health check, reconnecting", logx.String("session", h.ID))
				m.invalidate(h, "health_check")
				continue
			}
			return h, nil
		}
		if m.connecting != nil {
			// Another caller is connecting; wait for its result and re-check.
			ch := m.connecting
			m.mu.Unlock()
			select {
			case <-ctx.Done():
				return driver.Handle{}, ctx.Err()
			case <-ch:
			}
			continue
		}
		ch := make(chan struct{})
		m.connecting = ch
		m.mu.Unlock()

		h, err := m.drv.Connect(ctx)

		m.mu.Lock()
		m.connecting = nil
		if err == nil {
			m.handle = &h
			m.connects++
		}
		m.mu.Unlock()
		close(ch)

		if err != nil {
			return driver.Handle{}, fmt.Errorf("%w: %w", ErrConnectFail, err)
		}
		m.log.Info("session connected", logx.String("session", h.ID))
		m.publish(eventbus.SessionConnected, SessionEvent{SessionID: h.ID})
		return h, nil
	}
}

// invalidate drops the handle if it is still the current one, forcing the
// next acquire to reconnect. The remote side is closed best-effort.
func (m *Manager) invalidate(h driver.Handle, reason string) {
	m.mu.Lock()
	if m.handle == nil || m.handle.ID != h.ID {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	timeout := m.cfg.DisconnectTimeout
	m.mu.Unlock()

	m.publish(eventbus.SessionLost, SessionEvent{SessionID: h.ID, Reason: reason})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := m.drv.Disconnect(ctx, h); err != nil {
			m.log.Debug("stale session disconnect failed", logx.String("session", h.ID), logx.Err(err))
		}
	}()
}

func (m *Manager) releaseLease() {
	m.mu.Lock()
	if m.leases > 0 {
		m.leases--
	}
	idle := m.leases == 0
	var h *driver.Handle
	timeout := m.cfg.DisconnectTimeout
	if idle && m.handle != nil {
		h = m.handle
		m.handle = nil
	}
	m.mu.Unlock()

	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.drv.Disconnect(ctx, *h); err != nil {
		m.log.Debug("idle session disconnect failed", logx.String("session", h.ID), logx.Err(err))
	} else {
		m.log.Debug("idle session closed", logx.String("session", h.ID))
	}
}

// Close tears down the manager and any live session.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	h := m.handle
	m.handle = nil
	m.mu.Unlock()

	if h == nil {
		return nil
	}
	return m.drv.Disconnect(ctx, *h)
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		State:      StateAbsent,
		Leases:     m.leases,
		Connects:   m.connects,
		Reconnects: m.reconnects,
	}
	switch {
	case m.handle != nil:
		s.State = StateLive
		s.SessionID = m.handle.ID
		s.Created = m.handle.Created
	case m.connecting != nil:
		s.State = StateConnecting
	}
	return s
}

func (m *Manager) publish(typ string, data SessionEvent) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}

// Lease is the per-execution view of the shared session handed to task
// units. Its Invoke carries the crash-recovery retry loop.
type Lease struct {
	m        *Manager
	closed   sync.Once
	released atomic.Bool
}

// Invoke executes op against the current session with bounded crash
// recovery (see Manager.InvokeWithRetry). A released lease no longer backs
// an execution and must not re-acquire the session.
func (l *Lease) Invoke(ctx context.Context, op string, args any) (driver.Result, error) {
	if l.released.Load() {
		return driver.Result{}, ErrNoSession
	}
	return l.m.InvokeWithRetry(ctx, op, args, -1)
}

// SessionID reports the currently live session, if any.
func (l *Lease) SessionID() string {
	if l.released.Load() {
		return ""
	}
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.m.handle == nil {
		return ""
	}
	return l.m.handle.ID
}

// Close releases the lease; the underlying session is closed once no other
// lease remains.
func (l *Lease) Close() {
	l.closed.Do(func() {
		l.released.Store(true)
		l.m.releaseLease()
	})
}
