package session

import (
	"context"
	"time"

	"droidpanel/internal/driver"
	"droidpanel/internal/eventbus"
	"droidpanel/pkg/logx"
)

// IsCrash reports whether err looks like the remote instrumentation died
// (as opposed to an ordinary operation failure).
func (m *Manager) IsCrash(err error) bool {
	if err == nil {
		return false
	}
	m.mu.Lock()
	sigs := m.cfg.CrashSignatures
	m.mu.Unlock()
	return matchesAny(err.Error(), sigs)
}

// InvokeWithRetry executes op against the current session. When the failure
// carries a crash signature and retries remain, the handle is discarded
// (forcing a reconnect), a fixed backoff elapses, and the whole operation is
// retried. Non-crash errors surface immediately so genuine operation
// failures are not masked as transient.
//
// maxRetries < 0 means "use the configured default". After exhaustion the
// last error is returned; the handle is guaranteed to be either absent or
// freshly connected, never a known-bad one.
func (m *Manager) InvokeWithRetry(ctx context.Context, op string, args any, maxRetries int) (driver.Result, error) {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	if maxRetries < 0 {
		maxRetries = cfg.RetryMax
	}

	var lastErr error
	reconnecting := false
	for attempt := 0; ; attempt++ {
		h, err := m.session(ctx)
		if err != nil {
			// Connect failures already leave the handle absent; retrying
			// them here would just repeat the same dial.
			return driver.Result{}, err
		}
		if reconnecting {
			// Count and announce the reconnect only once the new handle
			// actually exists; a failed re-dial returns above.
			reconnecting = false
			m.mu.Lock()
			m.reconnects++
			m.mu.Unlock()
			m.publish(eventbus.SessionReconnected, SessionEvent{SessionID: h.ID, Reason: "crash:" + op})
		}

		res, err := m.drv.Invoke(ctx, h, op, args)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !m.IsCrash(err) {
			return driver.Result{}, err
		}

		m.log.Warn("session crash detected",
			logx.String("op", op),
			logx.String("session", h.ID),
			logx.Int("attempt", attempt+1),
			logx.Err(err))
		m.invalidate(h, "crash:"+op)

		if attempt >= maxRetries {
			return driver.Result{}, lastErr
		}

		if cfg.RetryBackoff > 0 {
			tmr := time.NewTimer(cfg.RetryBackoff)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				return driver.Result{}, ctx.Err()
			case <-tmr.C:
			}
		}

		reconnecting = true
	}
}
