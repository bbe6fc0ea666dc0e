package session

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrClosed      = errors.New("session manager closed")
	ErrNoSession   = errors.New("no live session")
	ErrConnectFail = errors.New("session connect failed")
)

// Config controls session lifecycle behavior.
//
// RetryMax bounds how many times an operation is retried after a detected
// instrumentation crash; non-crash errors are never retried here.
type Config struct {
	RetryMax          int
	RetryBackoff      time.Duration
	VerifyOnAcquire   bool
	DisconnectTimeout time.Duration
	CrashSignatures   []string
}

func (c Config) withDefaults() Config {
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryMax == 0 {
		c.RetryMax = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 3 * time.Second
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = 10 * time.Second
	}
	if len(c.CrashSignatures) == 0 {
		c.CrashSignatures = DefaultCrashSignatures()
	}
	return c
}

// DefaultCrashSignatures lists the remote failure texts treated as "the
// automation session died" rather than an ordinary operation failure.
//
// They cover the known uiautomator2 instrumentation crash modes plus the
// transport-level symptoms of a dead driver process.
func DefaultCrashSignatures() []string {
	return []string{
		"instrumentation process is not running",
		"uiautomation not connected",
		"session is either terminated or not started",
		"session not found",
		"socket hang up",
		"connection refused",
		"connection reset",
		"broken pipe",
		"unexpected eof",
	}
}

// State describes the lifecycle position of the shared session handle.
type State string

const (
	StateAbsent     State = "absent"
	StateConnecting State = "connecting"
	StateLive       State = "live"
)

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	State      State
	SessionID  string
	Created    time.Time
	Leases     int
	Connects   uint64
	Reconnects uint64
}

// SessionEvent is emitted on the event bus for session lifecycle changes.
type SessionEvent struct {
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func matchesAny(msg string, signatures []string) bool {
	msg = strings.ToLower(msg)
	for _, sig := range signatures {
		sig = strings.ToLower(strings.TrimSpace(sig))
		if sig != "" && strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
