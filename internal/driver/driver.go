// Package driver talks to the remote mobile-automation driver.
//
// The rest of droidpanel only depends on the Client interface; the concrete
// HTTP client lives in this package but tests substitute fakes freely.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Handle identifies one live automation session on the remote driver.
type Handle struct {
	ID      string
	Created time.Time
}

func (h Handle) IsZero() bool { return h.ID == "" }

// Result is the raw value returned by a driver operation.
type Result struct {
	Value json.RawMessage
}

// Client is the capability surface droidpanel consumes.
//
// Invoke may return *Error carrying the remote failure message; the session
// manager inspects that message for crash signatures.
type Client interface {
	Connect(ctx context.Context) (Handle, error)
	Disconnect(ctx context.Context, h Handle) error
	Invoke(ctx context.Context, h Handle, op string, args any) (Result, error)
	Healthy(ctx context.Context, h Handle) bool
}

// Error is a failure reported by the remote driver.
//
// Message preserves the remote text verbatim so that crash-signature
// matching sees exactly what the driver said.
type Error struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("driver: %s: %s: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("driver: %s: %s", e.Op, e.Message)
}
