package units

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"droidpanel/internal/driver"
	"droidpanel/internal/session"
	"droidpanel/pkg/logx"
)

// scriptDriver answers each op with a canned value or error.
type scriptDriver struct {
	values map[string]any
	errs   map[string]error
	shell  []string
}

func (d *scriptDriver) Connect(ctx context.Context) (driver.Handle, error) {
	return driver.Handle{ID: "sess-1", Created: time.Now()}, nil
}
func (d *scriptDriver) Disconnect(ctx context.Context, h driver.Handle) error { return nil }
func (d *scriptDriver) Healthy(ctx context.Context, h driver.Handle) bool     { return true }
func (d *scriptDriver) Invoke(ctx context.Context, h driver.Handle, op string, args any) (driver.Result, error) {
	if err := d.errs[op]; err != nil {
		return driver.Result{}, err
	}
	if op == "shell" {
		if m, ok := args.(map[string]any); ok {
			d.shell = append(d.shell, m["command"].(string))
		}
	}
	b, _ := json.Marshal(d.values[op])
	return driver.Result{Value: b}, nil
}

func leaseFor(t *testing.T, d driver.Client) *session.Lease {
	t.Helper()
	m := session.NewManager(session.Config{RetryBackoff: time.Millisecond}, d, logx.Nop(), nil)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	l, err := m.Lease(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(l.Close)
	return l
}

func TestUnitsDeclareValidRecurrences(t *testing.T) {
	t.Parallel()
	units := []interface {
		Name() string
	}{
		NewHierarchySnapshot(),
		NewScreenshotJanitor(),
		NewDeviceHealthProbe(),
	}
	seen := map[string]bool{}
	for _, u := range units {
		if seen[u.Name()] {
			t.Fatalf("duplicate unit name %q", u.Name())
		}
		seen[u.Name()] = true
	}

	for _, r := range []interface {
		Validate() error
	}{
		NewHierarchySnapshot().Recurrence(),
		NewScreenshotJanitor().Recurrence(),
		NewDeviceHealthProbe().Recurrence(),
	} {
		if err := r.Validate(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHierarchySnapshot(t *testing.T) {
	t.Parallel()
	d := &scriptDriver{values: map[string]any{"source": "<hierarchy><node/></hierarchy>"}}
	res, err := NewHierarchySnapshot().Execute(context.Background(), leaseFor(t, d))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || !strings.Contains(res.Message, "bytes") {
		t.Fatalf("result = %+v", res)
	}

	empty := &scriptDriver{values: map[string]any{"source": ""}}
	res, err = NewHierarchySnapshot().Execute(context.Background(), leaseFor(t, empty))
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatalf("empty hierarchy must not report success: %+v", res)
	}

	broken := &scriptDriver{errs: map[string]error{"source": errors.New("element not found")}}
	if _, err := NewHierarchySnapshot().Execute(context.Background(), leaseFor(t, broken)); err == nil {
		t.Fatal("driver error must propagate")
	}
}

func TestScreenshotJanitorCommand(t *testing.T) {
	t.Parallel()
	d := &scriptDriver{}
	u := NewScreenshotJanitor()
	res, err := u.Execute(context.Background(), leaseFor(t, d))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(d.shell) != 1 || !strings.Contains(d.shell[0], "-mtime +7") || !strings.Contains(d.shell[0], u.Dir) {
		t.Fatalf("shell commands = %v", d.shell)
	}
}

func TestDeviceHealthProbe(t *testing.T) {
	t.Parallel()
	healthy := &scriptDriver{values: map[string]any{
		"deviceInfo": map[string]any{"battery": 80, "temperature": 30, "display": "1080x2400"},
	}}
	res, err := NewDeviceHealthProbe().Execute(context.Background(), leaseFor(t, healthy))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || !strings.Contains(res.Message, "battery=80%") {
		t.Fatalf("result = %+v", res)
	}

	low := &scriptDriver{values: map[string]any{
		"deviceInfo": map[string]any{"battery": 5},
	}}
	res, err = NewDeviceHealthProbe().Execute(context.Background(), leaseFor(t, low))
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || !strings.Contains(res.Message, "battery low") {
		t.Fatalf("low battery result = %+v", res)
	}
}
