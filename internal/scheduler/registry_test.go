package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"droidpanel/pkg/logx"
)

func writeManifest(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func populate(t *testing.T, s *Service) {
	t.Helper()
	s.mu.Lock()
	err := s.populateLocked(time.Now())
	s.mu.Unlock()
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
}

func queuedNames(s *Service) map[string]TaskInfo {
	out := map[string]TaskInfo{}
	for _, task := range s.Snapshot().Tasks {
		out[task.Name] = task
	}
	return out
}

func TestPopulateSkipsUnschedulableUnits(t *testing.T) {
	t.Parallel()
	units := []Unit{
		&fakeUnit{name: "good", rec: &Recurrence{Period: time.Hour}},
		&fakeUnit{name: "no-recurrence"}, // nil recurrence, no manifest
		&fakeUnit{name: "bad", rec: &Recurrence{Period: time.Hour, Position: 2 * time.Hour}},
	}
	s, _ := newTestService(t, Config{Enabled: true}, units...)
	populate(t, s)

	got := queuedNames(s)
	if len(got) != 1 {
		t.Fatalf("queued = %v, want only good", got)
	}
	if _, ok := got["good"]; !ok {
		t.Fatalf("queued = %v, want good present", got)
	}
}

func TestManifestOverrides(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, "probe.yaml", "period: 24h\nposition: 4h30m\njitter: 10m\n")
	writeManifest(t, dir, "cronish.yaml", "cron: \"30 3 * * *\"\n")
	writeManifest(t, dir, "off.yaml", "enabled: false\n")
	writeManifest(t, dir, "manifest-only.yml", "period: 1h\nposition: 15m\n")

	units := []Unit{
		&fakeUnit{name: "probe", rec: &Recurrence{Period: time.Hour, Position: 5 * time.Minute}},
		&fakeUnit{name: "cronish", rec: &Recurrence{Period: time.Hour}},
		&fakeUnit{name: "off", rec: &Recurrence{Period: time.Hour}},
		&fakeUnit{name: "manifest-only"}, // schedulable only through its manifest
		&fakeUnit{name: "plain", rec: &Recurrence{Period: 2 * time.Hour}},
	}
	s, _ := newTestService(t, Config{Enabled: true, TasksDir: dir}, units...)
	populate(t, s)

	got := queuedNames(s)
	if len(got) != 4 {
		t.Fatalf("queued %d tasks (%v), want 4", len(got), got)
	}
	if _, ok := got["off"]; ok {
		t.Fatal("unit disabled by manifest must not be queued")
	}
	if p := got["probe"]; p.Period != 24*time.Hour || p.Position != 4*time.Hour+30*time.Minute || p.Jitter != 10*time.Minute {
		t.Fatalf("probe recurrence not overridden: %+v", p)
	}
	if c := got["cronish"]; c.Cron != "30 3 * * *" {
		t.Fatalf("cronish recurrence = %+v, want cron override", c)
	}
	if m := got["manifest-only"]; m.Period != time.Hour || m.Position != 15*time.Minute {
		t.Fatalf("manifest-only recurrence = %+v", m)
	}
	if p := got["plain"]; p.Period != 2*time.Hour {
		t.Fatalf("plain recurrence changed without a manifest: %+v", p)
	}
}

func TestManifestErrorsIsolatedPerUnit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, "broken.yaml", "period: not-a-duration\n")
	writeManifest(t, dir, "mangled.yaml", "{{{ not yaml")
	writeManifest(t, dir, "ignored.txt", "period: 1h\n")

	units := []Unit{
		&fakeUnit{name: "broken", rec: &Recurrence{Period: time.Hour}},
		&fakeUnit{name: "mangled", rec: &Recurrence{Period: time.Hour}},
		&fakeUnit{name: "healthy", rec: &Recurrence{Period: time.Hour}},
	}
	s, _ := newTestService(t, Config{Enabled: true, TasksDir: dir}, units...)
	populate(t, s)

	got := queuedNames(s)
	if _, ok := got["broken"]; ok {
		t.Fatal("unit with invalid manifest duration must be skipped")
	}
	// an unparseable manifest file is dropped, the unit keeps its defaults
	if m, ok := got["mangled"]; !ok || m.Period != time.Hour {
		t.Fatalf("mangled = %+v, want scheduled with built-in recurrence", m)
	}
	if _, ok := got["healthy"]; !ok {
		t.Fatal("healthy unit must survive neighboring manifest failures")
	}
}

func TestLoadManifestsMissingDir(t *testing.T) {
	t.Parallel()
	m, err := loadManifests(filepath.Join(t.TempDir(), "nope"), logx.Nop())
	if err != nil {
		t.Fatalf("missing tasks dir should not error, got %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("manifests = %v, want empty", m)
	}

	m, err = loadManifests("", logx.Nop())
	if err != nil || len(m) != 0 {
		t.Fatalf("empty dir config: %v, %v", m, err)
	}
}
