package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"droidpanel/pkg/logx"
)

// Manifest is a per-unit YAML override dropped into the tasks directory as
// "<unit name>.yaml". All fields are optional; durations are Go duration
// strings.
//
// Example:
//
//	enabled: true
//	period: 24h
//	position: 4h30m
//	jitter: 10m
type Manifest struct {
	Enabled  *bool  `yaml:"enabled"`
	Period   string `yaml:"period"`
	Position string `yaml:"position"`
	Jitter   string `yaml:"jitter"`
	Cron     string `yaml:"cron"`
}

// populateLocked builds heap entries for every registered unit. Called with
// s.mu held, once, on the first tick (lazy initialization).
//
// A single unit failing validation or manifest parsing is skipped with a
// logged reason; it never aborts populating the rest. Only a tasks
// directory that exists but cannot be listed fails the population as a
// whole (initialized stays false, so the next tick retries).
func (s *Service) populateLocked(now time.Time) error {
	manifests, err := loadManifests(s.cfg.TasksDir, s.log)
	if err != nil {
		return err
	}

	accepted := 0
	for _, u := range s.units {
		name := u.Name()
		rec := u.Recurrence()
		if rec == nil && manifests[name] == nil {
			s.log.Info("unit declares no recurrence, skipping", logx.String("task", name))
			continue
		}

		var r Recurrence
		if rec != nil {
			r = *rec
		}
		if m := manifests[name]; m != nil {
			if m.Enabled != nil && !*m.Enabled {
				s.log.Info("unit disabled by manifest, skipping", logx.String("task", name))
				continue
			}
			if err := m.apply(&r); err != nil {
				s.log.Warn("invalid task manifest, skipping unit", logx.String("task", name), logx.Err(err))
				continue
			}
		}

		if err := r.Validate(); err != nil {
			s.log.Warn("invalid recurrence, skipping unit", logx.String("task", name), logx.Err(err))
			continue
		}

		t := &ScheduledTask{Name: name, Recurrence: r, Unit: u, NextRun: r.Next(now)}
		s.heap.insert(t)
		accepted++
		s.log.Debug("task scheduled",
			logx.String("task", name),
			logx.String("recurrence", r.String()),
			logx.Time("next_run", t.NextRun))
	}

	s.log.Info("task registry populated", logx.Int("scheduled", accepted), logx.Int("units", len(s.units)))
	return nil
}

func (m *Manifest) apply(r *Recurrence) error {
	if strings.TrimSpace(m.Cron) != "" {
		r.Cron = strings.TrimSpace(m.Cron)
		return nil
	}
	if err := overrideDuration(&r.Period, "period", m.Period); err != nil {
		return err
	}
	if err := overrideDuration(&r.Position, "position", m.Position); err != nil {
		return err
	}
	return overrideDuration(&r.Jitter, "jitter", m.Jitter)
}

func overrideDuration(dst *time.Duration, field, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

// loadManifests reads every *.yaml/*.yml in dir, keyed by base name.
// Unparseable files are skipped with a logged reason.
func loadManifests(dir string, log logx.Logger) (map[string]*Manifest, error) {
	out := map[string]*Manifest{}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return out, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("list tasks dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			log.Warn("unreadable task manifest, skipping", logx.String("file", path), logx.Err(err))
			continue
		}
		var m Manifest
		if err := yaml.Unmarshal(b, &m); err != nil {
			log.Warn("unparseable task manifest, skipping", logx.String("file", path), logx.Err(err))
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		out[name] = &m
	}
	return out, nil
}
