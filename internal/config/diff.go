package config

import "encoding/json"

// Section names reported by Diff.
const (
	SectionServer    = "server"
	SectionLogging   = "logging"
	SectionDriver    = "driver"
	SectionSession   = "session"
	SectionScheduler = "scheduler"
	SectionStorage   = "storage"
	SectionNotify    = "notify"
	SectionDebug     = "debug"
)

// Diff reports which top-level sections differ between two configs, so a
// hot reload only touches the services whose config actually changed.
func Diff(old, new *Config) []string {
	if old == nil || new == nil {
		return []string{
			SectionServer, SectionLogging, SectionDriver, SectionSession,
			SectionScheduler, SectionStorage, SectionNotify, SectionDebug,
		}
	}

	var changed []string
	add := func(name string, a, b any) {
		if !jsonEqual(a, b) {
			changed = append(changed, name)
		}
	}
	add(SectionServer, old.Server, new.Server)
	add(SectionLogging, old.Logging, new.Logging)
	add(SectionDriver, old.Driver, new.Driver)
	add(SectionSession, old.Session, new.Session)
	add(SectionScheduler, old.Scheduler, new.Scheduler)
	add(SectionStorage, old.Storage, new.Storage)
	add(SectionNotify, old.Notify, new.Notify)
	add(SectionDebug, old.Debug, new.Debug)
	return changed
}

func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
