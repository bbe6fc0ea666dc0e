package config

// Config is the on-disk configuration (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m"); they
// are parsed and validated by the section accessors below before any
// service sees them.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Driver    DriverConfig    `json:"driver"`
	Session   SessionConfig   `json:"session"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Notify    *NotifyConfig   `json:"notify,omitempty"`
	Debug     *DebugConfig    `json:"debug,omitempty"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DriverConfig points at the remote automation driver.
type DriverConfig struct {
	BaseURL        string         `json:"base_url"`
	ConnectTimeout string         `json:"connect_timeout,omitempty"`
	InvokeTimeout  string         `json:"invoke_timeout,omitempty"`
	Capabilities   map[string]any `json:"capabilities,omitempty"`
}

// SessionConfig controls crash recovery for the shared driver session.
type SessionConfig struct {
	RetryMax        int      `json:"retry_max,omitempty"`
	RetryBackoff    string   `json:"retry_backoff,omitempty"`
	VerifyOnAcquire bool     `json:"verify_on_acquire,omitempty"`
	CrashSignatures []string `json:"crash_signatures,omitempty"`
}

// SchedulerConfig controls the periodic task loop.
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "30s"
//   - dispatch_timeout: "2m"
//   - history_size: 200
type SchedulerConfig struct {
	Enabled         bool   `json:"enabled"`
	TickInterval    string `json:"tick_interval,omitempty"`
	TasksDir        string `json:"tasks_dir,omitempty"`
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
}

// StorageConfig controls the optional run-history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./droidpanel.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	KeepRuns    int    `json:"keep_runs,omitempty"`
}

// DebugConfig controls the optional pprof endpoint. A non-loopback addr
// requires a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

// NotifyConfig controls Telegram failure alerts.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}
