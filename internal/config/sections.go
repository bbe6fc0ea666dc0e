package config

import (
	"errors"
	"strings"
	"time"

	"droidpanel/internal/debug"
	"droidpanel/internal/driver"
	"droidpanel/internal/scheduler"
	"droidpanel/internal/session"
	"droidpanel/internal/storage"
	"droidpanel/pkg/logx"
)

// Section accessors convert the raw on-disk config into the typed configs
// each service consumes, parsing duration strings along the way. They are
// also where cross-field validation lives, so a bad value is caught at
// load/reload time rather than deep inside a service.

func (c *Config) ListenAddr() string {
	addr := strings.TrimSpace(c.Server.Addr)
	if addr == "" {
		addr = ":8686"
	}
	return addr
}

func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

func (c *Config) DriverHTTPConfig() (driver.HTTPConfig, error) {
	if strings.TrimSpace(c.Driver.BaseURL) == "" {
		return driver.HTTPConfig{}, errors.New("driver.base_url is required")
	}
	connect, err := ParseDurationOrDefault("driver.connect_timeout", c.Driver.ConnectTimeout, 30*time.Second)
	if err != nil {
		return driver.HTTPConfig{}, err
	}
	invoke, err := ParseDurationOrDefault("driver.invoke_timeout", c.Driver.InvokeTimeout, 60*time.Second)
	if err != nil {
		return driver.HTTPConfig{}, err
	}
	return driver.HTTPConfig{
		BaseURL:        c.Driver.BaseURL,
		ConnectTimeout: connect,
		InvokeTimeout:  invoke,
		Capabilities:   c.Driver.Capabilities,
	}, nil
}

func (c *Config) SessionManagerConfig() (session.Config, error) {
	backoff, err := ParseDurationField("session.retry_backoff", c.Session.RetryBackoff)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		RetryMax:        c.Session.RetryMax,
		RetryBackoff:    backoff,
		VerifyOnAcquire: c.Session.VerifyOnAcquire,
		CrashSignatures: c.Session.CrashSignatures,
	}, nil
}

func (c *Config) SchedulerServiceConfig() (scheduler.Config, error) {
	tick, err := ParseDurationField("scheduler.tick_interval", c.Scheduler.TickInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	dispatch, err := ParseDurationField("scheduler.dispatch_timeout", c.Scheduler.DispatchTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:         c.Scheduler.Enabled,
		TickInterval:    tick,
		TasksDir:        c.Scheduler.TasksDir,
		DispatchTimeout: dispatch,
		HistorySize:     c.Scheduler.HistorySize,
	}, nil
}

func (c *Config) StorageStoreConfig() (storage.Config, error) {
	if c.Storage == nil {
		return storage.Config{}, nil
	}
	busy, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      c.Storage.Driver,
		Path:        c.Storage.Path,
		BusyTimeout: busy,
		KeepRuns:    c.Storage.KeepRuns,
	}, nil
}

func (c *Config) DebugServiceConfig() debug.Config {
	if c.Debug == nil {
		return debug.Config{}
	}
	return debug.Config{
		Enabled: c.Debug.Enabled,
		Addr:    c.Debug.Addr,
		Token:   c.Debug.Token,
	}
}

// Validate runs every section accessor so a reloaded config is rejected
// before being committed or published.
func (c *Config) Validate() error {
	if _, err := c.DriverHTTPConfig(); err != nil {
		return err
	}
	if _, err := c.SessionManagerConfig(); err != nil {
		return err
	}
	if _, err := c.SchedulerServiceConfig(); err != nil {
		return err
	}
	if _, err := c.StorageStoreConfig(); err != nil {
		return err
	}
	if c.Notify != nil && c.Notify.Enabled {
		if strings.TrimSpace(c.Notify.Token) == "" {
			return errors.New("notify.token is required when notify is enabled")
		}
		if c.Notify.ChatID == 0 {
			return errors.New("notify.chat_id is required when notify is enabled")
		}
	}
	return nil
}
