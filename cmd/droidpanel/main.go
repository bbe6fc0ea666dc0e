package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"droidpanel/internal/config"
	"droidpanel/internal/debug"
	"droidpanel/internal/driver"
	"droidpanel/internal/eventbus"
	"droidpanel/internal/notify"
	"droidpanel/internal/scheduler"
	"droidpanel/internal/server"
	"droidpanel/internal/session"
	"droidpanel/internal/storage"
	"droidpanel/internal/units"
	"droidpanel/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cm := config.NewManager(cfgPath)
	cfg, err := cm.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	defer logSvc.Close()
	cm.SetLogger(log)

	bus := eventbus.New()

	storeCfg, err := cfg.StorageStoreConfig()
	if err != nil {
		return err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("component", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	drvCfg, err := cfg.DriverHTTPConfig()
	if err != nil {
		return err
	}
	drv, err := driver.NewHTTPClient(drvCfg)
	if err != nil {
		return err
	}

	sessCfg, err := cfg.SessionManagerConfig()
	if err != nil {
		return err
	}
	sessions := session.NewManager(sessCfg, drv, log.With(logx.String("component", "session")), bus)

	schedCfg, err := cfg.SchedulerServiceConfig()
	if err != nil {
		return err
	}
	sched := scheduler.New(schedCfg, registeredUnits(), sessions, store,
		log.With(logx.String("component", "scheduler")), bus)

	var notifier *notify.Service
	if cfg.Notify != nil {
		notifier, err = notify.New(notify.Config{
			Enabled:    cfg.Notify.Enabled,
			Token:      cfg.Notify.Token,
			ChatID:     cfg.Notify.ChatID,
			RatePerSec: cfg.Notify.RatePerSec,
		}, log.With(logx.String("component", "notify")), bus)
		if err != nil {
			return err
		}
	}

	srv := server.New(server.Config{Addr: cfg.ListenAddr()}, sched, sessions, store,
		log.With(logx.String("component", "http")))

	dbg := debug.New(cfg.DebugServiceConfig(), log.With(logx.String("component", "debug")))
	if err := dbg.Start(ctx); err != nil {
		return err
	}

	sched.Start(ctx)
	if notifier != nil {
		notifier.Start(ctx)
	}
	srv.Start(ctx)

	go func() {
		if err := cm.Watch(ctx); err != nil {
			log.Warn("config watch exited", logx.Err(err))
		}
	}()
	go applyReloads(ctx, cm, logSvc, sched, sessions, notifier, log)

	log.Info("droidpanel started", logx.String("config", cfgPath))
	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()

	srv.Stop(stopCtx)
	dbg.Stop(stopCtx)
	sched.Stop(stopCtx)
	if notifier != nil {
		notifier.Stop(stopCtx)
	}
	if err := sessions.Close(stopCtx); err != nil {
		log.Warn("session teardown failed", logx.Err(err))
	}
	log.Info("droidpanel stopped")
	return nil
}

// registeredUnits is the compiled-in task table. Adding a task is New() +
// one line here; recurrence overrides live in the tasks directory.
func registeredUnits() []scheduler.Unit {
	return []scheduler.Unit{
		units.NewDeviceHealthProbe(),
		units.NewHierarchySnapshot(),
		units.NewScreenshotJanitor(),
	}
}

// applyReloads routes hot-reloaded config to the services whose section
// actually changed. Structural sections (driver, storage, server) need a
// restart and are only logged.
func applyReloads(ctx context.Context, cm *config.Manager, logSvc *logx.Service,
	sched *scheduler.Service, sessions *session.Manager, notifier *notify.Service, log logx.Logger) {

	sub := cm.Subscribe(1)
	defer cm.Unsubscribe(sub)

	prev := cm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			changed := config.Diff(prev, cfg)
			prev = cfg
			for _, section := range changed {
				switch section {
				case config.SectionLogging:
					logSvc.Apply(cfg.LogxConfig())
				case config.SectionScheduler:
					if sc, err := cfg.SchedulerServiceConfig(); err == nil {
						sched.Apply(sc)
					}
				case config.SectionSession:
					if sc, err := cfg.SessionManagerConfig(); err == nil {
						sessions.Apply(sc)
					}
				case config.SectionNotify:
					if notifier != nil && cfg.Notify != nil {
						notifier.Apply(notify.Config{
							Enabled:    cfg.Notify.Enabled,
							Token:      cfg.Notify.Token,
							ChatID:     cfg.Notify.ChatID,
							RatePerSec: cfg.Notify.RatePerSec,
						})
					}
				default:
					log.Info("config change requires restart", logx.String("section", section))
				}
			}
		}
	}
}
