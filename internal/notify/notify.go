// Package notify pushes operator alerts for failed tasks and lost sessions
// to a Telegram chat.
//
// Alerts are best-effort: the pipeline is fed from the event bus, rate
// limited, and drops rather than blocks when Telegram is slow.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"droidpanel/internal/eventbus"
	"droidpanel/internal/scheduler"
	"droidpanel/internal/session"
	"droidpanel/pkg/logx"
)

type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerSec int
}

type Service struct {
	log logx.Logger
	bus eventbus.Bus

	mu      sync.Mutex
	cfg     Config
	bot     *tele.Bot
	limiter *rate.Limiter

	stopCh   chan struct{}
	workerWG sync.WaitGroup
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	if cfg.Enabled && strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify: token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, bus: bus}
	s.applyLocked(cfg)

	if cfg.Enabled {
		// Offline settings: no poller, no getMe roundtrip at construction.
		b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
		if err != nil {
			return nil, fmt.Errorf("notify: init bot: %w", err)
		}
		s.bot = b
	}
	return s, nil
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil || !s.cfg.Enabled || s.bus == nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	events, unsub := s.bus.Subscribe(64)
	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.handle(ctx, ev)
			}
		}
	}()
	s.log.Info("notifier started")
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) handle(ctx context.Context, ev eventbus.Event) {
	var msg string
	switch ev.Type {
	case eventbus.TaskFailed:
		te, ok := ev.Data.(scheduler.TaskEvent)
		if !ok {
			return
		}
		reason := te.Error
		if reason == "" {
			reason = te.Message
		}
		msg = fmt.Sprintf("⚠️ task %q failed after %s\n%s\nnext run: %s",
			te.Name, te.Duration.Round(time.Millisecond), reason,
			te.NextRun.Format(time.RFC3339))
	case eventbus.SessionLost:
		se, ok := ev.Data.(session.SessionEvent)
		if !ok {
			return
		}
		msg = fmt.Sprintf("🔌 automation session %s lost (%s), reconnecting", se.SessionID, se.Reason)
	default:
		return
	}

	s.mu.Lock()
	lim := s.limiter
	chatID := s.cfg.ChatID
	bot := s.bot
	s.mu.Unlock()

	if bot == nil || chatID == 0 {
		return
	}
	if !lim.Allow() {
		s.log.Debug("alert dropped (rate limited)", logx.String("type", ev.Type))
		return
	}
	if _, err := bot.Send(tele.ChatID(chatID), msg); err != nil {
		s.log.Warn("alert send failed", logx.String("type", ev.Type), logx.Err(err))
	}
}
