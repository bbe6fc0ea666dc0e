// Package server exposes droidpanel's HTTP surface.
//
// It is thin glue by design: handlers forward to the scheduler, session
// manager and run store, and never hold state of their own.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"droidpanel/internal/scheduler"
	"droidpanel/internal/session"
	"droidpanel/internal/storage"
	"droidpanel/pkg/logx"
)

type Config struct {
	Addr string
}

type Server struct {
	log      logx.Logger
	sched    *scheduler.Service
	sessions *session.Manager
	store    storage.Store

	srv *http.Server
}

func New(cfg Config, sched *scheduler.Service, sessions *session.Manager, store storage.Store, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{log: log, sched: sched, sessions: sessions, store: store}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", s.health)
	api := r.Group("/api")
	{
		api.POST("/scheduler/tick", s.tick)
		api.GET("/scheduler/status", s.status)
		api.GET("/session", s.sessionState)
		api.GET("/runs", s.runs)
	}

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Start(ctx context.Context) {
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("http server shutdown", logx.Err(err))
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("dur", time.Since(start)))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"session": s.sessions.Snapshot().State,
	})
}

// tick wakes the scheduler loop and returns immediately; it never waits
// for dispatched tasks. Safe to call repeatedly and concurrently.
func (s *Server) tick(c *gin.Context) {
	due, err := s.sched.Tick(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"triggered": true, "due": due})
}

func (s *Server) status(c *gin.Context) {
	snap := s.sched.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"initialized": snap.Initialized,
		"enabled":     snap.Enabled,
		"queue_size":  snap.QueueSize,
		"next_due":    snap.NextDue,
		"tasks":       snap.Tasks,
		"history":     snap.History,
	})
}

func (s *Server) sessionState(c *gin.Context) {
	c.JSON(http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) runs(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []storage.RunEntry{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := s.store.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []storage.RunEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": entries})
}
