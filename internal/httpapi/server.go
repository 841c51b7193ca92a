package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/scheduler"
)

// ErrNoSites is returned when the monitor is started with an empty site list.
var ErrNoSites = errors.New("no sites to monitor")

// CheckerFactory builds a probe for the given per-request timeout.
type CheckerFactory func(timeout time.Duration) probe.Checker

func HTTPCheckers(timeout time.Duration) probe.Checker { return probe.NewHTTPChecker(timeout) }

type Server struct {
	Logger     *zap.Logger
	Repo       repo.Repository
	NewChecker CheckerFactory
	Cfg        config.Config

	mu      sync.Mutex
	monitor *scheduler.Scheduler
}

func NewServer(l *zap.Logger, r repo.Repository, newChecker CheckerFactory, cfg config.Config) *Server {
	if newChecker == nil {
		newChecker = HTTPCheckers
	}
	return &Server{Logger: l, Repo: r, NewChecker: newChecker, Cfg: cfg}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.RequestLog(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(apimw.Metrics)

	if len(s.Cfg.AllowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.Cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(s.Cfg.RateLimitRPM, s.Cfg.RateLimitBurst))

		r.Get("/sites", s.handleListSites)
		r.Post("/sites", s.handleAddSite)
		r.Delete("/sites", s.handleRemoveSite)
		r.Post("/sites/clear", s.handleClearSites)
		r.Get("/sites/history", s.handleHistory)

		r.Post("/check", s.handleCheck)

		r.Post("/monitor/start", s.handleMonitorStart)
		r.Post("/monitor/stop", s.handleMonitorStop)
		r.Get("/monitor/status", s.handleMonitorStatus)
	})
	return r
}

func (s *Server) sweeper(timeout time.Duration) *scheduler.Sweeper {
	return scheduler.NewSweeper(s.Logger, s.Repo, s.NewChecker(timeout), timeout, s.Cfg.Concurrency)
}

// StartMonitor launches the background loop. At most one loop runs per
// Server; a loop that ended on its own may be replaced. A running loop is
// reported before an empty site list.
func (s *Server) StartMonitor(interval, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitor != nil && s.monitor.Running() {
		return scheduler.ErrAlreadyStarted
	}

	sites, err := s.Repo.ListSites(context.Background())
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		return ErrNoSites
	}
	m := scheduler.New(s.sweeper(timeout), interval, s.Logger)
	if err := m.Start(context.Background()); err != nil {
		return err
	}
	s.monitor = m
	return nil
}

// StopMonitor stops the running loop and reports whether one was running.
func (s *Server) StopMonitor() bool {
	s.mu.Lock()
	m := s.monitor
	s.mu.Unlock()
	if m == nil || !m.Running() {
		return false
	}
	m.Stop()
	return true
}

// MonitorStatus returns the current loop's status; ok is false when no loop
// was ever started.
func (s *Server) MonitorStatus() (st scheduler.Status, ok bool) {
	s.mu.Lock()
	m := s.monitor
	s.mu.Unlock()
	if m == nil {
		return scheduler.Status{}, false
	}
	return m.Status(), true
}

// Shutdown stops the monitor loop, if any.
func (s *Server) Shutdown() {
	s.StopMonitor()
}
