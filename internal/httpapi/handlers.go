package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/scheduler"
	"github.com/hamed0406/sitewatch/internal/urlutil"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, event string, err error) {
	s.Logger.Error(event, zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.Repo.ListSites(r.Context())
	if err != nil {
		s.internalError(w, "list_sites_error", err)
		return
	}
	if sites == nil {
		sites = []domain.Site{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

type addPayload struct {
	URL string `json:"url"`
}

func (s *Server) handleAddSite(w http.ResponseWriter, r *http.Request) {
	var p addPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	raw := strings.TrimSpace(p.URL)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}
	u := urlutil.Normalize(raw)
	if !urlutil.Validate(u) {
		writeError(w, http.StatusBadRequest, "Invalid URL format")
		return
	}

	added, err := s.Repo.AddSite(r.Context(), u)
	if err != nil {
		s.internalError(w, "add_site_error", err)
		return
	}
	if !added {
		writeError(w, http.StatusConflict, "Site already exists")
		return
	}
	s.Logger.Info("site_added", zap.String("url", u))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Site added successfully", "url": u})
}

// siteParam reads and normalizes the url query parameter.
func siteParam(r *http.Request) string {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		return ""
	}
	return urlutil.Normalize(raw)
}

func (s *Server) handleRemoveSite(w http.ResponseWriter, r *http.Request) {
	u := siteParam(r)
	if u == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}
	removed, err := s.Repo.RemoveSite(r.Context(), u)
	if err != nil {
		s.internalError(w, "remove_site_error", err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Site not found")
		return
	}
	s.Logger.Info("site_removed", zap.String("url", u))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Site removed successfully"})
}

func (s *Server) handleClearSites(w http.ResponseWriter, r *http.Request) {
	n, err := s.Repo.ClearAll(r.Context())
	if err != nil {
		s.internalError(w, "clear_sites_error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	u := siteParam(r)
	if u == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}
	limit := s.Cfg.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	hist, err := s.Repo.History(r.Context(), u, limit)
	if err != nil {
		s.internalError(w, "history_error", err)
		return
	}
	if hist == nil {
		hist = []domain.CheckRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": hist})
}

// handleCheck runs one sweep synchronously and returns its results.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	res, err := s.sweeper(s.Cfg.Timeout).RunOnce(r.Context())
	if err != nil {
		s.internalError(w, "check_error", err)
		return
	}
	if len(res) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No sites to check"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": res})
}

type startPayload struct {
	Interval *int `json:"interval"` // seconds
	Timeout  *int `json:"timeout"`  // seconds
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	var p startPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	interval, timeout := s.Cfg.Interval, s.Cfg.Timeout
	if p.Interval != nil {
		if !config.ValidIntervalSeconds(*p.Interval) {
			writeError(w, http.StatusBadRequest, "interval must be between 5 and 86400 seconds")
			return
		}
		interval = config.Seconds(*p.Interval)
	}
	if p.Timeout != nil {
		if !config.ValidTimeoutSeconds(*p.Timeout) {
			writeError(w, http.StatusBadRequest, "timeout must be between 1 and 300 seconds")
			return
		}
		timeout = config.Seconds(*p.Timeout)
	}

	err := s.StartMonitor(interval, timeout)
	switch {
	case errors.Is(err, scheduler.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, "Monitoring is already running")
		return
	case errors.Is(err, ErrNoSites):
		writeError(w, http.StatusBadRequest, "No sites to monitor")
		return
	case err != nil:
		s.internalError(w, "monitor_start_error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Monitoring started",
		"interval": int(interval / time.Second),
		"timeout":  int(timeout / time.Second),
	})
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	if !s.StopMonitor() {
		writeError(w, http.StatusConflict, "Monitoring is not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Monitoring stopped"})
}

type statusResponse struct {
	Running   bool       `json:"running"`
	State     string     `json:"state"`
	Interval  int        `json:"interval,omitempty"`
	Timeout   int        `json:"timeout,omitempty"`
	Sweeps    int        `json:"sweeps"`
	LastStart *time.Time `json:"last_sweep_started,omitempty"`
	LastEnd   *time.Time `json:"last_sweep_finished,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.MonitorStatus()
	if !ok {
		writeJSON(w, http.StatusOK, statusResponse{State: scheduler.Idle.String()})
		return
	}
	resp := statusResponse{
		Running:   st.State == scheduler.Running,
		State:     st.State.String(),
		Interval:  int(st.Interval / time.Second),
		Timeout:   int(st.Timeout / time.Second),
		Sweeps:    st.Sweeps,
		LastError: st.LastError,
	}
	if !st.LastStart.IsZero() {
		resp.LastStart = &st.LastStart
	}
	if !st.LastEnd.IsZero() {
		resp.LastEnd = &st.LastEnd
	}
	writeJSON(w, http.StatusOK, resp)
}
