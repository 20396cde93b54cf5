// Package webui provides the HTTP dashboard for monitoring and steering the
// assistant: agent status, conflicts, interaction replies, cycle history,
// and the daily brief.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assistant/pkg/agent"
	"assistant/pkg/interaction"
	"assistant/pkg/logx"
	"assistant/pkg/metrics"
	"assistant/pkg/persistence"
	"assistant/pkg/version"
)

const historyLimit = 50

// Server is the dashboard HTTP server. History may be nil; the history
// endpoints then report 503.
type Server struct {
	driver  *agent.Driver
	history *persistence.DatabaseOperations
	usage   *metrics.QueryService
	logger  *logx.Logger
}

// NewServer creates a dashboard server over a driver.
func NewServer(driver *agent.Driver, history *persistence.DatabaseOperations) *Server {
	return &Server{
		driver:  driver,
		history: history,
		logger:  logx.NewLogger("webui"),
	}
}

// SetUsageService enables the /api/usage endpoint backed by an external
// Prometheus.
func (s *Server) SetUsageService(usage *metrics.QueryService) {
	s.usage = usage
}

// Router builds the chi router with all dashboard routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/conflicts", s.handleConflicts)
		r.Get("/transitions", s.handleTransitions)
		r.Get("/interactions", s.handleInteractions)
		r.Get("/cycles", s.handleCycles)
		r.Get("/brief", s.handleBrief)
		r.Get("/logs", s.handleLogs)
		r.Get("/usage", s.handleUsage)

		r.Post("/commands/start", s.handleStart)
		r.Post("/commands/stop", s.handleStop)
		r.Post("/commands/force-check", s.handleForceCheck)
		r.Post("/interactions/{id}/reply", s.handleReply)
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, format string, args ...any) {
	s.writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleStatus implements GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.driver.GetSnapshot())
}

// handleConflicts implements GET /api/conflicts.
func (s *Server) handleConflicts(w http.ResponseWriter, _ *http.Request) {
	snap := s.driver.GetSnapshot()
	s.writeJSON(w, http.StatusOK, snap.ActiveConflicts)
}

// handleTransitions implements GET /api/transitions.
func (s *Server) handleTransitions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.driver.History())
}

// handleInteractions implements GET /api/interactions. The active
// interaction, if any, is first; settled ones follow from the database.
func (s *Server) handleInteractions(w http.ResponseWriter, _ *http.Request) {
	response := struct {
		Active *interaction.Interaction        `json:"active,omitempty"`
		Recent []persistence.InteractionRecord `json:"recent"`
	}{
		Active: s.driver.GetSnapshot().ActiveInteraction,
		Recent: []persistence.InteractionRecord{},
	}

	if s.history != nil {
		recent, err := s.history.RecentInteractions(historyLimit)
		if err != nil {
			s.logger.Error("Failed to load interaction history: %v", err)
			s.writeError(w, http.StatusInternalServerError, "failed to load interaction history")
			return
		}
		response.Recent = recent
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleCycles implements GET /api/cycles.
func (s *Server) handleCycles(w http.ResponseWriter, _ *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history not available")
		return
	}
	cycles, err := s.history.RecentCycles(historyLimit)
	if err != nil {
		s.logger.Error("Failed to load cycle history: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load cycle history")
		return
	}
	s.writeJSON(w, http.StatusOK, cycles)
}

// handleBrief implements GET /api/brief?day=YYYY-MM-DD (default today).
func (s *Server) handleBrief(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history not available")
		return
	}

	day := time.Now().UTC()
	if dayStr := r.URL.Query().Get("day"); dayStr != "" {
		parsed, err := time.Parse("2006-01-02", dayStr)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid day parameter (use YYYY-MM-DD)")
			return
		}
		day = parsed
	}

	brief, err := s.history.BriefFor(day)
	if err != nil {
		s.logger.Error("Failed to build brief: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to build brief")
		return
	}
	s.writeJSON(w, http.StatusOK, brief)
}

// handleLogs implements GET /api/logs?component=X&since=RFC3339.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	component := r.URL.Query().Get("component")

	var since time.Time
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid since parameter (use RFC3339)")
			return
		}
		since = parsed
	}

	s.writeJSON(w, http.StatusOK, logx.GetRecentLogEntries(component, since))
}

// handleUsage implements GET /api/usage?window=24h.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.writeError(w, http.StatusServiceUnavailable, "usage queries not configured")
		return
	}

	window := 24 * time.Hour
	if windowStr := r.URL.Query().Get("window"); windowStr != "" {
		parsed, err := time.ParseDuration(windowStr)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid window parameter (use a Go duration)")
			return
		}
		window = parsed
	}

	summary, err := s.usage.Usage(r.Context(), window)
	if err != nil {
		s.logger.Error("Usage query failed: %v", err)
		s.writeError(w, http.StatusBadGateway, "usage query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// handleStart implements POST /api/commands/start.
func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.driver.Start(); err != nil {
		s.writeError(w, http.StatusConflict, "%v", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleStop implements POST /api/commands/stop.
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.driver.Stop()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopped"})
}

// handleForceCheck implements POST /api/commands/force-check.
func (s *Server) handleForceCheck(w http.ResponseWriter, _ *http.Request) {
	if !s.driver.Running() {
		s.writeError(w, http.StatusConflict, "agent not running")
		return
	}
	s.driver.ForceCheck()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "check requested"})
}

// handleReply implements POST /api/interactions/{id}/reply. A reply to a
// closed or expired interaction gets 409; it is never executed.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Text == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	mgr := s.driver.InteractionManager()
	if mgr == nil {
		s.writeError(w, http.StatusServiceUnavailable, "interaction channel not available")
		return
	}
	if err := mgr.SubmitReply(id, body.Text); err != nil {
		if errors.Is(err, interaction.ErrStaleInteraction) {
			s.writeError(w, http.StatusConflict, "interaction is no longer open")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "reply accepted"})
}

// StartServer serves the dashboard until ctx is cancelled.
func (s *Server) StartServer(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting dashboard on %s", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down dashboard")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck // Parent context is cancelled; shutdown needs a fresh one
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Dashboard shutdown failed: %v", err)
		}
	}()

	return nil
}
