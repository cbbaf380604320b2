// Package server exposes a thin HTTP control surface over the autonomy
// control plane: list/force scheduled jobs, read and adjust policy state,
// toggle full-auto, and read the alert feed. The dashboard itself is out
// of scope; this is the wire format a dashboard or operator script would
// call.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/perpautopilot/internal/alerts"
	"github.com/aristath/perpautopilot/internal/clock"
	"github.com/aristath/perpautopilot/internal/eventscan"
	"github.com/aristath/perpautopilot/internal/policy"
	"github.com/aristath/perpautopilot/internal/scheduler"
	"github.com/aristath/perpautopilot/internal/store"
)

// Config holds server configuration.
type Config struct {
	Port       int
	Log        zerolog.Logger
	DevMode    bool
	Clock      clock.Clock
	Scheduler  *scheduler.Scheduler
	PolicyRepo *store.PolicyRepository
	Engine     *policy.Engine
	Alerts     *alerts.Pipeline
	AlertRepo  *store.AlertRepository
	EventScan  *eventscan.Coordinator
	ScanJob    string // scheduler job name forced when eventscan allows an off-cycle scan
}

// Server is the control-plane HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	clock      clock.Clock
	scheduler  *scheduler.Scheduler
	policyRepo *store.PolicyRepository
	engine     *policy.Engine
	alerts     *alerts.Pipeline
	alertRepo  *store.AlertRepository
	eventScan  *eventscan.Coordinator
	scanJob    string
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		clock:      cfg.Clock,
		scheduler:  cfg.Scheduler,
		policyRepo: cfg.PolicyRepo,
		engine:     cfg.Engine,
		alerts:     cfg.Alerts,
		alertRepo:  cfg.AlertRepo,
		eventScan:  cfg.EventScan,
		scanJob:    cfg.ScanJob,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/{name}/force", s.handleForceJob)
		})

		r.Route("/policy", func(r chi.Router) {
			r.Get("/state", s.handleGetPolicyState)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
		})

		r.Route("/autonomy", func(r chi.Router) {
			r.Post("/full-auto", s.handleSetFullAuto)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Post("/{id}/resolve", s.handleResolveAlert)
			r.Post("/{id}/acknowledge", s.handleAcknowledgeAlert)
		})

		r.Post("/events/notify", s.handleEventNotify)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.scheduler.ListJobs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleForceJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.scheduler.ForceRun(r.Context(), name); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ran", "job": name})
}

func (s *Server) handleGetPolicyState(w http.ResponseWriter, r *http.Request) {
	sessionDate := r.URL.Query().Get("date")
	if sessionDate == "" {
		sessionDate = policy.SessionDateFor(s.clock.Now())
	}
	state, err := s.policyRepo.Get(sessionDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":     state,
		"full_auto": s.engine.FullAuto(),
	})
}

// handlePause forces observation mode for a given duration (default 24h),
// a reversible manual "pause" control.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DurationMinutes int    `json:"duration_minutes"`
		Reason          string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.DurationMinutes <= 0 {
		body.DurationMinutes = 24 * 60
	}
	if body.Reason == "" {
		body.Reason = "manual pause via control surface"
	}

	now := s.clock.Now()
	sessionDate := policy.SessionDateFor(now)
	state, err := s.policyRepo.Get(sessionDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	until := now.Add(time.Duration(body.DurationMinutes) * time.Minute)
	state.ObservationOnlyUntil = &until
	state.Reason = body.Reason
	state.UpdatedAt = now
	if err := s.policyRepo.Upsert(*state); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused", "until": clock.ISOMilli(until)})
}

// handleResume clears observation mode immediately.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	sessionDate := policy.SessionDateFor(now)
	state, err := s.policyRepo.Get(sessionDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	state.ObservationOnlyUntil = nil
	state.Reason = "resumed via control surface"
	state.UpdatedAt = now
	if err := s.policyRepo.Upsert(*state); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleSetFullAuto(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.engine.SetFullAuto(body.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"full_auto": s.engine.FullAuto()})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	rows, err := s.alertRepo.ListRecent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := s.alerts.Resolve(id, body.Detail); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		By string `json:"by"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := s.alerts.Acknowledge(id, body.By); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

// handleEventNotify lets an external news/event feed report a burst of
// items; if the coordinator's debounce allows it, the policy scan job is
// forced off-cycle instead of waiting for the next scheduled tick.
func (s *Server) handleEventNotify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventKey  string `json:"event_key"`
		ItemCount int    `json:"item_count"`
		MinItems  int    `json:"min_items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result := s.eventScan.TryAcquire(eventscan.EvaluateInput{
		EventKey:  body.EventKey,
		ItemCount: body.ItemCount,
		MinItems:  body.MinItems,
	})
	if result.Decision != eventscan.Allowed {
		writeJSON(w, http.StatusOK, map[string]interface{}{"decision": result.Decision, "wait_ms": result.WaitMs})
		return
	}

	if err := s.scheduler.ForceRun(r.Context(), s.scanJob); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decision": result.Decision, "forced_job": s.scanJob})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
