// Package http exposes the admin surface: health, metrics and job lookups.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-memo-assistant/internal/config"
	"telegram-memo-assistant/internal/domain"
	"telegram-memo-assistant/internal/domain/gate"
	"telegram-memo-assistant/internal/domain/ports/repository"
)

// Pinger covers the infra dependencies health checks probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg    *config.Config
	jobs   repository.JobRepository
	gate   *gate.Gate
	redis  Pinger
	db     Pinger
	log    *zerolog.Logger
	server *http.Server
}

func NewServer(cfg *config.Config, jobs repository.JobRepository, g *gate.Gate, redis, db Pinger, logger *zerolog.Logger) *Server {
	compLog := logger.With().Str("component", "AdminServer").Logger()
	return &Server{cfg: cfg, jobs: jobs, gate: g, redis: redis, db: db, log: &compLog}
}

func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/conversations/{userID}", s.handleGetConversation)
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Admin.Port),
		Handler: r,
	}
	s.log.Info().Int("port", s.cfg.Admin.Port).Msg("admin server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := map[string]string{"redis": "ok", "database": "ok"}
	healthy := true

	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			status["redis"] = err.Error()
			healthy = false
		}
	}
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			status["database"] = err.Error()
			healthy = false
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("job lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            job.ID,
		"kind":          job.Kind,
		"user_id":       job.UserID,
		"status":        job.Status,
		"attempt_count": job.AttemptCount,
		"last_error":    job.LastError,
		"created_at":    job.CreatedAt,
		"updated_at":    job.UpdatedAt,
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if _, err := fmt.Sscanf(chi.URLParam(r, "userID"), "%d", &userID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad user id"})
		return
	}
	st, ok := s.gate.State(userID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"mode": "idle"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":          st.Mode,
		"anchor_job_id": st.AnchorJobID,
		"opened_at":     st.OpenedAt,
		"expires_at":    st.ExpiresAt,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
