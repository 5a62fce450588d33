package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"script-breakdown/internal/domain/model"
	"script-breakdown/internal/usecase"
)

// StatusCache is the read side of the job snapshot cache. A miss falls
// through to the job table.
type StatusCache interface {
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Store(ctx context.Context, job *model.Job) error
	Invalidate(ctx context.Context, jobID string) error
}

type Server struct {
	jobUC  *usecase.JobUseCase
	cache  StatusCache
	auth   *AuthManager
	apiKey string
	log    *zerolog.Logger
}

func NewServer(jobUC *usecase.JobUseCase, cache StatusCache, auth *AuthManager, apiKey string, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		jobUC:  jobUC,
		cache:  cache,
		auth:   auth,
		apiKey: apiKey,
		log:    &l,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/jobs", s.handleCreateJob)
			r.Get("/jobs/{id}", s.handleGetJob)
			r.Delete("/jobs/{id}", s.handleCancelJob)
		})
	})
	return r
}

// authMiddleware accepts either the static API key as a bearer token or
// a session cookie minted by the login endpoint. With no key configured
// (dev mode) everything passes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		if hdr := r.Header.Get("Authorization"); hdr != "" {
			parts := strings.SplitN(hdr, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && parts[1] == s.apiKey {
				next.ServeHTTP(w, r)
				return
			}
		}

		if s.auth != nil {
			if _, err := s.auth.ParseFromRequest(r); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}
