// Package api exposes the recommendation engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"project-recommender/internal/common/errors"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/common/observability"
	"project-recommender/internal/models"
	"project-recommender/internal/recommender/service"
)

// Recommender is the engine surface the handlers call.
type Recommender interface {
	Recommend(ctx context.Context, req models.RecommendationRequest) (*models.RecommendationResponse, error)
	RecordFeedback(ctx context.Context, event models.FeedbackEvent) (*models.FeedbackAck, error)
	CatalogChanged(ctx context.Context, change models.CatalogChange) int
	Stats() service.Stats
}

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	config   *Config
	service  Recommender
	identity Identifier
	errors   *errors.ErrorHandler
	logger   logger.Logger
	obs      *observability.Observability
	metrics  http.Handler
	checks   map[string]ReadinessCheck
}

type Option func(*Server)

func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

func WithObservability(o *observability.Observability) Option {
	return func(s *Server) { s.obs = o }
}

// WithMetricsHandler replaces the default Prometheus handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func NewServer(config *Config, svc Recommender, identity Identifier, log logger.Logger, opts ...Option) *Server {
	if config == nil {
		config = LoadConfig()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if identity == nil {
		identity = HeaderIdentity{Header: config.UserHeader}
	}
	log = logger.ForComponent(log, "api")

	s := &Server{
		config:   config,
		service:  svc,
		identity: identity,
		errors:   errors.NewErrorHandler(log),
		logger:   log,
		obs:      &observability.Observability{},
		metrics:  promhttp.Handler(),
		checks:   make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", s.metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identify)

		r.Post("/recommendations", s.postRecommendations)
		r.Get("/recommendations/stats", s.stats)
		r.Get("/users/{userID}/recommendations", s.userRecommendations)
		r.Get("/projects/{projectID}/similar", s.similarProjects)
		r.With(s.requireIdentity, s.feedbackLimiter()).Post("/feedback", s.postFeedback)
		r.Post("/catalog/changes", s.catalogChanged)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.errors.WriteError(w, r, errors.NewResourceNotFoundError("route", r.URL.Path))
	})
	return r
}

// feedbackLimiter throttles feedback per acting user.
func (s *Server) feedbackLimiter() func(http.Handler) http.Handler {
	if s.config.FeedbackRateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.config.FeedbackRateLimit,
		s.config.FeedbackRateWindow,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return UserIDFrom(r.Context()), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.errors.WriteError(w, r, errors.NewRateLimitedError("feedback rate limit exceeded"))
		}),
	)
}

// instrument records every request under its route pattern once routing is done.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.obs.RecordRequest(r.Context(), route, status, time.Since(start))
	})
}
