package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/album-of-the-day/internal/catalog"
	"github.com/Clark-Hu/album-of-the-day/internal/config"
	"github.com/Clark-Hu/album-of-the-day/internal/ledger"
	"github.com/Clark-Hu/album-of-the-day/internal/logging"
	"github.com/Clark-Hu/album-of-the-day/internal/repository"
	"github.com/Clark-Hu/album-of-the-day/internal/store"
)

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	store   *store.Store
	repo    *repository.Repository
	ledger  *ledger.Ledger
	catalog catalog.Client
	logger  zerolog.Logger
	router  chi.Router
	httpSrv *http.Server
	now     func() time.Time
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, st *store.Store, repo *repository.Repository, led *ledger.Ledger, catalogClient catalog.Client, logger zerolog.Logger) *Server {
	logger = logging.Component(logger, "http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(recordMetrics)
	r.Use(middleware.Recoverer)
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", userHeader},
			ExposedHeaders:   []string{"Location", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	s := &Server{
		cfg:     cfg,
		store:   st,
		repo:    repo,
		ledger:  led,
		catalog: catalogClient,
		logger:  logger,
		router:  r,
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/pick", s.handleCurrentPick)
	s.router.Get("/picks", s.handlePickArchive)
	s.router.With(s.requireCurator).Put("/picks/{date}", s.handleSetPick)

	s.router.Route("/albums", func(r chi.Router) {
		r.Get("/", s.handleListAlbums)
		r.With(s.requireCurator).Post("/", s.handleCreateAlbum)
		r.Route("/{albumID}", func(r chi.Router) {
			r.Get("/", s.handleGetAlbum)
			r.Get("/reviews", s.handleListReviews)
			r.With(s.writeLimiter()).Post("/reviews", s.handleSubmitReview)
		})
	})

	s.router.Route("/reviews/{reviewID}", func(r chi.Router) {
		r.Use(s.writeLimiter())
		r.Put("/", s.handleEditReview)
		r.Delete("/", s.handleDeleteReview)
	})

	s.router.With(s.requireCurator).Get("/catalog/search", s.handleCatalogSearch)
}

// writeLimiter throttles review writes per client IP. A zero request budget disables it.
func (s *Server) writeLimiter() func(http.Handler) http.Handler {
	if s.cfg.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.cfg.RateLimitRequests,
		time.Duration(s.cfg.RateLimitWindowSecs)*time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
		}),
	)
}

// Start boots the HTTP server and blocks until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("health check failed")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unreachable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
