// Package api provides the HTTP API for correction sessions and the
// per-organization suggestion engines.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/parishrecords/ocrmapper/internal/http/response"
	"github.com/parishrecords/ocrmapper/internal/ratelimit"
	"github.com/parishrecords/ocrmapper/internal/search"
	"github.com/parishrecords/ocrmapper/internal/service"
	"github.com/parishrecords/ocrmapper/internal/store"
)

// Config configures the HTTP surface.
type Config struct {
	Version            string
	AllowedOrigins     []string
	RateLimitPerMinute int // 0 disables rate limiting
	RateLimitBurst     int
}

// Services bundles what the handlers call into.
type Services struct {
	Sessions    *service.SessionService
	Suggestions *service.SuggestionService
	Templates   *service.TemplateService
	KV          store.KV             // health checks only
	Index       *search.HistoryIndex // health checks only, may be nil
	Events      http.Handler         // organization event stream, may be nil
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services Services
	router   *chi.Mux
	api      huma.API
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(cfg Config, services Services, logger *slog.Logger) *Server {
	s := &Server{
		services: services,
		router:   chi.NewRouter(),
		logger:   logger,
	}
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = ratelimit.New(ratelimit.Options{
			PerMinute: cfg.RateLimitPerMinute,
			Burst:     max(cfg.RateLimitBurst, 1),
		})
	}

	s.setupMiddleware(cfg)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	humaConfig := huma.DefaultConfig("OCR Mapper API", version)
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for tests.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(cfg Config) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if s.limiter != nil {
		s.router.Use(RateLimitMiddleware(s.limiter, s.logger))
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "no route for "+r.URL.Path, s.logger)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.MethodNotAllowed(w, s.logger)
	})
}

// requestLogger logs one line per request at debug level, and at warn for
// server errors.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerSessionRoutes()
	s.registerRecordRoutes()
	s.registerSuggestionRoutes()
	s.registerTemplateRoutes()

	// Streaming stays outside huma, which buffers responses.
	if s.services.Events != nil {
		s.router.Get("/api/v1/orgs/{org}/events", s.services.Events.ServeHTTP)
	}
}
