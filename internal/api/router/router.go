// Package router provides HTTP routing configuration using Chi.
package router

import (
	_ "embed"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remiblancher/evpki/internal/api/handler"
	"github.com/remiblancher/evpki/internal/api/metrics"
	"github.com/remiblancher/evpki/internal/api/middleware"
	"github.com/remiblancher/evpki/internal/api/service"
	"github.com/remiblancher/evpki/internal/profile"
	"github.com/remiblancher/evpki/internal/store"
	"github.com/remiblancher/evpki/internal/trust"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Config holds router configuration.
type Config struct {
	Version string

	// Store holds the certificates served by the API.
	Store *store.Store

	// Anchors are used for protocol-scoped verification; may be nil.
	Anchors *trust.Store

	// Profiles is the loaded profile catalogue.
	Profiles *profile.ProfileStore

	// Metrics is exposed on /metrics when set.
	Metrics *metrics.Metrics

	// RateLimiter bounds /api/v1 requests per client; nil disables it.
	RateLimiter *middleware.RateLimiter

	Logger *slog.Logger
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.CORS)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	// Health endpoints (always enabled)
	checks := map[string]handler.ReadinessCheck{
		"store": func() bool { return cfg.Store != nil && cfg.Store.Exists() },
	}
	if cfg.Anchors != nil {
		checks["anchors"] = func() bool { return cfg.Anchors.Len() > 0 }
	}
	healthHandler := handler.NewHealthHandler(cfg.Version, checks)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	// OpenAPI spec
	r.Get("/api/openapi.yaml", serveOpenAPISpec)

	certService := service.NewCertificateService(cfg.Store, cfg.Anchors, cfg.Profiles, cfg.Metrics)
	anchorService := service.NewAnchorService(cfg.Anchors)
	profileService := service.NewProfileService(cfg.Profiles)

	certHandler := handler.NewCertificateHandler(certService)
	anchorHandler := handler.NewAnchorHandler(anchorService)
	profileHandler := handler.NewProfileHandler(profileService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimiter, cfg.Metrics))

		r.Route("/certificates", func(r chi.Router) {
			r.Post("/", certHandler.Create)
			r.Get("/", certHandler.List)
			r.Post("/identify", certHandler.Identify)
			r.Get("/{id}", certHandler.Get)
			r.Delete("/{id}", certHandler.Delete)
			r.Post("/{id}/signatures", certHandler.AttachSignature)
			r.Post("/{id}/verify", certHandler.Verify)
		})

		r.Get("/anchors", anchorHandler.List)

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", profileHandler.List)
			r.Get("/{name}", profileHandler.Get)
		})
	})

	return r
}

// serveOpenAPISpec serves the OpenAPI specification file.
func serveOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}
