package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/remiblancher/evpki/internal/api/metrics"
	"github.com/remiblancher/evpki/internal/api/middleware"
	"github.com/remiblancher/evpki/internal/api/router"
	"github.com/remiblancher/evpki/internal/audit"
	"github.com/remiblancher/evpki/internal/profile"
	"github.com/remiblancher/evpki/internal/store"
	"github.com/remiblancher/evpki/internal/trust"
)

// Server represents the HTTP server.
type Server struct {
	cfg     *Config
	version string
	logger  *slog.Logger

	store    *store.Store
	anchors  *trust.Store
	profiles *profile.ProfileStore
	metrics  *metrics.Metrics

	// ownsAudit is set when the server installed the global audit writer.
	ownsAudit bool
	srv       *http.Server
}

// New creates a new Server. A nil logger discards logs.
func New(cfg *Config, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Server{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

// Setup opens the certificate store, the trust anchors, the profiles and
// the audit log. The store directory is initialized when missing.
func (s *Server) Setup() error {
	if !audit.Enabled() || s.cfg.AuditLog != "" {
		var err error
		if s.cfg.AuditLog != "" {
			err = audit.InitFile(s.cfg.AuditLog)
		} else {
			err = audit.Init(audit.NewMemoryWriter())
		}
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		s.ownsAudit = true
	}

	s.store = store.NewStore(s.cfg.DataDir)
	if !s.store.Exists() {
		if err := s.store.Init(); err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		s.logger.Info("certificate store initialized", "path", s.cfg.DataDir)
	}

	if s.cfg.AnchorsFile != "" {
		anchors, err := trust.LoadStore(s.cfg.AnchorsFile)
		if err != nil {
			_ = audit.LogAnchorsLoaded(s.cfg.AnchorsFile, 0, false, err.Error())
			return fmt.Errorf("failed to load trust anchors: %w", err)
		}
		if err := audit.LogAnchorsLoaded(s.cfg.AnchorsFile, anchors.Len(), true, ""); err != nil {
			return err
		}
		s.anchors = anchors
		s.logger.Info("trust anchors loaded", "path", s.cfg.AnchorsFile, "count", anchors.Len())
	}

	s.profiles = profile.NewProfileStore(s.cfg.ProfilesDir)
	if err := s.profiles.Load(); err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}

	s.metrics = metrics.New()
	return nil
}

// Handler returns the routed API handler. Setup must have succeeded.
func (s *Server) Handler() http.Handler {
	var limiter *middleware.RateLimiter
	if rl := s.cfg.RateLimit; rl.RPS > 0 {
		limiter = middleware.NewRateLimiter(rl.RPS, rl.Burst, rl.IdleTTL)
	}
	return router.New(&router.Config{
		Version:     s.version,
		Store:       s.store,
		Anchors:     s.anchors,
		Profiles:    s.profiles,
		Metrics:     s.metrics,
		RateLimiter: limiter,
		Logger:      s.logger,
	})
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.store == nil {
		if err := s.Setup(); err != nil {
			_ = ln.Close()
			return err
		}
	}

	s.srv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	addr := ln.Addr().String()
	if err := audit.MustLog(audit.NewEvent(audit.EventServerStarted, audit.ResultSuccess).
		WithObject(audit.Object{Type: "server", Path: s.cfg.DataDir}).
		WithContext(audit.Context{Remote: addr})); err != nil {
		_ = ln.Close()
		return err
	}
	s.logger.Info("server started", "address", addr, "version", s.version, "tls", s.cfg.TLSEnabled())

	errChan := make(chan error, 1)
	go func() {
		if s.cfg.TLSEnabled() {
			errChan <- s.srv.ServeTLS(ln, s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			errChan <- s.srv.Serve(ln)
		}
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.stopped(err)
			return fmt.Errorf("server error: %w", err)
		}
		s.stopped(nil)
		return nil
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", context.Cause(ctx))
		return s.shutdown()
	}
}

// shutdown gracefully stops the server.
func (s *Server) shutdown() error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.srv.Shutdown(ctx)
	s.stopped(err)
	if err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

func (s *Server) stopped(cause error) {
	event := audit.NewEvent(audit.EventServerStopped, audit.ResultSuccess).
		WithObject(audit.Object{Type: "server", Path: s.cfg.DataDir})
	if cause != nil {
		event.Result = audit.ResultFailure
		event.Context.Reason = cause.Error()
	}
	if err := audit.Log(event); err != nil {
		s.logger.Error("audit log failed", "error", err)
	}
	if s.ownsAudit {
		if err := audit.Close(); err != nil {
			s.logger.Error("failed to close audit log", "error", err)
		}
		s.ownsAudit = false
	}
}
