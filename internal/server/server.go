// Package server assembles the middleware chain, the realtime gateway,
// and the operational endpoints into one HTTP listener.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/auth"
	"github.com/devpulse/gateway/internal/bus"
	"github.com/devpulse/gateway/internal/config"
	"github.com/devpulse/gateway/internal/health"
	"github.com/devpulse/gateway/internal/logging"
	"github.com/devpulse/gateway/internal/metrics"
	"github.com/devpulse/gateway/internal/middleware"
	"github.com/devpulse/gateway/internal/middleware/access"
	"github.com/devpulse/gateway/internal/middleware/authn"
	"github.com/devpulse/gateway/internal/middleware/bodylimit"
	"github.com/devpulse/gateway/internal/middleware/csrf"
	"github.com/devpulse/gateway/internal/middleware/inputsanitize"
	"github.com/devpulse/gateway/internal/middleware/integrity"
	"github.com/devpulse/gateway/internal/middleware/ratelimit"
	"github.com/devpulse/gateway/internal/middleware/scannerfilter"
	"github.com/devpulse/gateway/internal/middleware/securityheaders"
	"github.com/devpulse/gateway/internal/middleware/ssrffilter"
	"github.com/devpulse/gateway/internal/realtime"
	"github.com/devpulse/gateway/internal/session"
	"github.com/devpulse/gateway/internal/store"
)

const directoryCacheSize = 4096

// Server owns every long-lived component and shuts them down in order.
type Server struct {
	cfg       *config.Config
	http      *http.Server
	handler   http.Handler
	metrics   *metrics.Registry
	sessions  *session.Store
	gateway   *realtime.Gateway
	bus       *bus.Bus
	bridge    *store.Bridge
	lifecycle *health.Lifecycle
	limiter   ratelimit.Limiter
}

// New wires the full gateway from configuration.
func New(cfg *config.Config, version string) (*Server, error) {
	reg := metrics.New()

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	sessions := session.NewStore(cfg.Session)
	sessions.OnCount(func(n int) { reg.SessionsActive.Set(float64(n)) })

	eventBus := bus.New()
	bridge := store.NewBridge(eventBus, reg)

	registry := realtime.NewRegistry()
	registry.OnCount(func(n int) { reg.SubscriptionsActive.Set(float64(n)) })

	gateway := realtime.NewGateway(cfg.WebSocket, verifier, registry, reg)
	realtime.NewDispatcher(gateway, eventBus)

	lifecycle := health.NewLifecycle()

	var directory store.Directory
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cached := store.NewCachedDirectory(store.NewRedisDirectory(client), directoryCacheSize, time.Minute)
		lifecycle.Register("directory", cached)
		directory = cached
	} else {
		directory = store.NewMemoryDirectory()
	}
	gateway.SetEnricher(store.Enricher(directory, 500*time.Millisecond))

	s := &Server{
		cfg:       cfg,
		metrics:   reg,
		sessions:  sessions,
		gateway:   gateway,
		bus:       eventBus,
		bridge:    bridge,
		lifecycle: lifecycle,
	}

	chain, err := s.buildChain(verifier)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)
	mux.Handle("/metrics", reg.Handler())
	health.NewHandler(lifecycle, version).Mount(mux)
	s.mountSessionRoutes(mux)

	s.handler = chain.Then(mux)
	s.http = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           s.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	return s, nil
}

// buildChain assembles the security filters. The relative order of the
// filters is a contract: response headers and size caps come first, then
// source filters, content rewriting, identity, and finally route
// authorization, with the rejection logger wrapped around all of them.
func (s *Server) buildChain(verifier *auth.Verifier) (*middleware.Chain, error) {
	reg := s.metrics

	headers := securityheaders.New(s.cfg.Headers)

	bodyLimit := bodylimit.New(s.cfg.BodyLimit.MaxBytes)
	bodyLimit.OnReject(func() { reg.HTTPRejectionsTotal.WithLabelValues("body_limit").Inc() })

	s.limiter = ratelimit.NewFromConfig(s.cfg.RateLimit, s.cfg.Redis)
	rateLimit := ratelimit.Middleware(s.limiter, s.cfg.RateLimit.Max, func() {
		reg.HTTPRejectionsTotal.WithLabelValues("rate_limit").Inc()
	})

	scanner, err := scannerfilter.New(s.cfg.Scanner.DenyPatterns)
	if err != nil {
		return nil, fmt.Errorf("scanner filter: %w", err)
	}
	scanner.OnReject(func() { reg.HTTPRejectionsTotal.WithLabelValues("scanner").Inc() })

	sanitizer := inputsanitize.New()

	ssrf, err := ssrffilter.New(s.cfg.SSRF.AllowCIDRs)
	if err != nil {
		return nil, fmt.Errorf("ssrf filter: %w", err)
	}

	authFilter := authn.Middleware(verifier, func(reason string) {
		reg.AuthFailuresTotal.WithLabelValues(reason).Inc()
	})

	csrfFilter := csrf.New(s.sessions, []string{"/auth/login"})

	integrityFilter := integrity.New(s.cfg.Integrity.Secret, s.cfg.Integrity.MaxSkew)

	accessFilter := access.New(access.DefaultRules())

	return middleware.NewBuilder().
		Use(middleware.RequestID()).
		Use(middleware.Recovery()).
		Use(middleware.SecurityLog(reg)).
		Use(headers.Middleware()).
		Use(bodyLimit.Middleware()).
		Use(rateLimit).
		Use(scanner.Middleware()).
		Use(sanitizer.Middleware()).
		Use(ssrf.Middleware()).
		Use(authFilter).
		Use(csrfFilter.Middleware()).
		Use(integrityFilter.Middleware()).
		Use(accessFilter.Middleware()).
		Build(), nil
}

// Handler exposes the assembled handler for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Bridge exposes the typed event publishing surface.
func (s *Server) Bridge() *store.Bridge {
	return s.bridge
}

// Lifecycle exposes the lifecycle for startup orchestration.
func (s *Server) Lifecycle() *health.Lifecycle {
	return s.lifecycle
}

// Run serves until the context is cancelled, then shuts down in order.
func (s *Server) Run(ctx context.Context) error {
	s.lifecycle.Advance(health.PhaseStarted)

	errCh := make(chan error, 1)
	go func() {
		logging.Info("listening", zap.String("address", s.cfg.Server.Address))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.lifecycle.Advance(health.PhaseReady)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown drains in dependency order: stop accepting HTTP, detach the
// event bus so draining queues stop refilling, close the realtime
// connections within the drain budget, then release the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lifecycle.Advance(health.PhaseShuttingDown)
	logging.Info("shutting down")

	err := s.http.Shutdown(ctx)

	s.bus.Close()
	s.gateway.Shutdown(ctx)

	s.sessions.Close()
	if closer, ok := s.limiter.(interface{ Close() }); ok {
		closer.Close()
	}

	logging.Sync()
	return err
}
