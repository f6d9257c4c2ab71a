package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicehr/internal/config"
	"github.com/ehr/clinicehr/internal/domain/access"
	"github.com/ehr/clinicehr/internal/domain/patient"
	"github.com/ehr/clinicehr/internal/domain/prescription"
	"github.com/ehr/clinicehr/internal/domain/user"
	"github.com/ehr/clinicehr/internal/permission"
	"github.com/ehr/clinicehr/internal/platform/auth"
	"github.com/ehr/clinicehr/internal/platform/db"
	"github.com/ehr/clinicehr/internal/platform/middleware"
	"github.com/ehr/clinicehr/internal/platform/telemetry"
)

const (
	requestTimeout    = 30 * time.Second
	poolStatsInterval = 15 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.IsDev())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	metrics := telemetry.NewMetrics()
	e := newServer(cfg, pool, verifier, metrics, logger)
	go recordPoolStats(ctx, pool, metrics)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newVerifier returns nil in development when no signing key or issuer is
// configured; DevAuthMiddleware then serves every request.
func newVerifier(ctx context.Context, cfg *config.Config) (auth.TokenVerifier, error) {
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.JWTSigningKey),
	}
	if cfg.IsDev() && cfg.JWTSigningKey == "" && cfg.AuthIssuer == "" && cfg.AuthJWKSURL == "" {
		return nil, nil
	}
	v, err := auth.NewTokenVerifier(ctx, jwtCfg)
	if err != nil {
		return nil, fmt.Errorf("configure token verification: %w", err)
	}
	return v, nil
}

// newServer wires the resolver, domain services and middleware. pool may be
// nil in tests that never reach a repository.
func newServer(cfg *config.Config, pool *pgxpool.Pool, verifier auth.TokenVerifier, metrics *telemetry.Metrics, logger zerolog.Logger) *echo.Echo {
	assignments := patient.NewAssignmentRepo(pool)
	resolver := permission.NewResolver(permission.DefaultMatrix(),
		permission.WithAssignmentVerifier(assignments),
		permission.WithObserver(metrics.ObserveDecision),
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(requestTimeout))

	// Audit middleware, ahead of auth so 401s are recorded
	e.Use(middleware.Audit(logger, middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		metrics.ObserveAccess(entry.Module, entry.Action, entry.StatusCode)
		return nil
	})))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(cfg.DevClinicID, verifier, logger))
	} else {
		e.Use(auth.JWTMiddleware(verifier, logger))
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	if cfg.MetricsEnabled {
		e.GET("/metrics", metrics.Handler())
	}

	apiV1 := e.Group("/api/v1")

	access.NewHandler(resolver, logger).RegisterRoutes(apiV1)

	patientRepo := patient.NewRepo(pool)
	patientSvc := patient.NewService(patientRepo, assignments, db.NewTransactor(pool), resolver, logger)
	patient.NewHandler(patientSvc, resolver, logger).RegisterRoutes(apiV1)

	rxSvc := prescription.NewService(prescription.NewRepo(pool), patientRepo, resolver, logger)
	prescription.NewHandler(rxSvc, resolver, logger).RegisterRoutes(apiV1)

	userSvc := user.NewService(user.NewRepo(pool), resolver, logger)
	user.NewHandler(userSvc, resolver, logger).RegisterRoutes(apiV1)

	return e
}

func recordPoolStats(ctx context.Context, pool *pgxpool.Pool, metrics *telemetry.Metrics) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		metrics.RecordPoolStats(pool.Stat())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
