// Copyright (c) 2026 Veridian Labs. All rights reserved.

// Command api is the entry point for the Veridian identity API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Load the RSA key pair and wire the token service.
//  7. Wire repositories, services, and HTTP handlers.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veridianlabs/veridian/internal/api"
	"github.com/veridianlabs/veridian/internal/identity/authn"
	"github.com/veridianlabs/veridian/internal/identity/tenant"
	"github.com/veridianlabs/veridian/internal/platform/config"
	"github.com/veridianlabs/veridian/internal/platform/constants"
	"github.com/veridianlabs/veridian/internal/platform/events"
	"github.com/veridianlabs/veridian/internal/platform/migration"
	pgstore "github.com/veridianlabs/veridian/internal/platform/postgres"
	redisstore "github.com/veridianlabs/veridian/internal/platform/redis"
	"github.com/veridianlabs/veridian/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Veridian] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Token Service ──────────────────────────────────────────────────
	jwtSvc, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, cfg.TokenIssuer)
	must(log, err, "initialize jwt service")

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	publisher := events.NewRedisPublisher(rdb, log)

	userRepository := authn.NewPostgresUserRepository(pool)
	refreshRepository := authn.NewPostgresRefreshTokenRepository(pool)
	resetRepository := authn.NewRedisResetTokenRepository(rdb)

	// One repository serves both sides: the tenant service mutates the
	// aggregate, the authentication service only reads it during login.
	applicationRepository := tenant.NewPostgresApplicationRepository(pool)

	authService := authn.NewService(
		userRepository,
		applicationRepository,
		refreshRepository,
		resetRepository,
		jwtSvc,
		publisher,
		log,
		authn.Config{
			AccessTokenTTL:  cfg.AccessTokenTTL,
			RefreshTokenTTL: cfg.RefreshTokenTTL,
		},
	)
	tenantService := tenant.NewService(applicationRepository, userRepository, publisher, log)

	// Reset tokens are delivered out of band. Until the mail pipeline is
	// attached, development logs the token so the flow can be exercised;
	// production only records that a dispatch happened.
	resetNotifier := func(ctx context.Context, email, token string) {
		if cfg.IsDevelopment() {
			log.InfoContext(ctx, "password_reset_token_issued",
				slog.String("email", email),
				slog.String("token", token),
			)
			return
		}
		log.InfoContext(ctx, "password_reset_dispatch_requested", slog.String("email", email))
	}

	authHandler := authn.NewHandler(authService, resetNotifier, cfg.IsProduction())
	tenantHandler := tenant.NewHandler(tenantService)

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Authn:     authHandler,
		Tenant:    tenantHandler,
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	server := api.NewServer(serverCtx, cfg, log, jwtSvc, handlers)

	// Expired refresh tokens are unusable the moment they lapse; this loop
	// just keeps the session table from growing without bound.
	go func() {
		ticker := time.NewTicker(constants.RefreshTokenPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := refreshRepository.DeleteExpired(serverCtx); err != nil {
					log.Error("refresh_token_purge_failed", slog.Any("error", err))
				}
			case <-serverCtx.Done():
				return
			}
		}
	}()

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
