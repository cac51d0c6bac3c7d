package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	mcpauth "github.com/connectkit/mcpauth"
	"github.com/connectkit/mcpauth/cache"
	cacheredis "github.com/connectkit/mcpauth/cache/redis"
	"github.com/connectkit/mcpauth/config"
	"github.com/connectkit/mcpauth/domain"
	mcperrors "github.com/connectkit/mcpauth/errors"
	"github.com/connectkit/mcpauth/internal/crypto"
	"github.com/connectkit/mcpauth/internal/metrics"
	"github.com/connectkit/mcpauth/internal/telemetry"
	"github.com/connectkit/mcpauth/mongodb"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	initLogger(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("http_addr", cfg.HTTPAddr).
		Str("mongo_db_name", cfg.MongoDBName).
		Str("log_level", cfg.LogLevel).
		Bool("redis_locks", cfg.RedisAddr != "").
		Msg("Starting mcpauth server")

	tp, err := telemetry.InitTracer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize TracerProvider")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MongoDB connection")
	}
	db := mongodb.GetDB()

	// Repositories
	sessionRepo, err := mongodb.NewSessionRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize SessionRepository")
	}
	tokenRepo := mongodb.NewTokenRepositoryMongo(db)
	providerRepo := mongodb.NewProviderConfigRepositoryMongo(db)
	ownership := mongodb.NewOwnershipResolverMongo(db)

	// Lock store: Redis when configured, in-process otherwise. Either way
	// the lock only reduces duplicate refresh attempts; correctness does
	// not depend on it.
	var lockRepo domain.LockRepository
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		lockRepo = cacheredis.NewLockStore(redisClient, "mcpauth")
	} else {
		memLocks := cache.NewMemoryLockStore()
		defer memLocks.Close()
		lockRepo = memLocks
	}

	headerCache := cache.NewAuthorizationHeaderCache()

	// Services
	integrity, err := mcpauth.NewIntegrityService(cfg.IntegritySecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize IntegrityService")
	}
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token encryptor")
	}
	sessionService, err := mcpauth.NewSessionService(sessionRepo, integrity)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize SessionService")
	}
	defer sessionService.Close()
	lockService, err := mcpauth.NewRefreshLockService(lockRepo, cfg.RefreshLockTTL())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize RefreshLockService")
	}
	tokenService, err := mcpauth.NewTokenService(mcpauth.TokenServiceOptions{
		Tokens:                tokenRepo,
		Providers:             providerRepo,
		Ownership:             ownership,
		Headers:               headerCache,
		Encryptor:             encryptor,
		Locks:                 lockService,
		HTTPClient:            &http.Client{Timeout: cfg.HTTPTimeout()},
		ExpiryBuffer:          cfg.TokenExpiryBuffer(),
		AllowPrivateEndpoints: cfg.AllowPrivateEndpoints,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize TokenService")
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	// Background sweeps: expired sessions and stale refresh locks.
	go sessionService.StartCleanup(ctx, cfg.CleanupInterval())
	go lockService.StartCleanup(ctx, cfg.CleanupInterval())

	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.Recover())
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		pingCtx, pingCancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer pingCancel()
		if err := mongodb.Ping(pingCtx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Internal operator surface. The platform's own request path links the
	// services directly; these endpoints exist for operations tooling.
	internal := e.Group("/internal")
	internal.POST("/servers/:serverID/refresh", func(c echo.Context) error {
		valid, err := tokenService.ValidateAndRefreshToken(
			c.Request().Context(), c.Param("serverID"), c.QueryParam("user_id"))
		if err != nil {
			if mcperrors.IsSecurity(err) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "reconnect_required"})
			}
			return c.JSON(http.StatusConflict, map[string]string{"error": "refresh_failed"})
		}
		return c.JSON(http.StatusOK, map[string]bool{"valid": valid})
	})
	internal.DELETE("/servers/:serverID/tokens", func(c echo.Context) error {
		if err := tokenService.RevokeTokens(c.Request().Context(), c.Param("serverID")); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "revocation_failed"})
		}
		return c.NoContent(http.StatusNoContent)
	})
	internal.GET("/servers/:serverID/sessions", func(c echo.Context) error {
		sessions, err := sessionService.GetActiveSessionsForServer(c.Request().Context(), c.Param("serverID"))
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup_failed"})
		}
		return c.JSON(http.StatusOK, sessions)
	})

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down server")

	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	telemetry.Shutdown(shutdownCtx, tp)
	mongodb.CloseMongoDB(shutdownCtx)

	log.Info().Msg("Server gracefully stopped")
}

func initLogger(cfg *config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
		log.Warn().
			Str("configured_log_level", cfg.LogLevel).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
}
