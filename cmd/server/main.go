// Command server runs the course platform API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tbourn/course-platform-backend/internal/config"
	httpapi "github.com/tbourn/course-platform-backend/internal/http"
	"github.com/tbourn/course-platform-backend/internal/idempotency"
	"github.com/tbourn/course-platform-backend/internal/mercadopago"
	"github.com/tbourn/course-platform-backend/internal/observability"
	"github.com/tbourn/course-platform-backend/internal/repo"
	"github.com/tbourn/course-platform-backend/internal/scheduler"
	"github.com/tbourn/course-platform-backend/internal/services"
	"github.com/tbourn/course-platform-backend/internal/storage"
	"github.com/tbourn/course-platform-backend/internal/sysutil"
	"github.com/tbourn/course-platform-backend/internal/tasks"
	"github.com/tbourn/course-platform-backend/internal/vimeo"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownGrace = 20 * time.Second

// @title                       Course Platform API
// @version                     1.0
// @description                 Online course catalog, Vimeo-backed lessons, Mercado Pago purchases and in-person class polls.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the access token.
func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := sysutil.SetupLogger(os.Stdout, sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
		Version: sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version),
		Env:     cfg.AppEnv,
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Build{
		Version:     sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version),
		Environment: cfg.AppEnv,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	// Storage
	db, err := repo.Open(cfg.DB)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	logger.Info().Str("driver", cfg.DB.Driver).Msg("database ready")

	var rdb *redis.Client
	if cfg.Idempotency.Backend == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			return err
		}
	}
	cache, err := idempotency.New(cfg.Idempotency, rdb, db)
	if err != nil {
		return err
	}

	archiver, err := storage.New(ctx, cfg.S3)
	if err != nil {
		return err
	}

	// Providers
	payments := mercadopago.NewClient(cfg.MercadoPago.BaseURL, cfg.MercadoPago.AccessToken, cfg.MercadoPago.Timeout)
	videoHost := vimeo.New(cfg.Vimeo.BaseURL, cfg.Vimeo.AccessToken, cfg.Vimeo.Timeout, cfg.Vimeo.EmbedDomains)
	runner := tasks.New(tasks.DefaultTimeout)

	// Expiry sweep
	sched, err := scheduler.New(cfg.Sweep.Timezone, logger.With().Str("component", "scheduler").Logger())
	if err != nil {
		return err
	}
	if cfg.Sweep.Enabled {
		sweep := services.NewSweepService(db)
		if err := sched.Add(cfg.Sweep.Cron, "entitlement_sweep", sweep.Run); err != nil {
			return err
		}
		// Catch up on anything that expired while the process was down.
		go sched.RunNow("entitlement_sweep", sweep.Run)
		sched.Start()
	}

	// HTTP
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	deps := httpapi.Deps{
		DB:        db,
		Cache:     cache,
		Payments:  payments,
		VideoHost: videoHost,
		Archiver:  archiver,
		Tasks:     runner,
	}
	if err := httpapi.RegisterRoutes(r, deps, cfg); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.AppEnv).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := sched.Stop(sctx); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown")
	}
	if err := runner.Wait(sctx); err != nil {
		logger.Warn().Err(err).Msg("background tasks still running at exit")
	}
	logger.Info().Msg("server stopped")
	return nil
}
