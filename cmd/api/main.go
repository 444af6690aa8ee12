package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"clubhub/internal/api"
	"clubhub/internal/app"
	"clubhub/internal/auth"
	"clubhub/internal/cloudinary"
	"clubhub/internal/config"
	"clubhub/internal/httpmiddleware"
	"clubhub/internal/logging"
	"clubhub/internal/worker"
)

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		logging.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.Warn().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	// Nothing outside this process can drain a memory queue.
	if cfg.QueueBackend == "memory" {
		go func() { _ = worker.RunAudit(ctx, a.Queue, a.Attendance) }()
	}

	var uploader api.Uploader
	if cfg.CloudinaryEnabled() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logging.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("cloudinary configured")
	} else {
		logging.Info().Msg("cloudinary not configured, uploads disabled")
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(a.Redis, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	others := map[string]api.HealthCheck{}
	if a.Redis != nil {
		others["redis"] = a.RedisPing
	}

	r := api.NewRouter(api.Deps{
		Signer:      auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL),
		Users:       a.Users,
		Sessions:    a.Sessions,
		Attendance:  a.Attendance,
		Dashboard:   a.Dashboard,
		Uploader:    uploader,
		Store:       a.Store.Ping,
		Others:      others,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logging.Info().Msg("shutting down server")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("server forced shutdown")
	}
	logging.Info().Msg("server exited")
	return nil
}
