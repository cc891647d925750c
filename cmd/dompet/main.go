package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"dompet/internal/auth"
	"dompet/internal/cache"
	"dompet/internal/cli"
	apphttp "dompet/internal/http"
	"dompet/internal/log"
	"dompet/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)

	sessions := auth.NewManager(res.Auth, auth.ManagerConfig{
		TTL:        cfg.SessionTTL,
		MaxEntries: cfg.SessionMaxEntries,
		Logger:     logger,
	})

	caches := cache.NewManager(logger)
	caches.Register(res.Caches...)
	caches.Register(sessions.Caches()...)

	// A nil *amqp.Client must not end up inside a non-nil interface.
	var publisher services.ChangePublisher
	if res.Publisher != nil {
		publisher = res.Publisher
	}
	svc := services.NewDatabaseService(res.Store, publisher, logger)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Service:  svc,
		Sessions: sessions,
		Cookie: auth.CookieConfig{
			Secure: cfg.CookieSecure,
			MaxAge: cfg.SessionTTL,
		},
		Logger:                 logger,
		AuthRateLimitPerMinute: cfg.AuthRateLimitPerMinute,
		Caches:                 caches,
	})
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	caches.StartCleanup(5 * time.Minute)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting dompet server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"auth", cfg.AuthBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
