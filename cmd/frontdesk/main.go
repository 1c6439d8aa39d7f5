package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/frontdesk-calendar/internal/api/router"
	"github.com/wolfman30/frontdesk-calendar/internal/app/bootstrap"
	appconfig "github.com/wolfman30/frontdesk-calendar/internal/config"
	"github.com/wolfman30/frontdesk-calendar/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/frontdesk-calendar/internal/http/middleware"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting frontdesk console",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	rt, err := bootstrap.BuildRuntime(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	go rt.Poller.Start(ctx)

	srv, limiter := newServer(cfg, rt, logger)
	defer limiter.Stop()

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stop()
	rt.Console.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// newServer assembles the handlers and router around a built runtime.
func newServer(cfg *appconfig.Config, rt *bootstrap.Runtime, logger *logging.Logger) (*http.Server, *httpmiddleware.RateLimiter) {
	var checkOrigin func(string) bool
	if len(cfg.CORSAllowedOrigins) > 0 {
		checkOrigin = httpmiddleware.AllowedOrigins(cfg.CORSAllowedOrigins)
	}
	limiter := httpmiddleware.NewRateLimiter(cfg.RefreshRateLimit, cfg.RefreshRateBurst)

	routerCfg := &router.Config{
		Logger:             logger,
		Console:            rt.Console,
		ConsoleHandler:     handlers.NewConsoleHandler(rt.Console, logger),
		StreamHandler:      handlers.NewStreamHandler(rt.Console, rt.Metrics, checkOrigin, logger),
		AuthHandler:        handlers.NewAuthHandler(cfg.StaffPassword, cfg.StaffJWTSecret, cfg.StaffSessionTTL, logger),
		MetricsHandler:     promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RefreshLimiter:     limiter,
	}
	if cfg.StaffAuthEnabled() {
		routerCfg.StaffAuthSecret = cfg.StaffJWTSecret
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, limiter
}
