package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-console/internal/client"
	"github.com/kjstillabower/weather-console/internal/config"
	"github.com/kjstillabower/weather-console/internal/credentials"
	"github.com/kjstillabower/weather-console/internal/history"
	httphandler "github.com/kjstillabower/weather-console/internal/http"
	"github.com/kjstillabower/weather-console/internal/lifecycle"
	"github.com/kjstillabower/weather-console/internal/observability"
	"github.com/kjstillabower/weather-console/internal/weather"
)

func main() {
	lifecycle.MarkStarted(time.Now())

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var store credentials.Store
	var memcacheCloser *credentials.MemcachedStore
	switch cfg.CredentialsBackend {
	case "memcached":
		mc, err := credentials.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached credential store", zap.Error(err))
		}
		memcacheCloser = mc
		store = mc
		logger.Info("credentials backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "file":
		fs, err := credentials.NewFileStore(cfg.CredentialsPath)
		if err != nil {
			logger.Fatal("file credential store", zap.Error(err))
		}
		store = fs
		logger.Info("credentials backend: file", zap.String("path", cfg.CredentialsPath))
	default:
		store = credentials.NewInMemoryStore()
		logger.Info("credentials backend: in_memory")
	}

	if cfg.SeedToken != "" {
		seedCtx, seedCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := store.Set(seedCtx, cfg.CredentialsKey, cfg.SeedToken); err != nil {
			logger.Warn("seed credential from WEATHER_API_TOKEN", zap.Error(err))
		}
		seedCancel()
	}
	tokens := credentials.NewTokenSource(store, cfg.CredentialsKey, logger)

	httpClient, err := client.NewHTTPClient(cfg.BackendURL, tokens, cfg.BackendTimeout)
	if err != nil {
		logger.Fatal("backend client", zap.Error(err))
	}
	var api client.BackendClient = httpClient

	weatherView := weather.NewController(api, logger)
	historyView := history.NewController(api, logger)
	observability.RegisterLoadingGauges(map[string]func() bool{
		"weather": weatherView.Loading,
		"history": historyView.Loading,
	})

	healthConfig := &httphandler.HealthConfig{
		BackendWindow:   cfg.HealthBackendWindow,
		BackendErrorPct: cfg.HealthBackendErrorPct,
	}
	if memcacheCloser != nil {
		healthConfig.CredentialsPing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherView, historyView, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	// Initial history load. A failure is shown in the view, never fatal.
	go func() {
		mountCtx, mountCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer mountCancel()
		snap, err := historyView.Mount(mountCtx)
		if err != nil {
			logger.Warn("history mount", zap.Error(err))
		} else if snap.EntriesError != "" {
			logger.Warn("history mount failed", zap.String("message", snap.EntriesError))
		}
		lifecycle.SetMounted(true)
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("console starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("backend", cfg.BackendURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer flushCancel()
	if err := observability.FlushTelemetry(flushCtx, logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}
