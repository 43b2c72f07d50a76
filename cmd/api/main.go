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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/listing-lead-assistant/internal/api/router"
	"github.com/wolfman30/listing-lead-assistant/internal/app/bootstrap"
	"github.com/wolfman30/listing-lead-assistant/internal/assistant"
	appconfig "github.com/wolfman30/listing-lead-assistant/internal/config"
	"github.com/wolfman30/listing-lead-assistant/internal/leads"
	"github.com/wolfman30/listing-lead-assistant/internal/observability/metrics"
	"github.com/wolfman30/listing-lead-assistant/internal/otp"
	"github.com/wolfman30/listing-lead-assistant/internal/webchat"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = time.Minute
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting listing lead assistant",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	metricsHandler, funnel := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	var db bootstrap.DB
	if pool != nil {
		db = pool
		defer pool.Close()
	}

	directory := bootstrap.BuildCityDirectory(cfg, redisClient, logger, funnel)
	otpStack, err := bootstrap.BuildOTP(cfg, logger, funnel)
	if err != nil {
		return err
	}
	leadStack, err := bootstrap.BuildLeadStack(ctx, cfg, db, logger, funnel)
	if err != nil {
		return err
	}
	assistantStack, err := bootstrap.BuildAssistant(ctx, cfg, redisClient, logger, funnel)
	if err != nil {
		return err
	}
	defer func() { _ = assistantStack.Close() }()

	// Sessions retry on their own, a failed preload only costs the first
	// visitor a round trip.
	if err := directory.Load(ctx); err != nil {
		logger.Warn("city preload failed", "error", err)
	} else {
		logger.Info("cities loaded", "count", directory.Len())
	}

	registry := bootstrap.BuildRegistry(cfg, directory, otpStack, leadStack.Gateway, assistantStack.Service, logger, funnel)

	health := router.NewHealthHandler(nil, nil)
	switch {
	case redisClient != nil && pool != nil:
		health = router.NewHealthHandler(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }, pool.Ping)
	case redisClient != nil:
		health = router.NewHealthHandler(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }, nil)
	case pool != nil:
		health = router.NewHealthHandler(nil, pool.Ping)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(&router.Config{
			Logger:             logger,
			WebChat:            webchat.NewHandler(registry, logger),
			OTPHandler:         otp.NewHandler(otpStack.Client, logger),
			AssistantHandler:   assistant.NewHandler(assistantStack.Service, logger),
			QuizHandler:        assistant.NewQuizHandler(assistantStack.Quiz, logger),
			LeadsHandler:       leads.NewHandler(leadStack.Repository, logger),
			MetricsHandler:     metricsHandler,
			Health:             health,
			AdminAuthSecret:    cfg.AdminJWTSecret,
			CORSAllowedOrigins: cfg.AllowedOrigins,
			RateLimitRPS:       cfg.RateLimitRPS,
			RateLimitBurst:     cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return registry.Run(gctx, sweepInterval) })
	if leadStack.Deliverer != nil {
		g.Go(func() error { return leadStack.Deliverer.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// setupMetrics registers the funnel collectors on a private registry.
func setupMetrics() (http.Handler, *metrics.FunnelMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	funnel := metrics.NewFunnelMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), funnel
}
