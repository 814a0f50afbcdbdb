// Package main provides the entrypoint for the isopleth preview server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/isopleth/isopleth/internal/api"
	"github.com/isopleth/isopleth/internal/api/middleware"
	"github.com/isopleth/isopleth/internal/config"
	"github.com/isopleth/isopleth/internal/isochrone"
	"github.com/isopleth/isopleth/internal/isochrone/mapbox"
	"github.com/isopleth/isopleth/internal/provider/resilience"
	"github.com/isopleth/isopleth/internal/render"
	"github.com/isopleth/isopleth/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "isopleth-api"

	flags := pflag.NewFlagSet("isopleth-api", pflag.ExitOnError)
	flags.String("config", "", "path to a YAML config file")
	flags.String("token", "", "Mapbox access token")
	flags.String("base-url", "", "Mapbox API base URL")
	flags.Duration("timeout", 0, "Mapbox request timeout")
	flags.Int("port", 0, "listen port")
	flags.Bool("require-tls", false, "reject requests forwarded over plain HTTP")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.Log.ZerologLevel())

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.App.Env).
		Msg("starting isopleth preview server")

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	httpMetrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize HTTP metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	providerMetrics, err := telemetry.NewProviderMetrics(tp.Meter)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize provider metrics")
		os.Exit(1)
	}

	// Isochrone provider, tracked in the registry for /v1/ops/status
	registry := resilience.NewRegistry()
	client := mapbox.NewClient(mapbox.ClientConfig{
		AccessToken: cfg.Mapbox.AccessToken,
		BaseURL:     cfg.Mapbox.BaseURL,
		Timeout:     cfg.Mapbox.Timeout,
		Registry:    registry,
		Logger:      log.With().Str("component", "mapbox").Logger(),
	})

	service := isochrone.NewService(isochrone.ServiceConfig{
		Provider: client,
		Logger:   log.With().Str("component", "isochrone").Logger(),
		Metrics:  providerMetrics,
	})
	log.Info().
		Str("provider", service.ProviderName()).
		Str("base_url", cfg.Mapbox.BaseURL).
		Msg("isochrone service initialized")

	renderer := render.NewRenderer(render.Config{
		Logger: log.With().Str("component", "render").Logger(),
	})

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		Service:     service,
		Renderer:    renderer,
		Registry:    registry,
		RateLimit:   cfg.Server.RateLimit,
		RequireTLS:  cfg.Server.RequireTLS,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
