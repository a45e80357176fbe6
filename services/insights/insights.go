// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package insights provides the progressive insight delivery service for
// the BrandPulse operations dashboard.
//
// The service coordinates the FAST/SLOW endpoint pairs, the insight
// cache, the push event hub, and the LLM producer behind them. FAST
// endpoints return records and derived KPIs synchronously; SLOW
// endpoints return cached LLM insights, computing them at most once per
// fingerprint. Connected dashboards learn about new insights through the
// SSE/WebSocket event hub instead of polling.
package insights

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/brandpulse/brandpulse/services/insights/cache"
	"github.com/brandpulse/brandpulse/services/insights/handlers"
	"github.com/brandpulse/brandpulse/services/insights/hub"
	"github.com/brandpulse/brandpulse/services/insights/middleware"
	"github.com/brandpulse/brandpulse/services/insights/notify"
	"github.com/brandpulse/brandpulse/services/insights/observability"
	"github.com/brandpulse/brandpulse/services/insights/routes"
	"github.com/brandpulse/brandpulse/services/insights/upstream"
	"github.com/brandpulse/brandpulse/services/llm"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds the insights service configuration. Zero values use
// defaults applied by New.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// BrandName is the tenant all data is scoped to.
	BrandName string

	// UpstreamBaseURL / UpstreamToken configure the warehouse analytics
	// endpoint. Empty disables data fetching (FAST endpoints return 500).
	UpstreamBaseURL string
	UpstreamToken   string

	// OrdersBaseURL / OrdersToken configure the order-history endpoint
	// used by the per-entity insights. Empty falls back to the warehouse
	// endpoint.
	OrdersBaseURL string
	OrdersToken   string

	// LLMAPIKey / LLMModel / LLMBaseURL configure the insight provider.
	// Missing key runs the service in degraded-insight mode.
	LLMAPIKey  string
	LLMModel   string
	LLMBaseURL string

	// Cache TTLs and bound. Zero uses the cache defaults
	// (5m fresh / 15m grace / 60s fail / 512 entries).
	CacheTTLFresh   time.Duration
	CacheTTLGrace   time.Duration
	CacheTTLFail    time.Duration
	CacheMaxEntries int

	// HeartbeatInterval between hub heartbeats. Default: 30s
	HeartbeatInterval time.Duration

	// QueueMax bounds each subscriber queue. Default: 64
	QueueMax int

	// OTelEndpoint is the OTLP gRPC collector endpoint. Empty disables
	// tracing entirely.
	OTelEndpoint string

	// EnableMetrics registers Prometheus metrics. Default true in main;
	// tests leave it off to avoid duplicate registration.
	EnableMetrics bool
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.BrandName == "" {
		cfg.BrandName = "BrandPulse Demo Co"
	}
	return cfg
}

// =============================================================================
// Service
// =============================================================================

// Service is the insights service lifecycle contract.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router returns the configured Gin engine for integration tests.
	Router() *gin.Engine

	// Shutdown announces the shutdown to subscribers and releases
	// background resources.
	Shutdown(ctx context.Context) error
}

type service struct {
	config        Config
	router        *gin.Engine
	hub           *hub.Hub
	deps          *handlers.Deps
	tracerCleanup func(context.Context)
}

// New creates the insights service: upstream clients, LLM client, cache,
// hub, notifier, and routes. The service always constructs; missing
// upstream or LLM configuration degrades the affected endpoints instead
// of failing startup.
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	if err := s.initTracer(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	var metrics *observability.Metrics
	if s.config.EnableMetrics {
		metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	s.hub = hub.New(hub.Config{
		HeartbeatInterval: s.config.HeartbeatInterval,
		QueueMax:          s.config.QueueMax,
		Metrics:           metrics,
	})
	s.hub.Start()

	notifier := notify.New(s.hub)

	insightCache := cache.New(cache.Config{
		TTLFresh:   s.config.CacheTTLFresh,
		TTLGrace:   s.config.CacheTTLGrace,
		TTLFail:    s.config.CacheTTLFail,
		MaxEntries: s.config.CacheMaxEntries,
		Notifier:   notifier,
		Metrics:    metrics,
	})

	warehouse := upstream.NewClient(s.config.UpstreamBaseURL, s.config.UpstreamToken)
	var orders *upstream.Client
	if s.config.OrdersBaseURL != "" {
		orders = upstream.NewClient(s.config.OrdersBaseURL, s.config.OrdersToken)
	}

	llmClient := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  s.config.LLMAPIKey,
		Model:   s.config.LLMModel,
		BaseURL: s.config.LLMBaseURL,
	})

	s.deps = &handlers.Deps{
		Warehouse: warehouse,
		LLM:       llmClient,
		Cache:     insightCache,
		Hub:       s.hub,
		Notifier:  notifier,
		Metrics:   metrics,
		BrandName: s.config.BrandName,
		Versions:  handlers.NewVersions(),
	}
	if orders != nil {
		s.deps.Orders = orders
	}

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *service) Run() error {
	defer func() {
		if s.tracerCleanup != nil {
			s.tracerCleanup(context.Background())
		}
	}()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting insights server",
		"port", s.config.Port, "brand", s.config.BrandName)

	return s.router.Run(addr)
}

// Router returns the configured Gin engine for integration tests.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Shutdown notifies subscribers and stops the hub.
func (s *service) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down insights service")
	err := s.hub.Shutdown(ctx)
	if s.tracerCleanup != nil {
		s.tracerCleanup(ctx)
		s.tracerCleanup = nil
	}
	return err
}

// =============================================================================
// Private Initialization
// =============================================================================

func (s *service) initRouter() {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	if s.config.OTelEndpoint != "" {
		router.Use(otelgin.Middleware("insights-service"))
	}

	routes.SetupRoutes(router, s.deps)
	s.router = router
}

// initTracer sets up the OTLP trace exporter. Tracing is optional: an
// empty endpoint leaves the global no-op tracer in place.
func (s *service) initTracer() error {
	if s.config.OTelEndpoint == "" {
		slog.Info("OTel endpoint not configured, tracing disabled")
		return nil
	}

	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("insights-service")))
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	s.tracerCleanup = func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}
	return nil
}
