// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command insights starts the BrandPulse insight delivery HTTP server.
//
// This is the main entry point for the containerized insights service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - PORT: HTTP server port (default: 12310)
//   - GIN_MODE: Gin framework mode - debug, release, test
//   - BRAND_NAME: Tenant all data is scoped to
//   - UPSTREAM_BASE_URL / UPSTREAM_TOKEN: Warehouse analytics endpoint
//   - ORDERS_BASE_URL / ORDERS_TOKEN: Order-history endpoint (optional)
//   - LLM_API_KEY / LLM_MODEL_FAST / LLM_BASE_URL: Insight provider
//   - CACHE_TTL_FRESH / CACHE_TTL_GRACE / CACHE_TTL_FAIL: Cache TTLs, seconds
//   - CACHE_MAX_ENTRIES: Cache slot bound (default: 512)
//   - HUB_HEARTBEAT_MS: Heartbeat interval (default: 30000)
//   - HUB_QUEUE_MAX: Per-subscriber queue bound (default: 64)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//   - LOG_LEVEL: Minimum log level - debug, info, warn, error (default: info)
//   - LOG_DIR: Directory for dated JSON log files (optional)
//
// # Usage
//
//	# Build
//	go build -o insights ./cmd/insights
//
//	# Run
//	./insights
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/brandpulse/brandpulse/pkg/logging"
	"github.com/brandpulse/brandpulse/services/insights"
)

func main() {
	// Setup structured logging
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "insights",
		JSON:    true,
		LogDir:  os.Getenv("LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := insights.Config{
		Port:              getEnvInt("PORT", 12310),
		GinMode:           os.Getenv("GIN_MODE"),
		BrandName:         getEnvString("BRAND_NAME", "BrandPulse Demo Co"),
		UpstreamBaseURL:   os.Getenv("UPSTREAM_BASE_URL"),
		UpstreamToken:     os.Getenv("UPSTREAM_TOKEN"),
		OrdersBaseURL:     os.Getenv("ORDERS_BASE_URL"),
		OrdersToken:       os.Getenv("ORDERS_TOKEN"),
		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMModel:          os.Getenv("LLM_MODEL_FAST"),
		LLMBaseURL:        os.Getenv("LLM_BASE_URL"),
		CacheTTLFresh:     getEnvSeconds("CACHE_TTL_FRESH", 5*time.Minute),
		CacheTTLGrace:     getEnvSeconds("CACHE_TTL_GRACE", 15*time.Minute),
		CacheTTLFail:      getEnvSeconds("CACHE_TTL_FAIL", 60*time.Second),
		CacheMaxEntries:   getEnvInt("CACHE_MAX_ENTRIES", 512),
		HeartbeatInterval: getEnvDuration("HUB_HEARTBEAT_MS", 30*time.Second),
		QueueMax:          getEnvInt("HUB_QUEUE_MAX", 64),
		OTelEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		EnableMetrics:     true,
	}

	slog.Info("Starting insights service",
		"port", cfg.Port,
		"brand", cfg.BrandName,
		"upstream_configured", cfg.UpstreamBaseURL != "",
		"llm_configured", cfg.LLMAPIKey != "",
	)

	svc, err := insights.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create insights service: %v", err)
	}

	// Announce shutdown to connected dashboards before exiting
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		os.Exit(0)
	}()

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Insights service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration reads a millisecond-valued environment variable.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getEnvSeconds reads a second-valued environment variable.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if sec, err := strconv.Atoi(value); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	return defaultValue
}
