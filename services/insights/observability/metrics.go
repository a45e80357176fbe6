// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the
// insights service.
//
// # Description
//
// This package implements Prometheus metrics for the progressive insight
// delivery core. Metrics include:
//   - Cache lookups by outcome (hit, stale, coalesced, miss, failed)
//   - LLM producer latency and errors
//   - Push subscriber gauge and delivered/dropped event counters
//   - FAST endpoint latency
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every record method is also nil-receiver safe so components can run
// without metrics in tests.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "brandpulse"

// Subsystem for the insight delivery core
const insightsSubsystem = "insights"

// =============================================================================
// Metric Definitions
// =============================================================================

// Metrics holds all Prometheus metrics for the insight delivery core.
// Initialize once at startup via InitMetrics().
type Metrics struct {
	// CacheLookupsTotal counts cache lookups by outcome.
	// Labels: namespace, outcome (hit, stale, coalesced, miss, failed_serve)
	CacheLookupsTotal *prometheus.CounterVec

	// CacheEvictionsTotal counts forced evictions by slot state.
	// Labels: state (READY, FAILED)
	CacheEvictionsTotal *prometheus.CounterVec

	// CacheEntries tracks the current number of cache slots.
	CacheEntries prometheus.Gauge

	// ProducerDurationSeconds measures LLM producer latency.
	// Labels: namespace, status (success, error)
	ProducerDurationSeconds *prometheus.HistogramVec

	// ProducerErrorsTotal counts producer failures by error kind.
	// Labels: namespace, kind (timeout, upstream_status, parse_failure, missing_credential)
	ProducerErrorsTotal *prometheus.CounterVec

	// Subscribers tracks currently connected push subscribers.
	// Labels: transport (sse, websocket)
	Subscribers *prometheus.GaugeVec

	// EventsDeliveredTotal counts events enqueued per type.
	// Labels: type
	EventsDeliveredTotal *prometheus.CounterVec

	// EventsDroppedTotal counts events dropped by backpressure.
	EventsDroppedTotal prometheus.Counter

	// FastRequestDurationSeconds measures FAST endpoint latency.
	// Labels: page, status (success, error)
	FastRequestDurationSeconds *prometheus.HistogramVec
}

// DefaultMetrics is the singleton instance. Initialized by InitMetrics().
var DefaultMetrics *Metrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; calling twice panics on duplicate registration.
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		CacheLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightsSubsystem,
				Name:      "cache_lookups_total",
				Help:      "Insight cache lookups by namespace and outcome",
			},
			[]string{"namespace", "outcome"},
		),

		CacheEvictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightsSubsystem,
				Name:      "cache_evictions_total",
				Help:      "Forced cache evictions by slot state",
			},
			[]string{"state"},
		),

		CacheEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: insightsSubsystem,
				Name:      "cache_entries",
				Help:      "Current number of insight cache slots",
			},
		),

		ProducerDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: insightsSubsystem,
				Name:      "producer_duration_seconds",
				Help:      "LLM producer latency by namespace and status",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"namespace", "status"},
		),

		ProducerErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightsSubsystem,
				Name:      "producer_errors_total",
				Help:      "LLM producer failures by namespace and error kind",
			},
			[]string{"namespace", "kind"},
		),

		Subscribers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: insightsSubsystem,
				Name:      "subscribers",
				Help:      "Currently connected push subscribers by transport",
			},
			[]string{"transport"},
		),

		EventsDeliveredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightsSubsystem,
				Name:      "events_delivered_total",
				Help:      "Push events enqueued to subscriber queues by type",
			},
			[]string{"type"},
		),

		EventsDroppedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightsSubsystem,
				Name:      "events_dropped_total",
				Help:      "Push events dropped by per-subscriber backpressure",
			},
		),

		FastRequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: insightsSubsystem,
				Name:      "fast_request_duration_seconds",
				Help:      "FAST endpoint latency by page and status",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"page", "status"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods (nil-receiver safe)
// =============================================================================

// RecordCacheLookup records one cache lookup outcome.
func (m *Metrics) RecordCacheLookup(namespace, outcome string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(namespace, outcome).Inc()
}

// RecordEviction records one forced eviction.
func (m *Metrics) RecordEviction(state string) {
	if m == nil {
		return
	}
	m.CacheEvictionsTotal.WithLabelValues(state).Inc()
}

// SetCacheEntries updates the slot-count gauge.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// RecordProducer records one producer run.
func (m *Metrics) RecordProducer(namespace string, seconds float64, errKind string) {
	if m == nil {
		return
	}
	status := "success"
	if errKind != "" {
		status = "error"
		m.ProducerErrorsTotal.WithLabelValues(namespace, errKind).Inc()
	}
	m.ProducerDurationSeconds.WithLabelValues(namespace, status).Observe(seconds)
}

// SubscriberConnected increments the subscriber gauge.
func (m *Metrics) SubscriberConnected(transport string) {
	if m == nil {
		return
	}
	m.Subscribers.WithLabelValues(transport).Inc()
}

// SubscriberDisconnected decrements the subscriber gauge.
func (m *Metrics) SubscriberDisconnected(transport string) {
	if m == nil {
		return
	}
	m.Subscribers.WithLabelValues(transport).Dec()
}

// RecordEventDelivered counts one enqueued event.
func (m *Metrics) RecordEventDelivered(eventType string) {
	if m == nil {
		return
	}
	m.EventsDeliveredTotal.WithLabelValues(eventType).Inc()
}

// RecordEventDropped counts one backpressure drop.
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.EventsDroppedTotal.Inc()
}

// RecordFastRequest records one FAST endpoint request.
func (m *Metrics) RecordFastRequest(page string, seconds float64, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.FastRequestDurationSeconds.WithLabelValues(page, status).Observe(seconds)
}
