// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP handlers for the insights service:
// the FAST/SLOW endpoint pairs, per-entity insight endpoints, the SSE and
// WebSocket event streams, and the admin surface.
//
// Every JSON endpoint responds with the shared envelope:
//
//	{ "success": bool, "data": {...}, "error": "...", "message": "...", "timestamp": ms }
//
// FAST endpoints never wait on the LLM; SLOW endpoints never fail because
// of it. A provider failure surfaces as a degraded insight value inside a
// success envelope.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brandpulse/brandpulse/services/insights/cache"
	"github.com/brandpulse/brandpulse/services/insights/datatypes"
	"github.com/brandpulse/brandpulse/services/insights/hub"
	"github.com/brandpulse/brandpulse/services/insights/notify"
	"github.com/brandpulse/brandpulse/services/insights/observability"
	"github.com/brandpulse/brandpulse/services/insights/upstream"
	"github.com/brandpulse/brandpulse/services/llm"
)

// ====== Dependencies ======

// RecordFetcher fetches shipment records from an upstream endpoint.
// Satisfied by *upstream.Client; narrowed to an interface for handler tests.
type RecordFetcher interface {
	FetchRecords(ctx context.Context, scope upstream.Scope) ([]datatypes.ShipmentRecord, error)
}

// Deps bundles everything the handlers need. Built once by the service
// and shared across requests.
type Deps struct {
	// Warehouse is the main analytics upstream (all pages).
	Warehouse RecordFetcher

	// Orders is the order-history upstream used by the per-entity
	// endpoints. Falls back to Warehouse when not separately configured.
	Orders RecordFetcher

	LLM      llm.Client
	Cache    *cache.Cache
	Hub      *hub.Hub
	Notifier *notify.Notifier
	Metrics  *observability.Metrics

	// BrandName is the tenant every fetch and fingerprint is scoped to.
	BrandName string

	// LLMBudget bounds every producer invocation.
	LLMBudget llm.Budget

	// Versions tracks the per-namespace source version.
	Versions *Versions

	// Now is a clock override for tests. Nil uses time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) orders() RecordFetcher {
	if d.Orders != nil {
		return d.Orders
	}
	return d.Warehouse
}

// ====== Source Versions ======

// Versions tracks a monotonic source version per namespace. The version
// participates in cache fingerprints, so bumping it forces recomputation
// even when the KPI snapshot is unchanged.
type Versions struct {
	mu sync.Mutex
	v  map[string]int
}

// NewVersions creates the tracker with every namespace at version 1.
func NewVersions() *Versions {
	return &Versions{v: make(map[string]int)}
}

// Get returns the current version for a namespace.
func (s *Versions) Get(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.v[namespace]; ok {
		return v
	}
	s.v[namespace] = 1
	return 1
}

// Bump advances the version and returns the new value.
func (s *Versions) Bump(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.v[namespace]; !ok {
		s.v[namespace] = 1
	}
	s.v[namespace]++
	return s.v[namespace]
}

// ====== Response Envelope ======

// Envelope is the shared JSON response shape.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{
		Success:   true,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, Envelope{
		Success:   false,
		Error:     msg,
		Timestamp: time.Now().UnixMilli(),
	})
}

// configMissingOnce limits the missing-configuration log to one entry
// per process; the condition does not change until a restart.
var configMissingOnce sync.Once

// respondUpstreamError maps upstream fetch failures onto the envelope.
// Both kinds surface as 500: the client cannot distinguish a fix, only
// that the data path is down. The error strings stay distinct.
func respondUpstreamError(c *gin.Context, err error) {
	if errors.Is(err, upstream.ErrConfigMissing) {
		configMissingOnce.Do(func() {
			slog.Error("Upstream endpoint not configured", "error", err)
		})
		respondError(c, http.StatusInternalServerError, "Upstream not configured")
		return
	}
	slog.Error("Upstream fetch failed", "error", err)
	respondError(c, http.StatusInternalServerError, "Upstream unavailable")
}

// ====== Insight Schemas ======

const degradedText = "Analysis Unavailable. Automated analysis will retry shortly."

// schemaFor returns the provider-output schema for a namespace. All page
// namespaces want a risk call; per-entity ones do too.
func schemaFor(namespace string) datatypes.InsightSchema {
	return datatypes.InsightSchema{
		Namespace:     namespace,
		WantRiskLevel: true,
		DegradedText:  degradedText,
	}
}

// ====== Page Plumbing ======

// recordsKey is the data-object key each page's record list is served
// under. Keys mirror what each dashboard page renders.
var recordsKey = map[datatypes.Page]string{
	datatypes.PageDashboard:     "records",
	datatypes.PageOrders:        "orders",
	datatypes.PageInventory:     "inventory",
	datatypes.PageInbound:       "shipments",
	datatypes.PageSLA:           "shipments",
	datatypes.PageReplenishment: "items",
}
