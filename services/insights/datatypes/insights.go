// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the insights service.
//
// This file contains the typed insight value that the LLM layer produces.
// The provider returns loosely-typed JSON; it never crosses the LLM client
// boundary untyped. Everything downstream (cache, handlers, push events)
// sees InsightValue with an explicit degraded arm.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Insight Value (tagged variant)
// =============================================================================

// InsightKind tags how an InsightValue was produced.
type InsightKind string

const (
	// KindInsight marks a value parsed from a successful provider response.
	KindInsight InsightKind = "insight"

	// KindDegraded marks a fallback value shaped after a provider failure.
	// Degraded values are servable; the UI renders them with a notice.
	KindDegraded InsightKind = "degraded"
)

// InsightValue is the structured value stored in the cache and returned by
// every SLOW endpoint. One shape serves all namespaces; the schema controls
// which fields the prompt asks the provider to fill.
type InsightValue struct {
	Kind            InsightKind `json:"kind"`
	Analysis        string      `json:"analysis"`
	Recommendations []string    `json:"recommendations"`
	Highlights      []string    `json:"highlights,omitempty"`
	RiskLevel       string      `json:"risk_level,omitempty"`
	Confidence      string      `json:"confidence,omitempty"`
}

// Degraded reports whether the value is a fallback.
func (v InsightValue) Degraded() bool {
	return v.Kind == KindDegraded
}

// InsightSchema describes the expected provider output for one namespace.
// Prompts are opaque to the cache and hub; the schema only shapes parsing
// and fallback construction.
type InsightSchema struct {
	// Namespace the schema belongs to, e.g. "orders-insights".
	Namespace string

	// WantRiskLevel asks the provider for a low/medium/high risk call.
	WantRiskLevel bool

	// DegradedText is the analysis text used when the provider fails.
	DegradedText string
}

// DegradedValue builds the shaped fallback for this schema. Producers are
// required to return a value rather than an error, so this is the floor
// every caller can rely on.
func (s InsightSchema) DegradedValue(reason string) InsightValue {
	v := InsightValue{
		Kind:     KindDegraded,
		Analysis: s.DegradedText,
		Recommendations: []string{
			"Review the raw metrics above; automated analysis will retry shortly.",
		},
	}
	if s.WantRiskLevel {
		v.RiskLevel = "unknown"
	}
	if reason != "" {
		v.Confidence = "none"
	}
	return v
}

// =============================================================================
// Per-Entity Request Bodies
// =============================================================================

// insightValidate validates per-entity request bodies.
var insightValidate = validator.New()

// OrderSuggestionRequest is the body for POST /api/order-suggestion.
type OrderSuggestionRequest struct {
	OrderData OrderData `json:"orderData" validate:"required"`
}

// OrderData carries the order under analysis. Extra upstream fields ride
// along in the record snapshot and stay opaque to the core.
type OrderData struct {
	OrderID      string  `json:"order_id" validate:"required"`
	SKU          string  `json:"sku"`
	Status       string  `json:"status"`
	Quantity     float64 `json:"quantity"`
	ExpectedDate string  `json:"expected_date"`
}

// Validate checks required fields.
func (r OrderSuggestionRequest) Validate() error {
	return insightValidate.Struct(r)
}

// HistoricalSKURequest is the body for POST /api/historical-sku-analysis.
type HistoricalSKURequest struct {
	ItemData ItemData `json:"itemData" validate:"required"`
}

// ItemData carries the SKU under historical analysis.
type ItemData struct {
	SKU          string  `json:"sku" validate:"required"`
	OnHandUnits  float64 `json:"on_hand_units"`
	ReorderPoint float64 `json:"reorder_point"`
	DailyDemand  float64 `json:"daily_demand"`
}

// Validate checks required fields.
func (r HistoricalSKURequest) Validate() error {
	return insightValidate.Struct(r)
}
