// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brandpulse/brandpulse/pkg/validation"
	"github.com/brandpulse/brandpulse/services/insights/cache"
	"github.com/brandpulse/brandpulse/services/insights/datatypes"
	"github.com/brandpulse/brandpulse/services/insights/upstream"
)

// entityHistoryLimit bounds the context records fetched for a per-entity
// prompt. Enough for trend signal without blowing the token budget.
const entityHistoryLimit = 50

// HandleOrderSuggestion serves POST /api/order-suggestion.
//
// # Description
//
//	Produces an LLM assessment of a single order's delivery risk. The
//	result is cached quietly under the order's entity key: repeated
//	clicks on one order coalesce and hit the cache, and no page-level
//	push event fires.
func HandleOrderSuggestion(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.OrderSuggestionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			respondError(c, http.StatusBadRequest, "orderData.order_id is required")
			return
		}

		orderID, err := validation.SanitizeOrderID(req.OrderData.OrderID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid order id")
			return
		}
		req.OrderData.OrderID = orderID

		history, err := deps.orders().FetchRecords(c.Request.Context(), upstream.Scope{
			Tenant: deps.BrandName,
			Limit:  entityHistoryLimit,
		})
		if err != nil {
			// Per-entity insights degrade rather than fail: the prompt
			// just loses its history context.
			slog.Warn("Order history fetch failed, prompting without context",
				"order_id", orderID, "error", err)
			history = nil
		}

		namespace := datatypes.PageOrders.Namespace()
		version := deps.Versions.Get(namespace)
		fingerprint := cache.Fingerprint(deps.BrandName, namespace, version,
			req.OrderData, orderID)

		rec := deps.Cache.GetOrCompute(c.Request.Context(), cache.ComputeRequest{
			Namespace:     namespace,
			Fingerprint:   fingerprint,
			SourceVersion: version,
			Quiet:         true,
			Producer: insightProducer(deps.LLM,
				buildOrderPrompt(deps.BrandName, req.OrderData, history),
				schemaFor(namespace), deps.LLMBudget),
		})

		respondOK(c, gin.H{
			"orderId":     orderID,
			"suggestion":  rec.Value,
			"degraded":    rec.Value.Degraded(),
			"lastUpdated": rec.ProducedAt.UnixMilli(),
		})
	}
}

// HandleHistoricalSKUAnalysis serves POST /api/historical-sku-analysis.
//
// Same quiet-cache contract as the order endpoint, keyed by SKU. The
// history fetch is pinned to the SKU so the prompt sees only relevant
// shipments.
func HandleHistoricalSKUAnalysis(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.HistoricalSKURequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			respondError(c, http.StatusBadRequest, "itemData.sku is required")
			return
		}

		sku, err := validation.SanitizeSKU(req.ItemData.SKU)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid sku")
			return
		}
		req.ItemData.SKU = sku

		history, err := deps.orders().FetchRecords(c.Request.Context(), upstream.Scope{
			Tenant:    deps.BrandName,
			Limit:     entityHistoryLimit,
			EntityKey: sku,
		})
		if err != nil {
			slog.Warn("SKU history fetch failed, prompting without context",
				"sku", sku, "error", err)
			history = nil
		}

		namespace := datatypes.PageInventory.Namespace()
		version := deps.Versions.Get(namespace)
		fingerprint := cache.Fingerprint(deps.BrandName, namespace, version,
			req.ItemData, sku)

		rec := deps.Cache.GetOrCompute(c.Request.Context(), cache.ComputeRequest{
			Namespace:     namespace,
			Fingerprint:   fingerprint,
			SourceVersion: version,
			Quiet:         true,
			Producer: insightProducer(deps.LLM,
				buildSKUPrompt(deps.BrandName, req.ItemData, history),
				schemaFor(namespace), deps.LLMBudget),
		})

		respondOK(c, gin.H{
			"sku":         sku,
			"analysis":    rec.Value,
			"degraded":    rec.Value.Degraded(),
			"lastUpdated": rec.ProducedAt.UnixMilli(),
		})
	}
}
