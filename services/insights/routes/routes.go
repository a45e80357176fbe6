// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
	"github.com/brandpulse/brandpulse/services/insights/handlers"
)

// SetupRoutes registers the full insights surface on the router.
//
// Endpoints:
//
//	GET  /health                          - Liveness check
//	GET  /metrics                         - Prometheus metrics
//	GET  /api/<page>-data-fast            - FAST: records + KPIs + intelligence
//	GET  /api/<page>-insights             - SLOW: cached LLM insight
//	POST /api/order-suggestion            - Per-order insight (quiet cache)
//	POST /api/historical-sku-analysis     - Per-SKU insight (quiet cache)
//	GET  /api/insights-stream             - SSE event feed
//	GET  /api/insights-ws                 - WebSocket event feed
//	GET  /api/stream-stats                - Hub and cache census
//	POST /api/admin/refresh               - Force recompute + announce
//	POST /api/admin/invalidate            - Force invalidation + announce
//
// Pages: dashboard, orders, inventory, inbound, sla, replenishment.
func SetupRoutes(router *gin.Engine, deps *handlers.Deps) {
	// Unsupported methods on known paths get an explicit hint instead of
	// a silent 404.
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"success": false,
			"error":   "method not allowed; this API serves GET, POST and OPTIONS only",
		})
	})

	router.GET("/health", handlers.HandleHealth(deps))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		// FAST/SLOW pairs, one per dashboard page
		for _, page := range datatypes.Pages {
			api.GET("/"+string(page)+"-data-fast", handlers.HandleFastPage(deps, page))
			api.GET("/"+string(page)+"-insights", handlers.HandleSlowPage(deps, page))
		}

		// Per-entity insights
		api.POST("/order-suggestion", handlers.HandleOrderSuggestion(deps))
		api.POST("/historical-sku-analysis", handlers.HandleHistoricalSKUAnalysis(deps))

		// Push feeds
		api.GET("/insights-stream", handlers.HandleInsightsStream(deps))
		api.GET("/insights-ws", handlers.HandleInsightsWS(deps))
		api.GET("/stream-stats", handlers.HandleStreamStats(deps))

		// Admin operations
		admin := api.Group("/admin")
		{
			admin.POST("/refresh", handlers.HandleAdminRefresh(deps))
			admin.POST("/invalidate", handlers.HandleAdminInvalidate(deps))
		}
	}
}
