// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
	"github.com/brandpulse/brandpulse/services/insights/kpi"
	"github.com/brandpulse/brandpulse/services/insights/upstream"
)

// derivePage dispatches to the page's KPI derivation. The KPI set is
// returned as any because each page has its own schema; the intelligence
// block is shared.
func derivePage(page datatypes.Page, records []datatypes.ShipmentRecord, now time.Time) (any, datatypes.Intelligence) {
	switch page {
	case datatypes.PageOrders:
		k, intel := kpi.DeriveOrders(records, now)
		return k, intel
	case datatypes.PageInventory:
		k, intel := kpi.DeriveInventory(records, now)
		return k, intel
	case datatypes.PageInbound:
		k, intel := kpi.DeriveInbound(records, now)
		return k, intel
	case datatypes.PageSLA:
		k, intel := kpi.DeriveSLA(records, now)
		return k, intel
	case datatypes.PageReplenishment:
		k, intel := kpi.DeriveReplenishment(records, now)
		return k, intel
	default:
		k, intel := kpi.DeriveDashboard(records, now)
		return k, intel
	}
}

// HandleFastPage serves the FAST half of a page's endpoint pair.
//
// # Description
//
//	Fetches the tenant's records synchronously, derives the page's KPI
//	set plus the shared intelligence block, and returns them with an
//	empty insights list. The LLM is never consulted here; the browser
//	renders numbers immediately and fills insights in from the SLOW
//	endpoint or a push event.
//
// # Outputs
//
//	200 with data.{<records-key>, kpis, intelligence, insights, lastUpdated}
//	500 when the upstream fetch fails
func HandleFastPage(deps *Deps, page datatypes.Page) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		records, err := deps.Warehouse.FetchRecords(c.Request.Context(), upstream.Scope{
			Tenant: deps.BrandName,
		})
		if err != nil {
			deps.Metrics.RecordFastRequest(string(page), time.Since(start).Seconds(), false)
			respondUpstreamError(c, err)
			return
		}

		now := deps.now()
		kpis, intelligence := derivePage(page, records, now)

		respondOK(c, gin.H{
			recordsKey[page]: records,
			"kpis":           kpis,
			"intelligence":   intelligence,
			"insights":       []datatypes.InsightValue{},
			"lastUpdated":    now.UnixMilli(),
		})
		deps.Metrics.RecordFastRequest(string(page), time.Since(start).Seconds(), true)
	}
}
