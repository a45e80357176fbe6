// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
)

// pageFocus steers the provider toward what each page's reader cares
// about. Kept short; the KPI JSON carries the numbers.
var pageFocus = map[datatypes.Page]string{
	datatypes.PageDashboard:     "overall operational health and the single most urgent issue",
	datatypes.PageOrders:        "order flow, unshipped value, and orders at risk of missing their promise",
	datatypes.PageInventory:     "stock coverage, low and out-of-stock SKUs, and tied-up inventory value",
	datatypes.PageInbound:       "inbound shipment timing, late arrivals, and units in transit",
	datatypes.PageSLA:           "delivery-promise compliance, breaches, and the value exposed by late orders",
	datatypes.PageReplenishment: "reorder urgency, imminent stockouts, and suggested purchase quantities",
}

// buildPagePrompt assembles the SLOW-endpoint prompt for one page from
// the derived KPI set and intelligence block.
func buildPagePrompt(brand string, page datatypes.Page, kpis any, intelligence datatypes.Intelligence) string {
	kpiJSON, _ := json.Marshal(kpis)
	intelJSON, _ := json.Marshal(intelligence)

	return fmt.Sprintf(
		"Brand: %s\nPage: %s\nFocus: %s\n\nKPIs:\n%s\n\nDerived intelligence (SLA breakdown, at-risk orders, geo risk):\n%s\n\n"+
			"Write a concise operational analysis for this page and concrete next actions.",
		brand, page, pageFocus[page], kpiJSON, intelJSON)
}

// buildOrderPrompt assembles the per-order suggestion prompt.
func buildOrderPrompt(brand string, order datatypes.OrderData, history []datatypes.ShipmentRecord) string {
	orderJSON, _ := json.Marshal(order)
	historyJSON, _ := json.Marshal(history)

	return fmt.Sprintf(
		"Brand: %s\n\nOrder under review:\n%s\n\nRecent shipment history for context:\n%s\n\n"+
			"Assess this order's delivery risk and suggest the next action for the operations team.",
		brand, orderJSON, historyJSON)
}

// buildSKUPrompt assembles the historical SKU analysis prompt.
func buildSKUPrompt(brand string, item datatypes.ItemData, history []datatypes.ShipmentRecord) string {
	itemJSON, _ := json.Marshal(item)
	historyJSON, _ := json.Marshal(history)

	return fmt.Sprintf(
		"Brand: %s\n\nSKU under review:\n%s\n\nHistorical shipments for this SKU:\n%s\n\n"+
			"Analyze demand and replenishment history for this SKU and recommend reorder timing and quantity.",
		brand, itemJSON, historyJSON)
}
