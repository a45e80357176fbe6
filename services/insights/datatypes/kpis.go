// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the insights service.
//
// This file contains the derived KPI shapes, one per page, plus the shared
// intelligence block. KPI sets have no identity: they are recomputed on
// every FAST call and discarded after the response is written.
package datatypes

// =============================================================================
// Pages and Namespaces
// =============================================================================

// Page identifies one dashboard page with its own KPI schema.
type Page string

const (
	PageDashboard     Page = "dashboard"
	PageOrders        Page = "orders"
	PageInventory     Page = "inventory"
	PageInbound       Page = "inbound"
	PageSLA           Page = "sla"
	PageReplenishment Page = "replenishment"
)

// Pages lists every page in route-registration order.
var Pages = []Page{
	PageDashboard,
	PageOrders,
	PageInventory,
	PageInbound,
	PageSLA,
	PageReplenishment,
}

// Namespace returns the insight namespace for the page, e.g.
// "orders-insights" for PageOrders.
func (p Page) Namespace() string {
	return string(p) + "-insights"
}

// DefaultNamespaces returns the namespace set a subscriber gets when it
// declares none.
func DefaultNamespaces() []string {
	out := make([]string, 0, len(Pages))
	for _, p := range Pages {
		out = append(out, p.Namespace())
	}
	return out
}

// =============================================================================
// SLA Status
// =============================================================================

// SLAStatus classifies one record against its delivery promise.
type SLAStatus string

const (
	SLAOnTime  SLAStatus = "on_time"
	SLAAtRisk  SLAStatus = "at_risk"
	SLABreach  SLAStatus = "breach"
	SLALate    SLAStatus = "late"
	SLAUnknown SLAStatus = "unknown"
)

// =============================================================================
// KPI Sets (one schema per page)
// =============================================================================

// DashboardKPIs is the KPI set for the overview page.
type DashboardKPIs struct {
	TotalOrders      int     `json:"totalOrders"`
	OpenOrders       int     `json:"openOrders"`
	InboundShipments int     `json:"inboundShipments"`
	SLABreaches      int     `json:"slaBreaches"`
	OnTimeRate       float64 `json:"onTimeRate"`
	ValueAtRisk      float64 `json:"valueAtRisk"`
}

// OrdersKPIs is the KPI set for the orders page.
type OrdersKPIs struct {
	OrdersToday    int     `json:"ordersToday"`
	OpenOrders     int     `json:"openOrders"`
	TotalUnits     float64 `json:"totalUnits"`
	UnshippedValue float64 `json:"unshippedValue"`
	AtRiskOrders   int     `json:"atRiskOrders"`
}

// InventoryKPIs is the KPI set for the inventory page.
type InventoryKPIs struct {
	TotalSKUs      int     `json:"totalSkus"`
	LowStockSKUs   int     `json:"lowStockSkus"`
	OutOfStockSKUs int     `json:"outOfStockSkus"`
	InventoryValue float64 `json:"inventoryValue"`
	DaysOfCover    float64 `json:"daysOfCover"`
}

// InboundKPIs is the KPI set for the inbound shipments page.
type InboundKPIs struct {
	InboundCount     int     `json:"inboundCount"`
	ArrivingThisWeek int     `json:"arrivingThisWeek"`
	LateShipments    int     `json:"lateShipments"`
	UnitsInTransit   float64 `json:"unitsInTransit"`
}

// SLAKPIs is the KPI set for the SLA page.
type SLAKPIs struct {
	OnTime      int     `json:"onTime"`
	AtRisk      int     `json:"atRisk"`
	Breached    int     `json:"breached"`
	Late        int     `json:"late"`
	Unknown     int     `json:"unknown"`
	OnTimeRate  float64 `json:"onTimeRate"`
	ValueAtRisk float64 `json:"valueAtRisk"`
}

// ReplenishmentKPIs is the KPI set for the replenishment page.
type ReplenishmentKPIs struct {
	SKUsBelowReorder     int     `json:"skusBelowReorder"`
	SuggestedOrders      int     `json:"suggestedOrders"`
	StockoutsThisWeek    int     `json:"stockoutsThisWeek"`
	ReorderValue         float64 `json:"reorderValue"`
	AvgDaysUntilStockout float64 `json:"avgDaysUntilStockout"`
}

// =============================================================================
// Intelligence
// =============================================================================

// Intelligence is the derived block shared by every page: SLA breakdown,
// at-risk identification, value-at-risk, and the geopolitical-risk buckets.
//
// RuleSetVersion is bumped whenever the derivation rules or the risk
// country set change; it participates in cache fingerprints so a rule
// change naturally invalidates stale insights.
type Intelligence struct {
	SLABreakdown   map[SLAStatus]int `json:"slaBreakdown"`
	AtRiskOrders   []string          `json:"atRiskOrders"`
	ValueAtRisk    float64           `json:"valueAtRisk"`
	GeoRisk        map[string]int    `json:"geoRisk"`
	RuleSetVersion int               `json:"ruleSetVersion"`
}
