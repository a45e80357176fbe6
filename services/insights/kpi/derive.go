// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package kpi derives page KPI sets and intelligence from raw shipment
// records.
//
// Every function here is pure: same records and clock in, same output out,
// no I/O, no shared state. The LLM never sees this path; derivation must
// stay cheap enough for the FAST endpoints' latency budget.
//
// Missing-data policy: absent or null numeric fields are zero, unknown
// categorical fields bucket to "unknown". A record never makes derivation
// fail.
package kpi

import (
	"time"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
)

// RuleSetVersion identifies the derivation rules and the risk country set.
// Bump it whenever either changes: it participates in insight fingerprints,
// so a bump retires every cached insight without explicit eviction.
const RuleSetVersion = 3

// =============================================================================
// SLA Classification
// =============================================================================

// slaBreachDays is how many days past the expected date a pending shipment
// counts as a breach rather than merely at risk.
const slaBreachDays = 2

// SLAStatusFor classifies one record against its delivery promise.
//
// Completed records compare arrival to expected: on time iff arrival is on
// or before the expected date. Pending records compare the clock to the
// expected date: more than slaBreachDays over is a breach, any overrun is
// at risk, otherwise on time. Records without a parseable expected date
// (and completed records without an arrival date) are unknown.
func SLAStatusFor(r datatypes.ShipmentRecord, now time.Time) datatypes.SLAStatus {
	expected, ok := datatypes.ParseDate(r.ExpectedDate)
	if !ok {
		return datatypes.SLAUnknown
	}

	if r.Status == "cancelled" {
		return datatypes.SLAUnknown
	}

	if r.Completed() {
		arrival, ok := datatypes.ParseDate(r.ArrivalDate)
		if !ok {
			return datatypes.SLAUnknown
		}
		if !arrival.After(expected) {
			return datatypes.SLAOnTime
		}
		return datatypes.SLALate
	}

	daysOver := now.Sub(expected).Hours() / 24
	switch {
	case daysOver > slaBreachDays:
		return datatypes.SLABreach
	case daysOver > 0:
		return datatypes.SLAAtRisk
	default:
		return datatypes.SLAOnTime
	}
}

// =============================================================================
// Geopolitical Risk Buckets
// =============================================================================

// Origin-country risk sets, versioned under RuleSetVersion. Changing either
// set requires a RuleSetVersion bump.
var (
	elevatedRiskCountries = map[string]bool{
		"RU": true, "BY": true, "IR": true, "KP": true, "SY": true,
		"VE": true, "MM": true,
	}
	watchRiskCountries = map[string]bool{
		"CN": true, "TW": true, "UA": true, "IL": true, "EG": true,
		"PK": true, "ET": true,
	}
)

// GeoRiskBucket assigns an origin country to a risk bucket.
func GeoRiskBucket(country string) string {
	switch {
	case country == "":
		return "unknown"
	case elevatedRiskCountries[country]:
		return "elevated"
	case watchRiskCountries[country]:
		return "watch"
	default:
		return "standard"
	}
}

// =============================================================================
// Intelligence
// =============================================================================

// DeriveIntelligence computes the shared intelligence block: SLA breakdown,
// at-risk order list, value-at-risk, and geo-risk buckets.
func DeriveIntelligence(records []datatypes.ShipmentRecord, now time.Time) datatypes.Intelligence {
	intel := datatypes.Intelligence{
		SLABreakdown:   make(map[datatypes.SLAStatus]int),
		GeoRisk:        make(map[string]int),
		RuleSetVersion: RuleSetVersion,
	}

	for _, r := range records {
		status := SLAStatusFor(r, now)
		intel.SLABreakdown[status]++
		intel.GeoRisk[GeoRiskBucket(r.OriginCountry)]++

		if status == datatypes.SLAAtRisk || status == datatypes.SLABreach {
			intel.ValueAtRisk += r.Value()
			if r.OrderID != "" {
				intel.AtRiskOrders = append(intel.AtRiskOrders, r.OrderID)
			}
		}
	}

	return intel
}

// onTimeRate computes on-time share over classified (non-unknown) records.
func onTimeRate(breakdown map[datatypes.SLAStatus]int) float64 {
	classified := 0
	for status, n := range breakdown {
		if status != datatypes.SLAUnknown {
			classified += n
		}
	}
	if classified == 0 {
		return 0
	}
	return float64(breakdown[datatypes.SLAOnTime]) / float64(classified)
}

// =============================================================================
// Per-Page Derivers
// =============================================================================

// DeriveDashboard computes the overview page KPI set.
func DeriveDashboard(records []datatypes.ShipmentRecord, now time.Time) (datatypes.DashboardKPIs, datatypes.Intelligence) {
	intel := DeriveIntelligence(records, now)

	k := datatypes.DashboardKPIs{
		TotalOrders: len(records),
		SLABreaches: intel.SLABreakdown[datatypes.SLABreach] + intel.SLABreakdown[datatypes.SLALate],
		OnTimeRate:  onTimeRate(intel.SLABreakdown),
		ValueAtRisk: intel.ValueAtRisk,
	}
	for _, r := range records {
		if r.Open() {
			k.OpenOrders++
		}
		if inTransit(r) {
			k.InboundShipments++
		}
	}
	return k, intel
}

// DeriveOrders computes the orders page KPI set.
func DeriveOrders(records []datatypes.ShipmentRecord, now time.Time) (datatypes.OrdersKPIs, datatypes.Intelligence) {
	intel := DeriveIntelligence(records, now)
	today := now.UTC().Format(datatypes.DateLayout)

	k := datatypes.OrdersKPIs{
		AtRiskOrders: intel.SLABreakdown[datatypes.SLAAtRisk] + intel.SLABreakdown[datatypes.SLABreach],
	}
	for _, r := range records {
		k.TotalUnits += r.Quantity
		if r.CreatedDate == today {
			k.OrdersToday++
		}
		if r.Open() {
			k.OpenOrders++
			k.UnshippedValue += r.Value()
		}
	}
	return k, intel
}

// DeriveInventory computes the inventory page KPI set. Stock fields are
// taken per distinct SKU (first occurrence wins; records are line items and
// repeat stock levels per line).
func DeriveInventory(records []datatypes.ShipmentRecord, now time.Time) (datatypes.InventoryKPIs, datatypes.Intelligence) {
	intel := DeriveIntelligence(records, now)

	var k datatypes.InventoryKPIs
	seen := make(map[string]bool)
	var coverSum float64
	var coverCount int

	for _, r := range records {
		sku := r.SKU
		if sku == "" {
			sku = "unknown"
		}
		if seen[sku] {
			continue
		}
		seen[sku] = true

		k.TotalSKUs++
		k.InventoryValue += r.OnHandUnits * r.UnitCost
		switch {
		case r.OnHandUnits <= 0:
			k.OutOfStockSKUs++
		case r.OnHandUnits <= r.ReorderPoint:
			k.LowStockSKUs++
		}
		if r.DailyDemand > 0 {
			coverSum += r.OnHandUnits / r.DailyDemand
			coverCount++
		}
	}
	if coverCount > 0 {
		k.DaysOfCover = coverSum / float64(coverCount)
	}
	return k, intel
}

// DeriveInbound computes the inbound shipments page KPI set.
func DeriveInbound(records []datatypes.ShipmentRecord, now time.Time) (datatypes.InboundKPIs, datatypes.Intelligence) {
	intel := DeriveIntelligence(records, now)
	weekOut := now.AddDate(0, 0, 7)

	var k datatypes.InboundKPIs
	for _, r := range records {
		if !inTransit(r) {
			continue
		}
		k.InboundCount++
		k.UnitsInTransit += r.Quantity

		status := SLAStatusFor(r, now)
		if status == datatypes.SLAAtRisk || status == datatypes.SLABreach {
			k.LateShipments++
		}
		if expected, ok := datatypes.ParseDate(r.ExpectedDate); ok {
			if !expected.Before(now.Truncate(24*time.Hour)) && expected.Before(weekOut) {
				k.ArrivingThisWeek++
			}
		}
	}
	return k, intel
}

// DeriveSLA computes the SLA page KPI set.
func DeriveSLA(records []datatypes.ShipmentRecord, now time.Time) (datatypes.SLAKPIs, datatypes.Intelligence) {
	intel := DeriveIntelligence(records, now)

	k := datatypes.SLAKPIs{
		OnTime:      intel.SLABreakdown[datatypes.SLAOnTime],
		AtRisk:      intel.SLABreakdown[datatypes.SLAAtRisk],
		Breached:    intel.SLABreakdown[datatypes.SLABreach],
		Late:        intel.SLABreakdown[datatypes.SLALate],
		Unknown:     intel.SLABreakdown[datatypes.SLAUnknown],
		OnTimeRate:  onTimeRate(intel.SLABreakdown),
		ValueAtRisk: intel.ValueAtRisk,
	}
	return k, intel
}

// DeriveReplenishment computes the replenishment page KPI set. Like
// inventory, stock fields are per distinct SKU.
func DeriveReplenishment(records []datatypes.ShipmentRecord, now time.Time) (datatypes.ReplenishmentKPIs, datatypes.Intelligence) {
	intel := DeriveIntelligence(records, now)

	var k datatypes.ReplenishmentKPIs
	seen := make(map[string]bool)
	var daysSum float64
	var daysCount int

	for _, r := range records {
		sku := r.SKU
		if sku == "" || seen[sku] {
			continue
		}
		seen[sku] = true

		if r.OnHandUnits <= r.ReorderPoint {
			k.SKUsBelowReorder++
			k.SuggestedOrders++
			if gap := r.ReorderPoint - r.OnHandUnits; gap > 0 {
				k.ReorderValue += gap * r.UnitCost
			}
		}
		if r.DailyDemand > 0 {
			days := r.OnHandUnits / r.DailyDemand
			daysSum += days
			daysCount++
			if days <= 7 {
				k.StockoutsThisWeek++
			}
		}
	}
	if daysCount > 0 {
		k.AvgDaysUntilStockout = daysSum / float64(daysCount)
	}
	return k, intel
}

// inTransit reports whether a record represents freight still moving
// toward the warehouse.
func inTransit(r datatypes.ShipmentRecord) bool {
	switch r.Status {
	case "in_transit", "shipped", "pending", "processing":
		return true
	}
	return false
}
