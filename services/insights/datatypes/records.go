// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the insights service.
//
// This file contains the raw upstream record shape. Records are immutable
// after fetch: the fetcher normalizes them once and every downstream
// consumer (KPI derivation, fingerprinting, prompt building) reads them
// without mutation.
package datatypes

import "time"

// DateLayout is the wire format for upstream date fields.
const DateLayout = "2006-01-02"

// ShipmentRecord is the raw unit returned by the analytics endpoint.
//
// The core treats most fields as opaque payload; the exceptions are
// BrandName (tenant filter), the date/status triple (SLA derivation), and
// the cost/quantity pair (value-at-risk). Numeric fields absent or null in
// the upstream JSON decode to zero; categorical fields decode to "".
type ShipmentRecord struct {
	OrderID       string  `json:"order_id"`
	SKU           string  `json:"sku"`
	BrandName     string  `json:"brand_name"`
	Status        string  `json:"status"`
	Quantity      float64 `json:"quantity"`
	UnitCost      float64 `json:"unit_cost"`
	CreatedDate   string  `json:"created_date"`
	ExpectedDate  string  `json:"expected_date"`
	ArrivalDate   string  `json:"arrival_date"`
	OriginCountry string  `json:"origin_country"`
	Destination   string  `json:"destination"`
	Carrier       string  `json:"carrier"`
	OnHandUnits   float64 `json:"on_hand_units"`
	ReorderPoint  float64 `json:"reorder_point"`
	DailyDemand   float64 `json:"daily_demand"`
}

// Value returns the monetary value of the record line (quantity x unit cost).
func (r ShipmentRecord) Value() float64 {
	return r.Quantity * r.UnitCost
}

// Completed reports whether the record is in a terminal fulfilment state.
func (r ShipmentRecord) Completed() bool {
	switch r.Status {
	case "delivered", "completed", "closed":
		return true
	}
	return false
}

// Open reports whether the record still needs fulfilment work.
func (r ShipmentRecord) Open() bool {
	return !r.Completed() && r.Status != "cancelled"
}

// ParseDate parses an upstream date field. The zero time and false are
// returned for empty or malformed values; callers bucket those as unknown.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
