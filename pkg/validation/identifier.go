// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that end up
// in upstream query parameters, cache keys, and push-channel namespace sets.
// Using these validators prevents injection into upstream URLs and keeps
// cache keys printable and bounded.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// skuPattern matches valid SKU codes.
// Allows: uppercase letters, digits, dots, hyphens, underscores.
// Max length: 64 characters (covers every catalog we have seen).
var skuPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._\-]{0,63}$`)

// orderIDPattern matches order identifiers (e.g. "ORD-2025-000123").
var orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-]{0,63}$`)

// namespacePattern matches push-channel namespace keys
// (e.g. "dashboard-insights", "orders-insights").
var namespacePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{0,47}$`)

// ValidateSKU validates a SKU code before it is placed in an upstream query
// or a cache fingerprint.
//
// Valid SKUs:
//   - 1-64 characters
//   - Uppercase letters A-Z and digits 0-9
//   - Dots (.), underscores (_), hyphens (-)
//
// Returns an error if the SKU is invalid.
//
// Example:
//
//	if err := validation.ValidateSKU(sku); err != nil {
//	    return nil, fmt.Errorf("invalid sku: %w", err)
//	}
func ValidateSKU(sku string) error {
	if sku == "" {
		return fmt.Errorf("sku cannot be empty")
	}

	if !skuPattern.MatchString(sku) {
		return fmt.Errorf("invalid sku format: %q (must be 1-64 uppercase alphanumeric chars, dots, underscores, or hyphens)", sku)
	}

	return nil
}

// SanitizeSKU normalizes and validates a SKU code.
// Returns the uppercase SKU if valid, or an error if invalid.
func SanitizeSKU(sku string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(sku))
	if err := ValidateSKU(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateOrderID validates an order identifier supplied in a request body.
func ValidateOrderID(orderID string) error {
	if orderID == "" {
		return fmt.Errorf("order id cannot be empty")
	}

	if !orderIDPattern.MatchString(orderID) {
		return fmt.Errorf("invalid order id format: %q (must be 1-64 alphanumeric chars or hyphens)", orderID)
	}

	return nil
}

// SanitizeOrderID trims and validates an order identifier.
func SanitizeOrderID(orderID string) (string, error) {
	normalized := strings.TrimSpace(orderID)
	if err := ValidateOrderID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// SanitizeNamespaces parses a comma-separated namespace list from a
// subscription request: entries are trimmed, lower-cased, validated, and
// deduplicated while preserving first-seen order. Invalid entries are
// dropped rather than failing the whole subscription.
//
// Example:
//
//	namespaces := validation.SanitizeNamespaces(" orders-insights, sla-insights,orders-insights ")
//	// -> ["orders-insights", "sla-insights"]
func SanitizeNamespaces(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		ns := strings.ToLower(strings.TrimSpace(part))
		if ns == "" || seen[ns] {
			continue
		}
		if !namespacePattern.MatchString(ns) {
			continue
		}
		seen[ns] = true
		out = append(out, ns)
	}
	return out
}
