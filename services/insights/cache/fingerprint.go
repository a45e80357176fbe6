// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint derives the cache identity for one insight computation.
//
// # Description
//
//	The fingerprint binds an insight to the exact inputs it was computed
//	from: tenant, namespace, source data version, the canonical JSON of
//	the KPI subset fed to the prompt, and an optional entity key for
//	per-order / per-SKU insights. Two requests with the same fingerprint
//	are interchangeable and must coalesce onto one computation.
//
// # Inputs
//   - tenant: Brand name scoping the data.
//   - namespace: Insight namespace, e.g. "orders-insights".
//   - sourceVersion: Monotonic version of the upstream snapshot.
//   - kpis: The KPI subset that shapes the prompt. Marshalled with
//     encoding/json; struct field order makes this canonical.
//   - entityKey: Optional order ID or SKU. Empty for page-level insights.
//
// # Outputs
//   - string: Lowercase hex SHA-256 digest, 64 characters.
func Fingerprint(tenant, namespace string, sourceVersion int, kpis any, entityKey string) string {
	payload, err := json.Marshal(kpis)
	if err != nil {
		// Unmarshalable KPI payloads should never happen with our own
		// structs; degrade to a stable placeholder rather than panic.
		payload = []byte("{}")
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|", tenant, namespace, sourceVersion)
	h.Write(payload)
	if entityKey != "" {
		fmt.Fprintf(h, "|%s", entityKey)
	}
	return hex.EncodeToString(h.Sum(nil))
}
