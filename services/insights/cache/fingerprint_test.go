// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"testing"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
)

func TestFingerprint(t *testing.T) {
	kpis := datatypes.OrdersKPIs{OrdersToday: 3, OpenOrders: 12}

	t.Run("deterministic", func(t *testing.T) {
		a := Fingerprint("acme", "orders-insights", 7, kpis, "")
		b := Fingerprint("acme", "orders-insights", 7, kpis, "")
		if a != b {
			t.Errorf("same inputs produced different fingerprints: %s vs %s", a, b)
		}
		if len(a) != 64 {
			t.Errorf("fingerprint length = %d, want 64", len(a))
		}
	})

	t.Run("sensitive to every input", func(t *testing.T) {
		base := Fingerprint("acme", "orders-insights", 7, kpis, "")
		variants := []string{
			Fingerprint("other", "orders-insights", 7, kpis, ""),
			Fingerprint("acme", "sla-insights", 7, kpis, ""),
			Fingerprint("acme", "orders-insights", 8, kpis, ""),
			Fingerprint("acme", "orders-insights", 7, datatypes.OrdersKPIs{OrdersToday: 4}, ""),
			Fingerprint("acme", "orders-insights", 7, kpis, "ORD-1001"),
		}
		for i, v := range variants {
			if v == base {
				t.Errorf("variant %d collided with base fingerprint", i)
			}
		}
	})

	t.Run("distinct entity keys diverge", func(t *testing.T) {
		a := Fingerprint("acme", "orders-insights", 7, kpis, "ORD-1001")
		b := Fingerprint("acme", "orders-insights", 7, kpis, "ORD-1002")
		if a == b {
			t.Error("different entity keys must produce different fingerprints")
		}
	})
}
