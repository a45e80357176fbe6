// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"testing"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
)

var testSchema = datatypes.InsightSchema{
	Namespace:     "orders-insights",
	WantRiskLevel: true,
	DegradedText:  "Analysis Unavailable. Automated analysis will retry shortly.",
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"anonymous fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"no trailing fence", "```json\n{\"a\":1}", `{"a":1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripCodeFences(tc.in); got != tc.want {
				t.Errorf("stripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParsePayload(t *testing.T) {
	t.Run("well-formed payload", func(t *testing.T) {
		raw := "```json\n" + `{"analysis":"Orders look healthy.","recommendations":["Expedite ORD-7"],"risk_level":"low","confidence":"high"}` + "\n```"
		v, ok := parsePayload(raw, testSchema)
		if !ok {
			t.Fatal("expected ok=true")
		}
		if v.Kind != datatypes.KindInsight {
			t.Errorf("Kind = %q, want insight", v.Kind)
		}
		if v.Analysis != "Orders look healthy." {
			t.Errorf("Analysis = %q", v.Analysis)
		}
		if len(v.Recommendations) != 1 || v.RiskLevel != "low" {
			t.Errorf("unexpected value: %+v", v)
		}
	})

	t.Run("prose before the object is salvaged", func(t *testing.T) {
		raw := `Here is my analysis: {"analysis":"Tight but fine.","recommendations":[]}`
		v, ok := parsePayload(raw, testSchema)
		if !ok {
			t.Fatal("expected ok=true")
		}
		if v.Analysis != "Tight but fine." {
			t.Errorf("Analysis = %q", v.Analysis)
		}
	})

	t.Run("non-JSON payload degrades with best-effort text", func(t *testing.T) {
		v, ok := parsePayload("the model rambled instead of answering", testSchema)
		if ok {
			t.Fatal("expected ok=false")
		}
		if v.Kind != datatypes.KindDegraded {
			t.Errorf("Kind = %q, want degraded", v.Kind)
		}
		if v.Analysis != "the model rambled instead of answering" {
			t.Errorf("Analysis should salvage raw text, got %q", v.Analysis)
		}
		if len(v.Recommendations) == 0 {
			t.Error("degraded value must keep a shaped recommendations list")
		}
	})

	t.Run("empty payload degrades with schema text", func(t *testing.T) {
		v, ok := parsePayload("", testSchema)
		if ok {
			t.Fatal("expected ok=false")
		}
		if v.Analysis != testSchema.DegradedText {
			t.Errorf("Analysis = %q, want schema degraded text", v.Analysis)
		}
	})

	t.Run("risk level dropped when schema does not want it", func(t *testing.T) {
		schema := datatypes.InsightSchema{Namespace: "x", DegradedText: "n/a"}
		v, ok := parsePayload(`{"analysis":"ok","risk_level":"high"}`, schema)
		if !ok {
			t.Fatal("expected ok=true")
		}
		if v.RiskLevel != "" {
			t.Errorf("RiskLevel = %q, want empty", v.RiskLevel)
		}
	})
}

func TestDegradedValueShape(t *testing.T) {
	v := testSchema.DegradedValue("timeout")
	if !v.Degraded() {
		t.Error("DegradedValue must report Degraded()")
	}
	if v.Analysis == "" || len(v.Recommendations) == 0 {
		t.Errorf("degraded value must be fully shaped: %+v", v)
	}
	if v.RiskLevel != "unknown" {
		t.Errorf("RiskLevel = %q, want unknown", v.RiskLevel)
	}
}
