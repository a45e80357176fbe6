// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"encoding/json"
	"strings"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
)

// stripCodeFences removes a leading/trailing markdown code fence from a
// provider payload. Providers routinely wrap JSON in ```json ... ```
// despite instructions not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop the language tag on the opening fence, e.g. "json\n{...".
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "JSON" || first == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parsePayload turns a raw provider payload into a typed insight value.
//
// The payload is expected to contain a JSON object after fence stripping.
// When it does not, the schema's degraded value is returned with the raw
// text salvaged into the analysis field (best effort), plus ok=false.
func parsePayload(raw string, schema datatypes.InsightSchema) (datatypes.InsightValue, bool) {
	cleaned := stripCodeFences(raw)

	// Salvage: some providers prepend prose before the object.
	if idx := strings.IndexByte(cleaned, '{'); idx > 0 {
		cleaned = cleaned[idx:]
	}

	var v datatypes.InsightValue
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil || v.Analysis == "" {
		degraded := schema.DegradedValue("parse failure")
		if text := strings.TrimSpace(raw); text != "" {
			degraded.Analysis = truncate(text, 2000)
		}
		return degraded, false
	}

	v.Kind = datatypes.KindInsight
	if !schema.WantRiskLevel {
		v.RiskLevel = ""
	}
	return v, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
