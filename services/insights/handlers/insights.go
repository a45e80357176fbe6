// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/brandpulse/brandpulse/services/insights/cache"
	"github.com/brandpulse/brandpulse/services/insights/datatypes"
	"github.com/brandpulse/brandpulse/services/insights/upstream"
	"github.com/brandpulse/brandpulse/services/llm"
)

// fingerprintPayload is the canonical KPI subset hashed into a page
// fingerprint. Including the intelligence block ties the fingerprint to
// the derivation rule set, so a rule bump invalidates naturally.
type fingerprintPayload struct {
	KPIs         any                    `json:"kpis"`
	Intelligence datatypes.Intelligence `json:"intelligence"`
}

// computePageInsight runs the full SLOW pipeline for one page: fetch,
// derive, fingerprint, and cached LLM computation. Shared by the SLOW
// handler and the admin refresh endpoint.
func computePageInsight(ctx context.Context, deps *Deps, page datatypes.Page, quiet bool) (cache.Record, error) {
	records, err := deps.Warehouse.FetchRecords(ctx, upstream.Scope{Tenant: deps.BrandName})
	if err != nil {
		return cache.Record{}, err
	}

	now := deps.now()
	kpis, intelligence := derivePage(page, records, now)

	namespace := page.Namespace()
	version := deps.Versions.Get(namespace)
	fingerprint := cache.Fingerprint(deps.BrandName, namespace, version,
		fingerprintPayload{KPIs: kpis, Intelligence: intelligence}, "")

	schema := schemaFor(namespace)
	prompt := buildPagePrompt(deps.BrandName, page, kpis, intelligence)

	rec := deps.Cache.GetOrCompute(ctx, cache.ComputeRequest{
		Namespace:     namespace,
		Fingerprint:   fingerprint,
		SourceVersion: version,
		Quiet:         quiet,
		Producer:      insightProducer(deps.LLM, prompt, schema, deps.LLMBudget),
	})
	return rec, nil
}

// insightProducer adapts the LLM client to the cache's producer contract:
// total, returning the shaped value plus an error kind on failure.
func insightProducer(client llm.Client, prompt string, schema datatypes.InsightSchema,
	budget llm.Budget) cache.Producer {

	return func(ctx context.Context) (datatypes.InsightValue, string) {
		value, askErr := client.Ask(ctx, prompt, schema, budget)
		if askErr != nil {
			return value, string(askErr.Kind)
		}
		return value, ""
	}
}

// HandleSlowPage serves the SLOW half of a page's endpoint pair.
//
// # Description
//
//	Recomputes the page's KPI fingerprint and returns the cached insight
//	for it, producing one via the LLM when absent. Provider failures
//	yield a degraded value inside a success envelope; this endpoint
//	returns 5xx only when the upstream data fetch itself fails.
func HandleSlowPage(deps *Deps, page datatypes.Page) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := computePageInsight(c.Request.Context(), deps, page, false)
		if err != nil {
			respondUpstreamError(c, err)
			return
		}

		respondOK(c, gin.H{
			"namespace":   page.Namespace(),
			"insights":    []datatypes.InsightValue{rec.Value},
			"degraded":    rec.Value.Degraded(),
			"stale":       rec.Stale,
			"lastUpdated": rec.ProducedAt.UnixMilli(),
		})
	}
}
