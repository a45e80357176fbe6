// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package upstream pulls raw shipment records from the external analytics
// endpoint and normalizes them for derivation.
//
// The fetcher is deliberately paranoid about tenancy: even though the
// endpoint filters by brand_name, every response is re-filtered locally so
// an upstream mis-scoping can never leak another tenant's records into
// KPIs, fingerprints, or prompts.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
)

// Sentinel errors. Handlers map both to a 500 envelope with distinct
// error strings. Both are wrapped with the concrete reason, so callers
// must match with errors.Is.
var (
	ErrConfigMissing = errors.New("upstream configuration missing")
	ErrUnavailable   = errors.New("upstream unavailable")
)

// DefaultLimit bounds a fetch when the caller does not set one.
const DefaultLimit = 250

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Scope narrows one fetch: tenant is mandatory, EntityKey optionally pins
// the fetch to a single SKU (per-entity history endpoint).
type Scope struct {
	Tenant    string
	Limit     int
	EntityKey string
}

// Client fetches from one analytics endpoint. The service constructs one
// instance for the warehouse endpoint and one for the order-history
// endpoint; both speak the same wire protocol.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPClient
}

// envelope is the upstream response wrapper.
type envelope struct {
	Data []datatypes.ShipmentRecord `json:"data"`
}

// NewClient builds a fetcher for the warehouse analytics endpoint.
// baseURL or token may be empty; the error surfaces on first fetch so the
// service can still boot for pages that do not need this endpoint.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientWithHTTP builds a fetcher with an injected HTTP client (tests).
func NewClientWithHTTP(baseURL, token string, hc HTTPClient) *Client {
	return &Client{baseURL: baseURL, token: token, httpClient: hc}
}

// FetchRecords pulls raw records for the scope.
//
// Returns ErrConfigMissing when the endpoint is not configured and
// ErrUnavailable (wrapped with the reason) on transport failures or
// non-2xx responses. On success the result is already tenant-filtered.
func (c *Client) FetchRecords(ctx context.Context, scope Scope) ([]datatypes.ShipmentRecord, error) {
	if c.baseURL == "" || c.token == "" {
		return nil, fmt.Errorf("%w: base URL or token not set", ErrConfigMissing)
	}
	if scope.Tenant == "" {
		return nil, fmt.Errorf("%w: tenant not set", ErrConfigMissing)
	}

	limit := scope.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := url.Values{}
	q.Set("token", c.token)
	q.Set("brand_name", scope.Tenant)
	q.Set("limit", strconv.Itoa(limit))
	if scope.EntityKey != "" {
		q.Set("sku", scope.EntityKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %s", ErrUnavailable, resp.Status)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	records := filterTenant(env.Data, scope.Tenant)
	if dropped := len(env.Data) - len(records); dropped > 0 {
		slog.Warn("Dropped upstream records outside tenant scope",
			"tenant", scope.Tenant, "dropped", dropped)
	}

	slog.Debug("Fetched upstream records",
		"tenant", scope.Tenant, "count", len(records), "entity", scope.EntityKey)
	return records, nil
}

// filterTenant keeps records whose brand matches the tenant. Records with
// an empty brand_name are kept: several upstream views omit the column
// because the query already scoped it.
func filterTenant(records []datatypes.ShipmentRecord, tenant string) []datatypes.ShipmentRecord {
	out := make([]datatypes.ShipmentRecord, 0, len(records))
	for _, r := range records {
		if r.BrandName == "" || r.BrandName == tenant {
			out = append(out, r)
		}
	}
	return out
}
