// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brandpulse/brandpulse/services/insights/cache"
	"github.com/brandpulse/brandpulse/services/insights/datatypes"
	"github.com/brandpulse/brandpulse/services/insights/handlers"
	"github.com/brandpulse/brandpulse/services/insights/hub"
	"github.com/brandpulse/brandpulse/services/insights/middleware"
	"github.com/brandpulse/brandpulse/services/insights/notify"
	"github.com/brandpulse/brandpulse/services/insights/upstream"
	"github.com/brandpulse/brandpulse/services/llm"
)

type stubFetcher struct{}

func (stubFetcher) FetchRecords(ctx context.Context, scope upstream.Scope) ([]datatypes.ShipmentRecord, error) {
	return []datatypes.ShipmentRecord{
		{OrderID: "ORD-1", SKU: "SKU-1", BrandName: "acme", Status: "pending"},
	}, nil
}

type stubLLM struct{}

func (stubLLM) Ask(ctx context.Context, prompt string, schema datatypes.InsightSchema,
	budget llm.Budget) (datatypes.InsightValue, *llm.AskError) {
	return datatypes.InsightValue{
		Kind:            datatypes.KindInsight,
		Analysis:        "ok",
		Recommendations: []string{},
	}, nil
}

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.New(hub.Config{HeartbeatInterval: time.Hour})
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })
	notifier := notify.New(h)

	deps := &handlers.Deps{
		Warehouse: stubFetcher{},
		LLM:       stubLLM{},
		Cache:     cache.New(cache.Config{Notifier: notifier}),
		Hub:       h,
		Notifier:  notifier,
		BrandName: "acme",
		Versions:  handlers.NewVersions(),
	}

	router := gin.New()
	router.Use(middleware.CORS())
	SetupRoutes(router, deps)
	return router
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouteRegistration(t *testing.T) {
	router := testRouter(t)

	t.Run("health and metrics", func(t *testing.T) {
		if w := get(router, "/health"); w.Code != http.StatusOK {
			t.Errorf("GET /health = %d", w.Code)
		}
		if w := get(router, "/metrics"); w.Code != http.StatusOK {
			t.Errorf("GET /metrics = %d", w.Code)
		}
	})

	t.Run("every page has a FAST and a SLOW route", func(t *testing.T) {
		for _, page := range datatypes.Pages {
			if w := get(router, "/api/"+string(page)+"-data-fast"); w.Code != http.StatusOK {
				t.Errorf("GET /api/%s-data-fast = %d", page, w.Code)
			}
			if w := get(router, "/api/"+string(page)+"-insights"); w.Code != http.StatusOK {
				t.Errorf("GET /api/%s-insights = %d", page, w.Code)
			}
		}
	})

	t.Run("stream stats", func(t *testing.T) {
		if w := get(router, "/api/stream-stats"); w.Code != http.StatusOK {
			t.Errorf("GET /api/stream-stats = %d", w.Code)
		}
	})

	t.Run("unknown path is 404", func(t *testing.T) {
		if w := get(router, "/api/nope"); w.Code != http.StatusNotFound {
			t.Errorf("GET /api/nope = %d, want 404", w.Code)
		}
	})
}

func TestMethodNotAllowedHint(t *testing.T) {
	router := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/orders-data-fast", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PUT /api/orders-data-fast = %d, want 405", w.Code)
	}
	if body := w.Body.String(); body == "" {
		t.Error("405 response should carry a hint body")
	}
}

func TestPreflightAcrossRoutes(t *testing.T) {
	router := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/order-suggestion", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("preflight = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}
