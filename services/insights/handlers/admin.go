// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
)

// adminNamespaceRequest is the body for the admin refresh/invalidate
// endpoints.
type adminNamespaceRequest struct {
	Namespace string `json:"namespace"`
}

// pageForNamespace resolves a namespace back to its page.
func pageForNamespace(namespace string) (datatypes.Page, bool) {
	for _, p := range datatypes.Pages {
		if p.Namespace() == namespace {
			return p, true
		}
	}
	return "", false
}

func bindAdminNamespace(c *gin.Context) (datatypes.Page, string, bool) {
	var req adminNamespaceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Namespace == "" {
		respondError(c, http.StatusBadRequest, "namespace is required")
		return "", "", false
	}
	page, ok := pageForNamespace(req.Namespace)
	if !ok {
		respondError(c, http.StatusBadRequest, "unknown namespace: "+req.Namespace)
		return "", "", false
	}
	return page, req.Namespace, true
}

// HandleAdminRefresh serves POST /api/admin/refresh.
//
// # Description
//
//	Bumps the namespace's source version (forcing a new fingerprint),
//	recomputes the page insight synchronously, and force-announces the
//	result. The recompute runs quiet so subscribers see exactly one
//	event for the operation.
func HandleAdminRefresh(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, namespace, ok := bindAdminNamespace(c)
		if !ok {
			return
		}

		version := deps.Versions.Bump(namespace)

		rec, err := computePageInsight(c.Request.Context(), deps, page, true)
		if err != nil {
			respondUpstreamError(c, err)
			return
		}

		deps.Notifier.ForceUpdated(namespace, rec.ProducedAt, rec.SourceVersion)

		respondOK(c, gin.H{
			"namespace":     namespace,
			"sourceVersion": version,
			"degraded":      rec.Value.Degraded(),
			"producedAt":    rec.ProducedAt.UnixMilli(),
		})
	}
}

// HandleAdminInvalidate serves POST /api/admin/invalidate.
//
// Marks every cached insight in the namespace evictable, bumps the
// source version, and broadcasts namespace-invalidated so connected
// dashboards re-pull. Idempotent.
func HandleAdminInvalidate(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, namespace, ok := bindAdminNamespace(c)
		if !ok {
			return
		}

		version := deps.Versions.Bump(namespace)
		affected := deps.Cache.Invalidate(namespace)

		respondOK(c, gin.H{
			"namespace":     namespace,
			"sourceVersion": version,
			"invalidated":   affected,
		})
	}
}

// HandleStreamStats serves GET /api/stream-stats: hub subscriber census
// plus cache slot counts, for the operations panel.
func HandleStreamStats(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondOK(c, gin.H{
			"hub":   deps.Hub.Stats(),
			"cache": deps.Cache.Stats(),
		})
	}
}

// HandleHealth serves GET /health.
func HandleHealth(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"service":     "insights",
			"subscribers": deps.Hub.Stats().Count,
		})
	}
}
