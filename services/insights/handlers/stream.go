// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brandpulse/brandpulse/pkg/validation"
	"github.com/brandpulse/brandpulse/services/insights/datatypes"
)

// writeSSE frames one event as `data: <json>` followed by a blank line
// and flushes it. Browsers parse this with a plain EventSource onmessage
// handler; no named event types on the wire.
func writeSSE(w gin.ResponseWriter, ev datatypes.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event seq %d: %w", ev.Seq, err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// subscriptionNamespaces resolves the subscriber's namespace filter from
// the ?namespaces=a,b,c query parameter. Invalid entries are dropped; an
// empty result subscribes to every page namespace.
func subscriptionNamespaces(c *gin.Context) []string {
	namespaces := validation.SanitizeNamespaces(c.Query("namespaces"))
	if namespaces == nil {
		return datatypes.DefaultNamespaces()
	}
	return namespaces
}

// HandleInsightsStream serves GET /api/insights-stream.
//
// # Description
//
//	Subscribes the connection to the event hub and streams events as
//	Server-Sent Events until the client disconnects or the hub shuts
//	down. The connected event is always delivered first; heartbeats
//	keep proxies from reaping the connection.
//
// # Limitations
//
//   - Requires an http.Flusher-capable ResponseWriter; plain JSON 500
//     is returned otherwise.
func HandleInsightsStream(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Writer.(http.Flusher); !ok {
			respondError(c, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Writer.WriteHeader(http.StatusOK)
		c.Writer.Flush()

		sub := deps.Hub.Subscribe(subscriptionNamespaces(c), "sse")
		defer deps.Hub.Unsubscribe(sub.ID)

		ctx := c.Request.Context()
		for {
			select {
			case ev, ok := <-sub.Queue:
				if !ok {
					// Hub shut down; the shutdown notice was already queued.
					return
				}
				if err := writeSSE(c.Writer, ev); err != nil {
					slog.Debug("SSE write failed, dropping subscriber",
						"subscriber_id", sub.ID, "error", err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
