// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Same open policy as the CORS layer: the dashboard is served
		// from arbitrary origins in self-hosted deployments.
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

const wsWriteTimeout = 10 * time.Second

// HandleInsightsWS serves GET /api/insights-ws: the same event feed as
// the SSE endpoint over a WebSocket, for clients behind proxies that
// buffer event streams.
func HandleInsightsWS(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("WebSocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		sub := deps.Hub.Subscribe(subscriptionNamespaces(c), "websocket")
		defer deps.Hub.Unsubscribe(sub.ID)

		// Reader goroutine: we never expect client frames, but reading
		// is what surfaces the close handshake.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ctx := c.Request.Context()
		for {
			select {
			case ev, ok := <-sub.Queue:
				if !ok {
					return
				}
				_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := ws.WriteJSON(ev); err != nil {
					slog.Debug("WebSocket write failed, dropping subscriber",
						"subscriber_id", sub.ID, "error", err)
					return
				}
			case <-closed:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
