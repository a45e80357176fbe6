// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify bridges cache lifecycle events onto the push hub.
//
// The notifier deduplicates repeated announcements of the same READY
// record, so an admin-triggered refresh racing a background refresh does
// not double-notify browsers. Forced announcements bypass the dedupe for
// admin operations that must always reach subscribers.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/brandpulse/brandpulse/services/insights/cache"
	"github.com/brandpulse/brandpulse/services/insights/hub"
)

type announcement struct {
	producedAt    int64
	sourceVersion int
}

// Notifier forwards cache change events to the hub. Safe for concurrent
// use.
type Notifier struct {
	hub *hub.Hub

	mu   sync.Mutex
	last map[string]announcement
}

// New creates a notifier bound to the given hub.
func New(h *hub.Hub) *Notifier {
	return &Notifier{
		hub:  h,
		last: make(map[string]announcement),
	}
}

// NamespaceUpdated implements cache.Notifier. Duplicate announcements of
// one record are suppressed.
func (n *Notifier) NamespaceUpdated(namespace string, producedAt time.Time, sourceVersion int) {
	a := announcement{producedAt: producedAt.UnixMilli(), sourceVersion: sourceVersion}

	n.mu.Lock()
	if n.last[namespace] == a {
		n.mu.Unlock()
		slog.Debug("Suppressing duplicate namespace-updated", "namespace", namespace)
		return
	}
	n.last[namespace] = a
	n.mu.Unlock()

	n.hub.BroadcastUpdated(namespace, producedAt, sourceVersion)
}

// NamespaceInvalidated implements cache.Notifier.
func (n *Notifier) NamespaceInvalidated(namespace string) {
	n.mu.Lock()
	delete(n.last, namespace)
	n.mu.Unlock()

	n.hub.BroadcastInvalidated(namespace)
}

// SystemMessage implements cache.Notifier.
func (n *Notifier) SystemMessage(level, text string) {
	n.hub.BroadcastSystem(level, text)
}

// ForceUpdated re-announces a namespace unconditionally. Used by the
// admin refresh endpoint after a manual recompute.
func (n *Notifier) ForceUpdated(namespace string, producedAt time.Time, sourceVersion int) {
	n.mu.Lock()
	n.last[namespace] = announcement{producedAt: producedAt.UnixMilli(), sourceVersion: sourceVersion}
	n.mu.Unlock()

	n.hub.BroadcastUpdated(namespace, producedAt, sourceVersion)
}

// ForceInvalidated announces an invalidation unconditionally. Safe to
// repeat.
func (n *Notifier) ForceInvalidated(namespace string) {
	n.NamespaceInvalidated(namespace)
}

var _ cache.Notifier = (*Notifier)(nil)
