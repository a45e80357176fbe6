// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the insights service.
//
// This file contains the push event variants delivered to subscribed
// browsers. Every event carries the hub's monotonic sequence number and a
// wall-clock timestamp; per-subscriber delivery order equals sequence order.
package datatypes

// EventType tags a push event variant.
type EventType string

const (
	// EventConnected is the first event on every subscription; it carries
	// the assigned subscriber id and the echoed namespace set.
	EventConnected EventType = "connected"

	// EventHeartbeat is the periodic liveness signal.
	EventHeartbeat EventType = "heartbeat"

	// EventNamespaceUpdated signals a fresh READY insight for a namespace.
	EventNamespaceUpdated EventType = "namespace-updated"

	// EventNamespaceInvalidated signals that cached insights for a
	// namespace were marked evictable; clients should re-pull.
	EventNamespaceInvalidated EventType = "namespace-invalidated"

	// EventSystemMessage carries operational notices (degraded mode,
	// dropped events, shutdown).
	EventSystemMessage EventType = "system-message"

	// EventError carries a terminal subscription error.
	EventError EventType = "error"
)

// UpdatePayload rides on namespace-updated events.
type UpdatePayload struct {
	ProducedAt    int64 `json:"producedAt"`
	SourceVersion int   `json:"sourceVersion"`
}

// Event is the wire shape of one push event. Fields are populated per
// variant; unused fields are omitted from the JSON.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`

	// connected
	SubscriberID string   `json:"subscriberId,omitempty"`
	Namespaces   []string `json:"namespaces,omitempty"`

	// namespace-updated / namespace-invalidated
	Namespace string         `json:"namespace,omitempty"`
	Payload   *UpdatePayload `json:"payload,omitempty"`

	// system-message
	Level string `json:"level,omitempty"`
	Text  string `json:"text,omitempty"`

	// error
	Kind string `json:"kind,omitempty"`
}
