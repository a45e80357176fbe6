// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package hub implements the push event hub: fan-out of cache change
// events to subscribed SSE and WebSocket connections.
//
// # Description
//
// Subscribers register with a namespace filter and receive a bounded
// queue of events. The hub assigns a globally monotonic sequence number
// to every event it accepts, so per-subscriber delivery order matches
// sequence order. A periodic heartbeat keeps intermediaries from timing
// out idle connections.
//
// Backpressure is per-subscriber: when a queue is full the oldest
// droppable queued event is evicted to make room and the subscriber is
// told once per burst via a `system-message(warning, "events dropped")`
// so it can re-pull. The connected event and that warning are never
// displaced. A slow browser never blocks the broadcast path.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Queue sends happen under the
// hub lock, so Unsubscribe can close the channel without racing a send.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
	"github.com/brandpulse/brandpulse/services/insights/observability"
)

// ====== Subscriber ======

// Subscriber is one connected event consumer.
type Subscriber struct {
	// ID is the hub-assigned subscriber id, echoed in the connected event.
	ID string

	// Queue delivers events in sequence order. Closed by Unsubscribe.
	Queue chan datatypes.Event

	// Namespaces is the subscription filter. Empty means all namespaces.
	Namespaces []string

	// Transport is "sse" or "websocket", for stats and metrics.
	Transport string

	ConnectedAt time.Time

	namespaceSet map[string]bool
	dropped      atomic.Int64
	closed       bool

	// Guarded by the hub mutex.
	lastHeartbeatAt time.Time
	overflowWarned  bool
}

func (s *Subscriber) wants(namespace string) bool {
	if len(s.namespaceSet) == 0 {
		return true
	}
	return s.namespaceSet[namespace]
}

// Dropped reports how many events this subscriber lost to backpressure.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// ====== Hub ======

// Config configures the hub.
type Config struct {
	// HeartbeatInterval between heartbeat events. Zero defaults to 30s.
	HeartbeatInterval time.Duration

	// QueueMax bounds each subscriber queue. Zero defaults to 64.
	QueueMax int

	Metrics *observability.Metrics
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.QueueMax <= 0 {
		c.QueueMax = 64
	}
}

// SubscriberInfo is the stats-endpoint view of one subscriber.
type SubscriberInfo struct {
	ID              string   `json:"id"`
	Transport       string   `json:"transport"`
	Namespaces      []string `json:"namespaces"`
	ConnectedAt     int64    `json:"connectedAt"`
	LastHeartbeatAt int64    `json:"lastHeartbeatAt"`
	QueueLen        int      `json:"queueLen"`
	Dropped         int64    `json:"dropped"`
}

// HubStats is the stats-endpoint view of the hub.
type HubStats struct {
	Subscribers  []SubscriberInfo `json:"subscribers"`
	Count        int              `json:"count"`
	EventsSent   uint64           `json:"eventsSent"`
	LastSequence uint64           `json:"lastSequence"`
}

// Hub fans events out to subscribers. Create with New, then Start.
type Hub struct {
	cfg Config

	mu           sync.Mutex
	subscribers  map[string]*Subscriber
	shuttingDown bool

	seq  atomic.Uint64
	sent atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a hub. Call Start to begin heartbeats.
func New(cfg Config) *Hub {
	cfg.applyDefaults()
	return &Hub{
		cfg:         cfg,
		subscribers: make(map[string]*Subscriber),
		done:        make(chan struct{}),
	}
}

// Start launches the heartbeat loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.heartbeatLoop()
}

// Subscribe registers a consumer for the given namespaces and enqueues
// the connected event before returning, so it is always delivered first.
func (h *Hub) Subscribe(namespaces []string, transport string) *Subscriber {
	set := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		set[ns] = true
	}

	now := time.Now()
	sub := &Subscriber{
		ID:              uuid.NewString(),
		Queue:           make(chan datatypes.Event, h.cfg.QueueMax),
		Namespaces:      namespaces,
		Transport:       transport,
		ConnectedAt:     now,
		namespaceSet:    set,
		lastHeartbeatAt: now,
	}

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	h.enqueueLocked(sub, datatypes.Event{
		Type:         datatypes.EventConnected,
		SubscriberID: sub.ID,
		Namespaces:   namespaces,
	})
	count := len(h.subscribers)
	h.mu.Unlock()

	h.cfg.Metrics.SubscriberConnected(transport)
	slog.Info("Subscriber connected",
		"subscriber_id", sub.ID, "transport", transport,
		"namespaces", namespaces, "total", count)
	return sub
}

// Unsubscribe removes a subscriber and closes its queue. Idempotent.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
		sub.closed = true
		close(sub.Queue)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if !ok {
		return
	}
	h.cfg.Metrics.SubscriberDisconnected(sub.Transport)
	slog.Info("Subscriber disconnected",
		"subscriber_id", id, "dropped", sub.Dropped(), "total", count)
}

// BroadcastUpdated announces a fresh READY insight for a namespace.
func (h *Hub) BroadcastUpdated(namespace string, producedAt time.Time, sourceVersion int) {
	h.broadcast(datatypes.Event{
		Type:      datatypes.EventNamespaceUpdated,
		Namespace: namespace,
		Payload: &datatypes.UpdatePayload{
			ProducedAt:    producedAt.UnixMilli(),
			SourceVersion: sourceVersion,
		},
	}, namespace)
}

// BroadcastInvalidated announces a forced invalidation for a namespace.
func (h *Hub) BroadcastInvalidated(namespace string) {
	h.broadcast(datatypes.Event{
		Type:      datatypes.EventNamespaceInvalidated,
		Namespace: namespace,
	}, namespace)
}

// BroadcastSystem delivers a system message to every subscriber
// regardless of namespace filter.
func (h *Hub) BroadcastSystem(level, text string) {
	h.broadcast(datatypes.Event{
		Type:  datatypes.EventSystemMessage,
		Level: level,
		Text:  text,
	}, "")
}

// Stats returns a snapshot for the stream-stats endpoint.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := HubStats{
		Subscribers:  make([]SubscriberInfo, 0, len(h.subscribers)),
		Count:        len(h.subscribers),
		EventsSent:   h.sent.Load(),
		LastSequence: h.seq.Load(),
	}
	for _, sub := range h.subscribers {
		st.Subscribers = append(st.Subscribers, SubscriberInfo{
			ID:              sub.ID,
			Transport:       sub.Transport,
			Namespaces:      sub.Namespaces,
			ConnectedAt:     sub.ConnectedAt.UnixMilli(),
			LastHeartbeatAt: sub.lastHeartbeatAt.UnixMilli(),
			QueueLen:        len(sub.Queue),
			Dropped:         sub.Dropped(),
		})
	}
	return st
}

// Shutdown announces the shutdown to all subscribers, stops heartbeats
// and closes every queue. Blocks until the heartbeat loop exits or the
// context expires.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.shuttingDown {
		h.mu.Unlock()
		return nil
	}
	h.shuttingDown = true
	h.mu.Unlock()

	h.BroadcastSystem("info", "shutting down")
	close(h.done)

	h.mu.Lock()
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		sub.closed = true
		close(sub.Queue)
		h.cfg.Metrics.SubscriberDisconnected(sub.Transport)
	}
	h.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ====== Internals ======

// broadcast stamps the event and fans it out. An empty namespace means
// every subscriber receives it.
func (h *Hub) broadcast(ev datatypes.Event, namespace string) {
	h.mu.Lock()
	if h.shuttingDown && ev.Type != datatypes.EventSystemMessage {
		h.mu.Unlock()
		return
	}
	for _, sub := range h.subscribers {
		if namespace != "" && !sub.wants(namespace) {
			continue
		}
		h.enqueueLocked(sub, ev)
	}
	h.mu.Unlock()
}

// droppedWarningText is the system-message body that tells a subscriber
// its queue overflowed and events were lost.
const droppedWarningText = "events dropped"

// protectedEvent reports whether a queued event survives overflow
// eviction: the connected event (the client's identity) and the overflow
// warning itself are never displaced by newer events.
func protectedEvent(ev datatypes.Event) bool {
	if ev.Type == datatypes.EventConnected {
		return true
	}
	return ev.Type == datatypes.EventSystemMessage && ev.Text == droppedWarningText
}

// enqueueLocked delivers one event to a subscriber, handling overflow.
// On the first overflow of a burst, one queued event is evicted and a
// `system-message(warning, "events dropped")` is queued in its place so
// the client learns its stream is lossy and can re-pull; further
// overflows in the same burst evict silently. Caller holds h.mu.
func (h *Hub) enqueueLocked(sub *Subscriber, ev datatypes.Event) {
	if sub.closed {
		return
	}

	if len(sub.Queue) < cap(sub.Queue) {
		sub.overflowWarned = false
		h.pushLocked(sub, ev)
		return
	}

	if !sub.overflowWarned {
		sub.overflowWarned = true
		h.evictOneLocked(sub)
		h.pushLocked(sub, datatypes.Event{
			Type:  datatypes.EventSystemMessage,
			Level: "warning",
			Text:  droppedWarningText,
		})
	}
	if len(sub.Queue) == cap(sub.Queue) {
		h.evictOneLocked(sub)
	}
	h.pushLocked(sub, ev)
}

// pushLocked stamps sequence and timestamp and offers the event to the
// queue. With every unprotected slot already evicted the send can still
// fail; the incoming event is then the drop. Caller holds h.mu.
func (h *Hub) pushLocked(sub *Subscriber, ev datatypes.Event) {
	ev.Seq = h.seq.Add(1)
	ev.Timestamp = time.Now().UnixMilli()
	if ev.Type == datatypes.EventHeartbeat {
		sub.lastHeartbeatAt = time.Now()
	}

	select {
	case sub.Queue <- ev:
		h.sent.Add(1)
		h.cfg.Metrics.RecordEventDelivered(string(ev.Type))
	default:
		sub.dropped.Add(1)
		h.cfg.Metrics.RecordEventDropped()
	}
}

// evictOneLocked removes one queued event to admit another. Stale
// heartbeats go first and are not counted as drops; otherwise the
// oldest unprotected event is dropped and counted. When only protected
// events remain, nothing is evicted. Caller holds h.mu.
func (h *Hub) evictOneLocked(sub *Subscriber) {
	n := len(sub.Queue)
	buf := make([]datatypes.Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case qev := <-sub.Queue:
			buf = append(buf, qev)
		default:
		}
	}

	victim := -1
	for i, qev := range buf {
		if qev.Type == datatypes.EventHeartbeat {
			victim = i
			break
		}
	}
	if victim < 0 {
		for i, qev := range buf {
			if !protectedEvent(qev) {
				victim = i
				break
			}
		}
	}

	if victim >= 0 && buf[victim].Type != datatypes.EventHeartbeat {
		sub.dropped.Add(1)
		h.cfg.Metrics.RecordEventDropped()
		slog.Warn("Subscriber queue full, dropping oldest event",
			"subscriber_id", sub.ID, "dropped_type", buf[victim].Type,
			"total_dropped", sub.Dropped())
	}

	for i, qev := range buf {
		if i == victim {
			continue
		}
		select {
		case sub.Queue <- qev:
		default:
		}
	}
}

func (h *Hub) heartbeatLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.broadcast(datatypes.Event{Type: datatypes.EventHeartbeat}, "")
		case <-h.done:
			return
		}
	}
}
