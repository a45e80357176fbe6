// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache implements the insight cache: a bounded, namespace-scoped
// store of LLM-produced insight values with single-flight coalescing and
// stale-while-revalidate semantics.
//
// # Description
//
// Each slot is keyed by (namespace, fingerprint) and moves through three
// states:
//
//	PENDING → one producer is computing; concurrent callers coalesce.
//	READY   → a usable value exists. Fresh within TTLFresh, servable
//	          stale within TTLFresh+TTLGrace with a background refresh.
//	FAILED  → the producer degraded; the shaped fallback is served for
//	          TTLFail before another attempt is allowed.
//
// Namespace-updated notifications fire only after the READY record is
// visible to readers, so a subscriber reacting to the event always sees
// the new value.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
	"github.com/brandpulse/brandpulse/services/insights/observability"
)

// ====== States ======

// State is the lifecycle state of a cache slot.
type State string

const (
	StatePending State = "PENDING"
	StateReady   State = "READY"
	StateFailed  State = "FAILED"
)

// ====== Public Types ======

// Producer computes one insight value. It must be total: on failure it
// returns the shaped degraded value plus a non-empty error kind, never a
// panic or an unusable zero value.
type Producer func(ctx context.Context) (datatypes.InsightValue, string)

// Notifier receives cache lifecycle events. Implemented by the change
// notifier; nil disables notifications.
type Notifier interface {
	// NamespaceUpdated announces a new READY record. Called strictly
	// after the record is visible to Get.
	NamespaceUpdated(namespace string, producedAt time.Time, sourceVersion int)

	// NamespaceInvalidated announces a forced invalidation.
	NamespaceInvalidated(namespace string)

	// SystemMessage announces service-level conditions such as degraded
	// insight generation.
	SystemMessage(level, text string)
}

// Record is an immutable snapshot of a cache slot handed to callers.
type Record struct {
	Namespace     string
	Fingerprint   string
	State         State
	Value         datatypes.InsightValue
	ErrKind       string
	ProducedAt    time.Time
	SourceVersion int

	// Stale is set when the value was served inside the grace window
	// while a background refresh runs.
	Stale bool
}

// ComputeRequest describes one GetOrCompute call.
type ComputeRequest struct {
	Namespace     string
	Fingerprint   string
	SourceVersion int

	// Quiet suppresses notifier events. Used for per-entity slots that
	// must not trigger page-level refetch storms.
	Quiet bool

	Producer Producer
}

func (r ComputeRequest) key() string {
	return r.Namespace + "\x00" + r.Fingerprint
}

// Config configures the cache.
type Config struct {
	// TTLFresh is how long a READY record is served without refresh.
	TTLFresh time.Duration

	// TTLGrace extends TTLFresh: within the grace window the stale
	// record is still served while one background refresh runs.
	TTLGrace time.Duration

	// TTLFail is the cooldown after a producer failure during which the
	// shaped fallback is served without re-invoking the producer.
	TTLFail time.Duration

	// MaxEntries bounds the slot count. PENDING slots are never evicted,
	// so the bound can be transiently exceeded.
	MaxEntries int

	Notifier Notifier
	Metrics  *observability.Metrics

	// Now is a clock override for tests. Nil uses time.Now.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.TTLFresh <= 0 {
		c.TTLFresh = 5 * time.Minute
	}
	if c.TTLGrace <= 0 {
		c.TTLGrace = 15 * time.Minute
	}
	if c.TTLFail <= 0 {
		c.TTLFail = 60 * time.Second
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 512
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Stats is a point-in-time slot census for the stats endpoint.
type Stats struct {
	Entries int `json:"entries"`
	Ready   int `json:"ready"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// ====== Cache ======

type slot struct {
	namespace     string
	fingerprint   string
	state         State
	value         datatypes.InsightValue
	errKind       string
	producedAt    time.Time
	storedAt      time.Time
	failedAt      time.Time
	sourceVersion int
	quiet         bool
	invalidated   bool
	refreshing    bool
}

func (s *slot) record(stale bool) Record {
	return Record{
		Namespace:     s.namespace,
		Fingerprint:   s.fingerprint,
		State:         s.state,
		Value:         s.value,
		ErrKind:       s.errKind,
		ProducedAt:    s.producedAt,
		SourceVersion: s.sourceVersion,
		Stale:         stale,
	}
}

// Cache is the insight cache. Create with New.
type Cache struct {
	cfg   Config
	group singleflight.Group

	mu    sync.Mutex
	slots map[string]*list.Element
	order *list.List // Front = most recent, Back = least recent
}

// New creates an insight cache with the given configuration.
func New(cfg Config) *Cache {
	cfg.applyDefaults()
	return &Cache{
		cfg:   cfg,
		slots: make(map[string]*list.Element, cfg.MaxEntries),
		order: list.New(),
	}
}

// GetOrCompute returns the cached record for the request, computing it
// via the producer when absent or expired.
//
// # Description
//
//	Concurrent callers with the same (namespace, fingerprint) coalesce
//	onto a single producer invocation. Within the grace window a stale
//	READY record is returned immediately and one detached background
//	refresh is started. A FAILED record inside its cooldown is served
//	as-is so a flapping provider is not hammered.
//
// # Outputs
//   - Record: Always usable. A failed computation yields the producer's
//     shaped degraded value, never an error.
func (c *Cache) GetOrCompute(ctx context.Context, req ComputeRequest) Record {
	now := c.cfg.Now()
	outcome := "miss"

	c.mu.Lock()
	if elem, ok := c.slots[req.key()]; ok {
		s := elem.Value.(*slot)
		if !s.invalidated {
			switch s.state {
			case StateReady:
				age := now.Sub(s.producedAt)
				if age <= c.cfg.TTLFresh {
					c.order.MoveToFront(elem)
					rec := s.record(false)
					c.mu.Unlock()
					c.cfg.Metrics.RecordCacheLookup(req.Namespace, "hit")
					return rec
				}
				if age <= c.cfg.TTLFresh+c.cfg.TTLGrace {
					c.order.MoveToFront(elem)
					needRefresh := !s.refreshing &&
						(s.failedAt.IsZero() || now.Sub(s.failedAt) > c.cfg.TTLFail)
					if needRefresh {
						s.refreshing = true
					}
					rec := s.record(true)
					c.mu.Unlock()
					c.cfg.Metrics.RecordCacheLookup(req.Namespace, "stale")
					if needRefresh {
						go c.compute(context.WithoutCancel(ctx), req)
					}
					return rec
				}
				// Beyond grace: drop and recompute inline.
			case StateFailed:
				if now.Sub(s.failedAt) <= c.cfg.TTLFail {
					c.order.MoveToFront(elem)
					rec := s.record(false)
					c.mu.Unlock()
					c.cfg.Metrics.RecordCacheLookup(req.Namespace, "failed_serve")
					return rec
				}
				// Cooldown over: drop and recompute inline.
			case StatePending:
				outcome = "coalesced"
			}
		}
		if s.state != StatePending {
			c.removeLocked(elem)
		}
	}
	c.mu.Unlock()

	c.cfg.Metrics.RecordCacheLookup(req.Namespace, outcome)
	return c.compute(ctx, req)
}

// Get returns the record for (namespace, fingerprint) without computing.
// Expired, invalidated and unknown slots report ok=false. PENDING slots
// are returned so callers can distinguish "in flight" from "absent".
func (c *Cache) Get(namespace, fingerprint string) (Record, bool) {
	now := c.cfg.Now()
	key := namespace + "\x00" + fingerprint

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.slots[key]
	if !ok {
		return Record{}, false
	}
	s := elem.Value.(*slot)
	if s.invalidated {
		return Record{}, false
	}

	switch s.state {
	case StateReady:
		age := now.Sub(s.producedAt)
		if age > c.cfg.TTLFresh+c.cfg.TTLGrace {
			return Record{}, false
		}
		return s.record(age > c.cfg.TTLFresh), true
	case StateFailed:
		if now.Sub(s.failedAt) > c.cfg.TTLFail {
			return Record{}, false
		}
		return s.record(false), true
	default:
		return s.record(false), true
	}
}

// Put stores a READY record directly, bypassing the producer path. Used
// by admin-triggered refreshes that already hold a computed value.
func (c *Cache) Put(namespace, fingerprint string, value datatypes.InsightValue, sourceVersion int, quiet bool) Record {
	return c.storeReady(ComputeRequest{
		Namespace:     namespace,
		Fingerprint:   fingerprint,
		SourceVersion: sourceVersion,
		Quiet:         quiet,
	}, value)
}

// Invalidate marks every slot in the namespace evictable at next access
// and emits a namespace-invalidated notification. Idempotent: repeated
// calls are safe and re-announce.
func (c *Cache) Invalidate(namespace string) int {
	affected := 0

	c.mu.Lock()
	for e := c.order.Front(); e != nil; e = e.Next() {
		s := e.Value.(*slot)
		if s.namespace == namespace && s.state != StatePending && !s.invalidated {
			s.invalidated = true
			affected++
		}
	}
	c.mu.Unlock()

	slog.Info("Insight namespace invalidated", "namespace", namespace, "slots", affected)
	if c.cfg.Notifier != nil {
		c.cfg.Notifier.NamespaceInvalidated(namespace)
	}
	return affected
}

// InvalidateOne drops a single slot without broadcasting. Used for
// per-entity slots. Returns true when the slot existed.
func (c *Cache) InvalidateOne(namespace, fingerprint string) bool {
	key := namespace + "\x00" + fingerprint

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.slots[key]
	if !ok {
		return false
	}
	if elem.Value.(*slot).state == StatePending {
		elem.Value.(*slot).invalidated = true
		return true
	}
	c.removeLocked(elem)
	return true
}

// Stats returns a point-in-time slot census.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{Entries: c.order.Len()}
	for e := c.order.Front(); e != nil; e = e.Next() {
		switch e.Value.(*slot).state {
		case StateReady:
			st.Ready++
		case StatePending:
			st.Pending++
		case StateFailed:
			st.Failed++
		}
	}
	return st
}

// ====== Computation ======

// compute runs the producer behind singleflight so concurrent callers
// for one key share a single invocation.
func (c *Cache) compute(ctx context.Context, req ComputeRequest) Record {
	v, _, _ := c.group.Do(req.key(), func() (any, error) {
		c.markPending(req)

		start := time.Now()
		value, errKind := req.Producer(ctx)
		c.cfg.Metrics.RecordProducer(req.Namespace, time.Since(start).Seconds(), errKind)

		if errKind == "" {
			return c.storeReady(req, value), nil
		}
		return c.storeFailed(req, value, errKind), nil
	})
	return v.(Record)
}

// markPending reserves the slot before the producer runs. A READY slot
// being refreshed in the background keeps serving its stale value and is
// not downgraded.
func (c *Cache) markPending(req ComputeRequest) {
	now := c.cfg.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.slots[req.key()]; ok {
		s := elem.Value.(*slot)
		if s.state == StateReady && !s.invalidated {
			s.refreshing = true
			return
		}
		s.state = StatePending
		s.value = datatypes.InsightValue{}
		s.errKind = ""
		s.storedAt = now
		s.invalidated = false
		s.quiet = req.Quiet
		c.order.MoveToFront(elem)
		return
	}

	c.insertLocked(&slot{
		namespace:     req.Namespace,
		fingerprint:   req.Fingerprint,
		state:         StatePending,
		storedAt:      now,
		sourceVersion: req.SourceVersion,
		quiet:         req.Quiet,
	})
}

// storeReady publishes a READY record and, for non-quiet slots, notifies
// subscribers. Notification happens after the slot is visible.
func (c *Cache) storeReady(req ComputeRequest, value datatypes.InsightValue) Record {
	now := c.cfg.Now()

	c.mu.Lock()
	var s *slot
	if elem, ok := c.slots[req.key()]; ok {
		s = elem.Value.(*slot)
		c.order.MoveToFront(elem)
	} else {
		s = &slot{namespace: req.Namespace, fingerprint: req.Fingerprint}
		c.insertLocked(s)
	}
	s.state = StateReady
	s.value = value
	s.errKind = ""
	s.producedAt = now
	s.storedAt = now
	s.failedAt = time.Time{}
	s.sourceVersion = req.SourceVersion
	s.quiet = req.Quiet
	s.invalidated = false
	s.refreshing = false
	rec := s.record(false)
	c.mu.Unlock()

	if !req.Quiet && c.cfg.Notifier != nil {
		c.cfg.Notifier.NamespaceUpdated(req.Namespace, rec.ProducedAt, req.SourceVersion)
	}
	return rec
}

// storeFailed records a producer failure. A stale READY slot survives
// the failed refresh and keeps serving inside its grace window; a cold
// miss becomes a FAILED slot holding the shaped fallback.
func (c *Cache) storeFailed(req ComputeRequest, fallback datatypes.InsightValue, errKind string) Record {
	now := c.cfg.Now()

	c.mu.Lock()
	if elem, ok := c.slots[req.key()]; ok {
		s := elem.Value.(*slot)
		if s.state == StateReady && !s.invalidated &&
			now.Sub(s.producedAt) <= c.cfg.TTLFresh+c.cfg.TTLGrace {
			s.refreshing = false
			s.failedAt = now
			rec := s.record(true)
			c.mu.Unlock()
			slog.Warn("Background insight refresh failed, serving stale",
				"namespace", req.Namespace, "kind", errKind)
			if !req.Quiet && c.cfg.Notifier != nil {
				c.cfg.Notifier.SystemMessage("warning",
					"insight generation degraded for "+req.Namespace)
			}
			return rec
		}
	}

	var s *slot
	if elem, ok := c.slots[req.key()]; ok {
		s = elem.Value.(*slot)
		c.order.MoveToFront(elem)
	} else {
		s = &slot{namespace: req.Namespace, fingerprint: req.Fingerprint}
		c.insertLocked(s)
	}
	s.state = StateFailed
	s.value = fallback
	s.errKind = errKind
	s.producedAt = now
	s.storedAt = now
	s.failedAt = now
	s.sourceVersion = req.SourceVersion
	s.quiet = req.Quiet
	s.invalidated = false
	s.refreshing = false
	rec := s.record(false)
	c.mu.Unlock()

	slog.Warn("Insight producer failed", "namespace", req.Namespace, "kind", errKind)
	if !req.Quiet && c.cfg.Notifier != nil {
		c.cfg.Notifier.SystemMessage("warning",
			"insight generation degraded for "+req.Namespace)
	}
	return rec
}

// ====== Eviction ======

// insertLocked adds a slot at the front and enforces the entry bound.
// Caller holds c.mu.
func (c *Cache) insertLocked(s *slot) {
	key := s.namespace + "\x00" + s.fingerprint
	c.slots[key] = c.order.PushFront(s)
	c.enforceCapacityLocked()
	c.cfg.Metrics.SetCacheEntries(c.order.Len())
}

// enforceCapacityLocked evicts until the bound holds. PENDING slots and
// the just-inserted front element are exempt; FAILED slots go first,
// then the least recently used READY slot. When only exempt slots
// remain the bound is transiently exceeded.
func (c *Cache) enforceCapacityLocked() {
	for c.order.Len() > c.cfg.MaxEntries {
		victim := c.victimLocked()
		if victim == nil {
			return
		}
		state := victim.Value.(*slot).state
		c.cfg.Metrics.RecordEviction(string(state))
		c.removeLocked(victim)
	}
}

func (c *Cache) victimLocked() *list.Element {
	var oldest *list.Element
	for e := c.order.Back(); e != nil && e != c.order.Front(); e = e.Prev() {
		s := e.Value.(*slot)
		switch s.state {
		case StatePending:
			continue
		case StateFailed:
			return e
		default:
			if oldest == nil {
				oldest = e
			}
		}
	}
	return oldest
}

// removeLocked drops a slot. Caller holds c.mu.
func (c *Cache) removeLocked(elem *list.Element) {
	s := elem.Value.(*slot)
	delete(c.slots, s.namespace+"\x00"+s.fingerprint)
	c.order.Remove(elem)
	c.cfg.Metrics.SetCacheEntries(c.order.Len())
}
