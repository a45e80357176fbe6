// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
)

// ====== Test Helpers ======

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeNotifier struct {
	mu          sync.Mutex
	updated     []string
	invalidated []string
	system      []string
}

func (n *fakeNotifier) NamespaceUpdated(namespace string, _ time.Time, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, namespace)
}

func (n *fakeNotifier) NamespaceInvalidated(namespace string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invalidated = append(n.invalidated, namespace)
}

func (n *fakeNotifier) SystemMessage(_, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.system = append(n.system, text)
}

func (n *fakeNotifier) updatedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.updated)
}

func (n *fakeNotifier) systemMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.system...)
}

func insight(analysis string) datatypes.InsightValue {
	return datatypes.InsightValue{
		Kind:            datatypes.KindInsight,
		Analysis:        analysis,
		Recommendations: []string{"hold"},
	}
}

func countingProducer(analysis string, calls *atomic.Int32) Producer {
	return func(ctx context.Context) (datatypes.InsightValue, string) {
		calls.Add(1)
		return insight(analysis), ""
	}
}

func request(namespace, fingerprint string, p Producer) ComputeRequest {
	return ComputeRequest{
		Namespace:     namespace,
		Fingerprint:   fingerprint,
		SourceVersion: 1,
		Producer:      p,
	}
}

// waitFor polls until cond is true or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// ====== Tests ======

func TestGetOrComputeCoalesces(t *testing.T) {
	clock := newFakeClock()
	c := New(Config{Now: clock.Now})

	var calls atomic.Int32
	producer := func(ctx context.Context) (datatypes.InsightValue, string) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		return insight("shared"), ""
	}

	var wg sync.WaitGroup
	results := make([]Record, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.GetOrCompute(context.Background(), request("orders-insights", "fp1", producer))
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("producer ran %d times, want 1", got)
	}
	for i, rec := range results {
		if rec.State != StateReady || rec.Value.Analysis != "shared" {
			t.Errorf("caller %d got %+v", i, rec)
		}
	}
}

func TestFreshHitSkipsProducer(t *testing.T) {
	clock := newFakeClock()
	c := New(Config{Now: clock.Now})

	var calls atomic.Int32
	req := request("orders-insights", "fp1", countingProducer("v1", &calls))

	first := c.GetOrCompute(context.Background(), req)
	second := c.GetOrCompute(context.Background(), req)

	if calls.Load() != 1 {
		t.Errorf("producer ran %d times, want 1", calls.Load())
	}
	if second.Value.Analysis != first.Value.Analysis || second.Stale {
		t.Errorf("fresh hit returned %+v", second)
	}
}

func TestStaleServeTriggersBackgroundRefresh(t *testing.T) {
	clock := newFakeClock()
	notifier := &fakeNotifier{}
	c := New(Config{
		TTLFresh: 5 * time.Minute,
		TTLGrace: 15 * time.Minute,
		Notifier: notifier,
		Now:      clock.Now,
	})

	var calls atomic.Int32
	c.GetOrCompute(context.Background(), request("orders-insights", "fp1", countingProducer("v1", &calls)))

	clock.Advance(6 * time.Minute) // past fresh, inside grace

	rec := c.GetOrCompute(context.Background(), request("orders-insights", "fp1", countingProducer("v2", &calls)))
	if !rec.Stale || rec.Value.Analysis != "v1" {
		t.Fatalf("stale read should serve the old value immediately, got %+v", rec)
	}

	// The background refresh lands v2 and re-announces the namespace.
	waitFor(t, func() bool {
		got, ok := c.Get("orders-insights", "fp1")
		return ok && got.Value.Analysis == "v2"
	})
	waitFor(t, func() bool { return notifier.updatedCount() == 2 })

	if calls.Load() != 2 {
		t.Errorf("producer ran %d times, want 2", calls.Load())
	}
}

func TestFailureServesShapedFallbackWithCooldown(t *testing.T) {
	clock := newFakeClock()
	notifier := &fakeNotifier{}
	c := New(Config{TTLFail: time.Minute, Notifier: notifier, Now: clock.Now})

	var calls atomic.Int32
	failing := func(ctx context.Context) (datatypes.InsightValue, string) {
		calls.Add(1)
		return datatypes.InsightValue{
			Kind:            datatypes.KindDegraded,
			Analysis:        "Analysis Unavailable. Automated analysis will retry shortly.",
			Recommendations: []string{},
		}, "timeout"
	}
	req := request("sla-insights", "fp1", failing)

	rec := c.GetOrCompute(context.Background(), req)
	if rec.State != StateFailed || rec.ErrKind != "timeout" {
		t.Fatalf("want FAILED/timeout, got %+v", rec)
	}
	if !rec.Value.Degraded() || rec.Value.Analysis == "" {
		t.Errorf("failed record must hold a shaped fallback, got %+v", rec.Value)
	}

	// Inside the cooldown the producer is not re-invoked.
	rec = c.GetOrCompute(context.Background(), req)
	if calls.Load() != 1 {
		t.Errorf("producer ran %d times inside cooldown, want 1", calls.Load())
	}
	if rec.State != StateFailed {
		t.Errorf("cooldown serve should stay FAILED, got %s", rec.State)
	}

	// After the cooldown a new attempt is allowed.
	clock.Advance(2 * time.Minute)
	c.GetOrCompute(context.Background(), req)
	if calls.Load() != 2 {
		t.Errorf("producer ran %d times after cooldown, want 2", calls.Load())
	}

	notifier.mu.Lock()
	systemMessages := len(notifier.system)
	notifier.mu.Unlock()
	if systemMessages == 0 {
		t.Error("producer failure should emit a system message")
	}
}

func TestFailedRefreshKeepsServingStale(t *testing.T) {
	clock := newFakeClock()
	c := New(Config{
		TTLFresh: 5 * time.Minute,
		TTLGrace: 15 * time.Minute,
		TTLFail:  time.Minute,
		Now:      clock.Now,
	})

	var calls atomic.Int32
	c.GetOrCompute(context.Background(), request("orders-insights", "fp1", countingProducer("v1", &calls)))

	clock.Advance(6 * time.Minute)

	failing := func(ctx context.Context) (datatypes.InsightValue, string) {
		calls.Add(1)
		return datatypes.InsightValue{Kind: datatypes.KindDegraded, Analysis: "n/a"}, "upstream_status"
	}
	c.GetOrCompute(context.Background(), request("orders-insights", "fp1", failing))

	waitFor(t, func() bool { return calls.Load() == 2 })

	// The stale READY value survives the failed refresh.
	rec, ok := c.Get("orders-insights", "fp1")
	if !ok || rec.State != StateReady || rec.Value.Analysis != "v1" {
		t.Errorf("stale value should survive a failed refresh, got ok=%v %+v", ok, rec)
	}
}

func TestFailedRefreshEmitsDegradedWarning(t *testing.T) {
	clock := newFakeClock()
	notifier := &fakeNotifier{}
	c := New(Config{
		TTLFresh: 5 * time.Minute,
		TTLGrace: 15 * time.Minute,
		TTLFail:  time.Minute,
		Notifier: notifier,
		Now:      clock.Now,
	})

	var calls atomic.Int32
	c.GetOrCompute(context.Background(), request("orders-insights", "fp1", countingProducer("v1", &calls)))

	clock.Advance(6 * time.Minute)

	failing := func(ctx context.Context) (datatypes.InsightValue, string) {
		calls.Add(1)
		return datatypes.InsightValue{Kind: datatypes.KindDegraded, Analysis: "n/a"}, "timeout"
	}
	c.GetOrCompute(context.Background(), request("orders-insights", "fp1", failing))

	// Even though the stale value keeps serving, subscribers still learn
	// that generation is degraded.
	waitFor(t, func() bool { return len(notifier.systemMessages()) == 1 })
	if got := notifier.systemMessages()[0]; got != "insight generation degraded for orders-insights" {
		t.Errorf("system message = %q", got)
	}
}

func TestEvictionPrefersFailedAndSparesPending(t *testing.T) {
	t.Run("failed slots evicted before ready", func(t *testing.T) {
		clock := newFakeClock()
		c := New(Config{MaxEntries: 2, TTLFail: time.Hour, Now: clock.Now})

		var calls atomic.Int32
		c.GetOrCompute(context.Background(), request("dashboard-insights", "fpA", countingProducer("a", &calls)))
		c.GetOrCompute(context.Background(), request("dashboard-insights", "fpB",
			func(ctx context.Context) (datatypes.InsightValue, string) {
				return datatypes.InsightValue{Kind: datatypes.KindDegraded, Analysis: "n/a"}, "timeout"
			}))
		c.GetOrCompute(context.Background(), request("dashboard-insights", "fpC", countingProducer("c", &calls)))

		if _, ok := c.Get("dashboard-insights", "fpB"); ok {
			t.Error("FAILED slot should be the first eviction victim")
		}
		if _, ok := c.Get("dashboard-insights", "fpA"); !ok {
			t.Error("READY slot should outlive the FAILED one")
		}
		if _, ok := c.Get("dashboard-insights", "fpC"); !ok {
			t.Error("newest slot should be present")
		}
	})

	t.Run("pending slots are never evicted", func(t *testing.T) {
		clock := newFakeClock()
		c := New(Config{MaxEntries: 1, Now: clock.Now})

		release := make(chan struct{})
		done := make(chan Record, 1)
		go func() {
			done <- c.GetOrCompute(context.Background(), request("orders-insights", "fpSlow",
				func(ctx context.Context) (datatypes.InsightValue, string) {
					<-release
					return insight("slow"), ""
				}))
		}()
		waitFor(t, func() bool { return c.Stats().Pending == 1 })

		var calls atomic.Int32
		c.GetOrCompute(context.Background(), request("orders-insights", "fpFast", countingProducer("fast", &calls)))
		c.GetOrCompute(context.Background(), request("orders-insights", "fpFast2", countingProducer("fast2", &calls)))

		if st := c.Stats(); st.Pending != 1 {
			t.Errorf("pending slot was evicted: %+v", st)
		}

		close(release)
		rec := <-done
		if rec.State != StateReady || rec.Value.Analysis != "slow" {
			t.Errorf("pending computation should complete normally, got %+v", rec)
		}
	})
}

func TestInvalidate(t *testing.T) {
	clock := newFakeClock()
	notifier := &fakeNotifier{}
	c := New(Config{Notifier: notifier, Now: clock.Now})

	var calls atomic.Int32
	req := request("inventory-insights", "fp1", countingProducer("v1", &calls))
	c.GetOrCompute(context.Background(), req)

	if n := c.Invalidate("inventory-insights"); n != 1 {
		t.Errorf("Invalidate affected %d slots, want 1", n)
	}
	if _, ok := c.Get("inventory-insights", "fp1"); ok {
		t.Error("invalidated slot must miss on Get")
	}

	notifier.mu.Lock()
	invalidations := len(notifier.invalidated)
	notifier.mu.Unlock()
	if invalidations != 1 {
		t.Errorf("got %d invalidation events, want 1", invalidations)
	}

	// Repeat invalidation is safe.
	if n := c.Invalidate("inventory-insights"); n != 0 {
		t.Errorf("second Invalidate affected %d slots, want 0", n)
	}

	// Next access recomputes.
	c.GetOrCompute(context.Background(), req)
	if calls.Load() != 2 {
		t.Errorf("producer ran %d times after invalidation, want 2", calls.Load())
	}
}

func TestQuietSlotsDoNotBroadcast(t *testing.T) {
	clock := newFakeClock()
	notifier := &fakeNotifier{}
	c := New(Config{Notifier: notifier, Now: clock.Now})

	var calls atomic.Int32
	c.GetOrCompute(context.Background(), ComputeRequest{
		Namespace:     "orders-insights",
		Fingerprint:   "entity-fp",
		SourceVersion: 1,
		Quiet:         true,
		Producer:      countingProducer("entity", &calls),
	})

	if notifier.updatedCount() != 0 {
		t.Error("quiet slots must not emit namespace-updated events")
	}
	if _, ok := c.Get("orders-insights", "entity-fp"); !ok {
		t.Error("quiet slot should still be cached")
	}
}

func TestInvalidateOne(t *testing.T) {
	clock := newFakeClock()
	notifier := &fakeNotifier{}
	c := New(Config{Notifier: notifier, Now: clock.Now})

	var calls atomic.Int32
	c.GetOrCompute(context.Background(), request("orders-insights", "fp1", countingProducer("v1", &calls)))

	if !c.InvalidateOne("orders-insights", "fp1") {
		t.Error("InvalidateOne should report the slot existed")
	}
	if c.InvalidateOne("orders-insights", "fp1") {
		t.Error("second InvalidateOne should report no slot")
	}
	if _, ok := c.Get("orders-insights", "fp1"); ok {
		t.Error("slot should be gone after InvalidateOne")
	}

	notifier.mu.Lock()
	invalidations := len(notifier.invalidated)
	notifier.mu.Unlock()
	if invalidations != 0 {
		t.Error("InvalidateOne must not broadcast")
	}
}
