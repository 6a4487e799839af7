package telesync

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestCacheCoalescesConcurrentGets(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	var calls int32
	release := make(chan struct{})
	fetcher := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "value", nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]Result, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(context.Background(), "devices", fetcher, FetchOptions{StaleAfter: time.Minute})
		}(i)
	}

	// Let every caller reach the cache before the fetch resolves.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetcher invoked %d times, want 1", got)
	}
	for i, res := range results {
		if res.Err != nil {
			t.Errorf("caller %d: unexpected error %v", i, res.Err)
		}
		if !res.HasValue || res.Value != "value" {
			t.Errorf("caller %d: got %+v, want value", i, res)
		}
	}
}

func TestCacheServesFreshWithoutFetching(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	var calls int32
	fetcher := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "v1", nil
	}
	opts := FetchOptions{StaleAfter: time.Minute}

	for i := 0; i < 3; i++ {
		res := c.Get(context.Background(), "k", fetcher, opts)
		if !res.HasValue || res.Value != "v1" {
			t.Fatalf("get %d: got %+v, want v1", i, res)
		}
		if res.Stale {
			t.Errorf("get %d: fresh entry reported stale", i)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetcher invoked %d times, want 1", got)
	}
}

func TestCacheInvalidateForcesRefetch(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	var calls int32
	fetcher := func(ctx context.Context) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "old", nil
		}
		return "new", nil
	}
	opts := FetchOptions{StaleAfter: time.Minute}

	if res := c.Get(context.Background(), "k", fetcher, opts); res.Value != "old" {
		t.Fatalf("first get = %+v, want old", res)
	}

	c.Invalidate("k")

	res := c.Get(context.Background(), "k", fetcher, opts)
	if res.Value != "new" {
		t.Errorf("post-invalidation get = %+v, want new", res)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("fetcher invoked %d times, want 2", got)
	}
}

func TestCacheStaleServedWithSingleBackgroundRefresh(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	opts := FetchOptions{StaleAfter: 20 * time.Millisecond}

	first := func(ctx context.Context) (any, error) { return "v1", nil }
	if res := c.Get(context.Background(), "k", first, opts); res.Value != "v1" {
		t.Fatalf("seed get = %+v, want v1", res)
	}

	time.Sleep(50 * time.Millisecond) // let the entry go stale

	var refreshes int32
	release := make(chan struct{})
	second := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&refreshes, 1)
		<-release
		return "v2", nil
	}

	// Several stale reads while the refresh is in flight: each returns
	// the old value immediately, and only one refresh runs.
	for i := 0; i < 5; i++ {
		res := c.Get(context.Background(), "k", second, opts)
		if !res.HasValue || res.Value != "v1" {
			t.Fatalf("stale get %d = %+v, want v1 served immediately", i, res)
		}
		if !res.Stale {
			t.Errorf("stale get %d not flagged stale", i)
		}
	}

	close(release)
	time.Sleep(50 * time.Millisecond) // let the refresh land

	if got := atomic.LoadInt32(&refreshes); got != 1 {
		t.Errorf("background refresh ran %d times, want 1", got)
	}
	res := c.Get(context.Background(), "k", second, opts)
	if res.Value != "v2" {
		t.Errorf("post-refresh get = %+v, want v2", res)
	}
}

func TestCacheFailedFirstFetchHasNoValue(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	var calls int32
	fetcher := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &APIError{Kind: KindValidation, StatusCode: 422, Message: "bad request"}
	}

	res := c.Get(context.Background(), "k", fetcher, FetchOptions{
		StaleAfter: time.Minute,
		Retry:      RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
	})

	if res.HasValue {
		t.Errorf("failed first fetch produced a value: %+v", res)
	}
	if res.Err == nil {
		t.Error("failed first fetch did not record an error")
	}
	// Validation errors are not transient; no retries.
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetcher invoked %d times, want 1", got)
	}
}

func TestCacheRetriesTransientFailures(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	var calls int32
	fetcher := func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, &APIError{Kind: KindNetwork, Message: "connection refused"}
		}
		return "recovered", nil
	}

	res := c.Get(context.Background(), "k", fetcher, FetchOptions{
		StaleAfter: time.Minute,
		Retry:      RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
	})

	if res.Err != nil || res.Value != "recovered" {
		t.Errorf("get = %+v, want recovered after retries", res)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("fetcher invoked %d times, want 3", got)
	}
}

func TestCacheDoesNotRetryUnauthorized(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	var calls int32
	fetcher := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &APIError{Kind: KindUnauthorized, StatusCode: 401, Message: "token expired"}
	}

	res := c.Get(context.Background(), "k", fetcher, FetchOptions{
		StaleAfter: time.Minute,
		Retry:      RetryPolicy{MaxAttempts: 5, Delay: time.Millisecond},
	})

	if res.Err == nil {
		t.Error("unauthorized fetch did not surface an error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetcher invoked %d times, want 1", got)
	}
}

func TestCacheFailedRefreshKeepsPriorValue(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	opts := FetchOptions{StaleAfter: 10 * time.Millisecond, Retry: RetryPolicy{MaxAttempts: 1}}

	seed := func(ctx context.Context) (any, error) { return "v1", nil }
	c.Get(context.Background(), "k", seed, opts)

	time.Sleep(30 * time.Millisecond)

	failing := func(ctx context.Context) (any, error) {
		return nil, &APIError{Kind: KindNetwork, Message: "unreachable"}
	}
	c.Get(context.Background(), "k", failing, opts)
	time.Sleep(50 * time.Millisecond) // let the failing refresh land

	res := c.Get(context.Background(), "k", failing, opts)
	if !res.HasValue || res.Value != "v1" {
		t.Fatalf("get after failed refresh = %+v, want stale v1", res)
	}
	if res.Err == nil {
		t.Error("degraded entry did not carry its error")
	}
	if !res.Stale {
		t.Error("degraded entry not flagged stale")
	}
}

func TestCacheInvalidateDoesNotCancelInFlightFetch(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	var calls int32
	release := make(chan struct{})
	fetcher := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "v1", nil
	}
	opts := FetchOptions{StaleAfter: time.Minute}

	done := make(chan Result, 1)
	go func() {
		done <- c.Get(context.Background(), "k", fetcher, opts)
	}()

	time.Sleep(20 * time.Millisecond)
	c.Invalidate("k")
	close(release)

	res := <-done
	if res.Err != nil || res.Value != "v1" {
		t.Fatalf("in-flight get = %+v, want v1", res)
	}

	// Last-writer-wins: the resolved fetch was still written.
	res = c.Get(context.Background(), "k", fetcher, opts)
	if res.Value != "v1" || res.Stale {
		t.Errorf("get after resolve = %+v, want fresh v1", res)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetcher invoked %d times, want 1", got)
	}
}

func TestCacheInvalidatePrefix(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	var calls int32
	fetcher := func(ctx context.Context) (any, error) {
		return atomic.AddInt32(&calls, 1), nil
	}
	opts := FetchOptions{StaleAfter: time.Minute}

	c.Get(context.Background(), "readings:1:24h", fetcher, opts)
	c.Get(context.Background(), "readings:2:24h", fetcher, opts)
	c.Get(context.Background(), "devices", fetcher, opts)

	c.InvalidatePrefix("readings:")

	c.Get(context.Background(), "readings:1:24h", fetcher, opts)
	c.Get(context.Background(), "readings:2:24h", fetcher, opts)
	c.Get(context.Background(), "devices", fetcher, opts)

	// Both readings keys refetched, devices untouched.
	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Errorf("fetcher invoked %d times, want 5", got)
	}
}

func TestCacheSubscribe(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	var mu sync.Mutex
	var events []Event
	unsubscribe := c.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	fetcher := func(ctx context.Context) (any, error) { return "v", nil }
	c.Get(context.Background(), "k", fetcher, FetchOptions{StaleAfter: time.Minute})

	mu.Lock()
	if len(events) != 1 || events[0].Key != "k" || events[0].Status != StatusFresh {
		t.Errorf("events = %+v, want one fresh transition for k", events)
	}
	mu.Unlock()

	unsubscribe()
	c.Invalidate("k")
	c.Get(context.Background(), "k", fetcher, FetchOptions{StaleAfter: time.Minute})

	mu.Lock()
	if len(events) != 1 {
		t.Errorf("received %d events after unsubscribe, want 1", len(events))
	}
	mu.Unlock()
}

func TestCacheEvictionSkipsInFlightEntries(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	release := make(chan struct{})
	blocked := func(ctx context.Context) (any, error) {
		<-release
		return "v", nil
	}
	opts := FetchOptions{StaleAfter: time.Minute}

	done := make(chan Result, 1)
	go func() {
		done <- c.Get(context.Background(), "busy", blocked, opts)
	}()
	c.Get(context.Background(), "idle", func(ctx context.Context) (any, error) { return "v", nil }, opts)

	time.Sleep(20 * time.Millisecond)

	// A negative retention makes everything eligible; only the entry
	// with an active fetch must survive.
	c.evict(-time.Millisecond)

	c.mu.Lock()
	_, busyOK := c.entries["busy"]
	_, idleOK := c.entries["idle"]
	c.mu.Unlock()

	if !busyOK {
		t.Error("entry with in-flight fetch was evicted")
	}
	if idleOK {
		t.Error("idle entry survived eviction")
	}

	close(release)
	if res := <-done; res.Err != nil {
		t.Errorf("in-flight fetch failed after eviction pass: %v", res.Err)
	}
}

func TestCacheGetHonorsContextCancellation(t *testing.T) {
	c := NewCache(testLogger(), 0)
	defer c.Close()

	release := make(chan struct{})
	fetcher := func(ctx context.Context) (any, error) {
		<-release
		return "v", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := c.Get(ctx, "k", fetcher, FetchOptions{StaleAfter: time.Minute})
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("cancelled get err = %v, want context.Canceled", res.Err)
	}

	// The abandoned fetch still completes and is written for others.
	close(release)
	time.Sleep(50 * time.Millisecond)

	res = c.Get(context.Background(), "k", fetcher, FetchOptions{StaleAfter: time.Minute})
	if res.Err != nil || res.Value != "v" {
		t.Errorf("get after abandoned fetch = %+v, want v", res)
	}
}
