package telesync

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EntryStatus describes the lifecycle state of a cache entry.
type EntryStatus int

const (
	StatusEmpty EntryStatus = iota
	StatusLoading
	StatusFresh
	StatusStale
	StatusFailed
)

// String returns a human-readable name for the status.
func (s EntryStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fetcher produces the value for a cache key. It is invoked by the cache
// at most once per key at any given time.
type Fetcher func(ctx context.Context) (any, error)

// FetchOptions controls staleness and retry behavior for a single Get call.
type FetchOptions struct {
	// StaleAfter is how long a fetched value is considered fresh.
	StaleAfter time.Duration

	// Retry is applied to transient fetcher failures.
	Retry RetryPolicy
}

// Result is the outcome of a Get call.
type Result struct {
	// Value is the cached or freshly fetched value. Only meaningful
	// when HasValue is true.
	Value    any
	HasValue bool

	// Stale is true when Value predates the freshness window and a
	// background refresh has been scheduled.
	Stale bool

	// FetchedAt is when Value was last written.
	FetchedAt time.Time

	// Err is the most recent fetch error, set when the entry is failed.
	// A stale value may be returned alongside a non-nil Err; callers
	// must not treat such a value as fresh.
	Err error
}

// Event notifies subscribers of an entry status transition.
type Event struct {
	Key    string
	Status EntryStatus
}

// flight tracks a single in-flight fetch. All concurrent callers for the
// same key wait on the same flight and observe the same outcome.
type flight struct {
	done  chan struct{}
	value any
	err   error
}

type entry struct {
	value      any
	hasValue   bool
	fetchedAt  time.Time
	staleAfter time.Duration
	status     EntryStatus
	err        error
	inflight   *flight
	lastAccess time.Time
}

// Cache is a keyed query cache with staleness tracking, in-flight request
// coalescing and explicit invalidation. It holds no knowledge of what it
// caches; fetch logic is supplied per call.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	subs    map[int]func(Event)
	nextSub int
	log     *logrus.Logger

	retention   time.Duration
	stopJanitor chan struct{}
}

// NewCache creates a cache. If retention is positive, a background
// janitor drops entries untouched for longer than retention.
func NewCache(log *logrus.Logger, retention time.Duration) *Cache {
	c := &Cache{
		entries:     make(map[string]*entry),
		subs:        make(map[int]func(Event)),
		log:         log,
		retention:   retention,
		stopJanitor: make(chan struct{}),
	}

	if retention > 0 {
		go c.janitorLoop(retention)
	}

	return c
}

// Get returns the entry for key, fetching it if needed.
//
// A fresh value is returned as-is. A stale or failed entry with a prior
// value is returned immediately while a single background refresh is
// scheduled. A missing entry blocks the caller on a synchronous fetch;
// concurrent callers for the same key coalesce onto that one fetch.
func (c *Cache) Get(ctx context.Context, key string, fetcher Fetcher, opts FetchOptions) Result {
	c.mu.Lock()

	e, ok := c.entries[key]
	if !ok {
		e = &entry{status: StatusEmpty}
		c.entries[key] = e
	}
	now := time.Now()
	e.lastAccess = now

	// Age a fresh entry into staleness before deciding what to do.
	if e.status == StatusFresh && now.Sub(e.fetchedAt) >= e.staleAfter {
		e.status = StatusStale
	}

	switch e.status {
	case StatusFresh:
		res := resultOf(e)
		c.mu.Unlock()
		return res

	case StatusLoading:
		if e.hasValue {
			// Serve the prior value; the in-flight fetch will
			// refresh the entry for future callers.
			res := resultOf(e)
			res.Stale = true
			c.mu.Unlock()
			return res
		}
		fl := e.inflight
		c.mu.Unlock()
		return waitFlight(ctx, fl)

	case StatusStale, StatusFailed:
		if e.inflight == nil {
			fl := c.beginFetch(e)
			go c.runFetch(key, fetcher, opts, fl)
		}
		res := resultOf(e)
		res.Stale = true
		c.mu.Unlock()
		return res

	default: // StatusEmpty
		fl := c.beginFetch(e)
		c.mu.Unlock()

		go c.runFetch(key, fetcher, opts, fl)
		return waitFlight(ctx, fl)
	}
}

// beginFetch registers a new flight on the entry. Caller holds c.mu.
func (c *Cache) beginFetch(e *entry) *flight {
	fl := &flight{done: make(chan struct{})}
	e.inflight = fl
	e.status = StatusLoading
	return fl
}

// runFetch executes the fetcher with retries and writes the outcome back
// into the entry. The fetcher runs on a background context: once
// dispatched, a fetch completes regardless of the originating caller.
func (c *Cache) runFetch(key string, fetcher Fetcher, opts FetchOptions, fl *flight) {
	attempts := opts.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var value any
	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		value, err = fetcher(context.Background())
		if err == nil || !retryable(err) {
			break
		}
		if attempt < attempts {
			c.log.WithFields(logrus.Fields{
				"key":     key,
				"attempt": attempt,
				"error":   err,
			}).Debug("fetch failed, retrying")
			time.Sleep(opts.Retry.Delay)
		}
	}

	fl.value = value
	fl.err = err

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.inflight == fl {
		e.inflight = nil
		e.staleAfter = opts.StaleAfter
		e.fetchedAt = time.Now()
		if err != nil {
			// Keep any prior value so it can still be served stale.
			e.status = StatusFailed
			e.err = err
		} else {
			e.value = value
			e.hasValue = true
			e.status = StatusFresh
			e.err = nil
		}
	}
	var status EntryStatus
	if ok {
		status = e.status
	}
	subs := c.snapshotSubs()
	c.mu.Unlock()

	// Notify before waking waiters so a caller observing its Get return
	// also sees the transition delivered.
	if ok {
		notify(subs, Event{Key: key, Status: status})
	}

	close(fl.done)
}

// waitFlight blocks until the flight resolves or ctx is done. The fetch
// itself is never cancelled; an abandoned result is still written to the
// cache for future callers.
func waitFlight(ctx context.Context, fl *flight) Result {
	select {
	case <-fl.done:
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}

	if fl.err != nil {
		return Result{Err: fl.err}
	}
	return Result{Value: fl.value, HasValue: true, FetchedAt: time.Now()}
}

// Invalidate resets the entry for key to empty, discarding its value.
// An in-flight fetch is not cancelled; its result is still written when
// it resolves.
func (c *Cache) Invalidate(key string) {
	c.InvalidateFunc(func(k string) bool { return k == key })
}

// InvalidatePrefix resets every entry whose key starts with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.InvalidateFunc(func(k string) bool { return strings.HasPrefix(k, prefix) })
}

// InvalidateAll resets every entry.
func (c *Cache) InvalidateAll() {
	c.InvalidateFunc(func(string) bool { return true })
}

// InvalidateFunc resets every entry whose key matches the predicate.
func (c *Cache) InvalidateFunc(match func(key string) bool) {
	c.mu.Lock()
	for key, e := range c.entries {
		if !match(key) {
			continue
		}
		e.value = nil
		e.hasValue = false
		e.fetchedAt = time.Time{}
		e.err = nil
		if e.inflight != nil {
			e.status = StatusLoading
		} else {
			e.status = StatusEmpty
		}
	}
	c.mu.Unlock()
}

// Subscribe registers a callback invoked on entry status transitions.
// The returned function unsubscribes it.
func (c *Cache) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Close stops the janitor goroutine.
func (c *Cache) Close() error {
	if c.retention > 0 {
		close(c.stopJanitor)
	}
	return nil
}

func (c *Cache) snapshotSubs() []func(Event) {
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}

// janitorLoop periodically drops entries untouched past the retention
// window. Entries with an active fetch are never dropped.
func (c *Cache) janitorLoop(retention time.Duration) {
	interval := retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evict(retention)
		case <-c.stopJanitor:
			return
		}
	}
}

func (c *Cache) evict(retention time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	for key, e := range c.entries {
		if e.inflight == nil && e.lastAccess.Before(cutoff) {
			delete(c.entries, key)
		}
	}
}

// resultOf builds a Result from an entry. Caller holds c.mu.
func resultOf(e *entry) Result {
	return Result{
		Value:     e.value,
		HasValue:  e.hasValue,
		FetchedAt: e.fetchedAt,
		Err:       e.err,
	}
}
