// Package telesync is the session and data-synchronization core of an
// IoT device dashboard. It manages an authenticated session backed by a
// persistent credential store, caches remote entities (devices, sensor
// readings) with staleness and invalidation semantics, and deduplicates
// concurrent fetches for identical queries.
package telesync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emontero/telesync/store"
)

// Cache keys are deterministic from the operation and its parameters, so
// identical logical queries collide onto the same entry.
const (
	keyCurrentUser = "auth:me"
	keyDevices     = "devices"
)

func keyDevice(id int64) string {
	return "devices:" + strconv.FormatInt(id, 10)
}

func keyDeviceSchema(id int64) string {
	return "devices:" + strconv.FormatInt(id, 10) + ":schema"
}

func keyReadings(deviceID int64, spec WindowSpec) string {
	return "readings:" + strconv.FormatInt(deviceID, 10) + ":" + string(spec)
}

// Cached wraps a value served from the query cache. Stale is true when
// the value predates its freshness window; a background refresh has been
// scheduled and the next call may return newer data. Degraded is true
// when the most recent refresh failed and the value shown is the last
// one that succeeded — never silently indistinguishable from fresh data.
type Cached[T any] struct {
	Value     T
	Stale     bool
	Degraded  bool
	FetchedAt time.Time
}

// Client is the session-aware query facade. It composes the session
// manager, the query cache and the remote API boundary: every operation
// requires an authenticated session, attaches the current credential to
// its fetch, and routes credential rejections back into the session.
//
// Exactly one Client should exist per process; the session and all cache
// entries are shared by every caller.
type Client struct {
	config  Config
	api     *apiClient
	session *sessionManager
	cache   *Cache
	log     *logrus.Logger
}

// New creates a Client with the given configuration. If no credential
// store is provided, a SQLite store at Config.DatabasePath is used. The
// session is restored from the store, so a previously logged-in process
// comes back authenticated.
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	if cfg.BaseURL == "" {
		return nil, errors.New("telesync: BaseURL is required")
	}

	creds := cfg.Credentials
	if creds == nil {
		sqliteStore, err := store.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("telesync: failed to initialize SQLite store: %w", err)
		}
		creds = sqliteStore
		cfg.Credentials = creds
	}

	api := newAPIClient(cfg.BaseURL, cfg.HTTPClient, cfg.Logger)

	session, err := newSessionManager(creds, api, cfg.Logger)
	if err != nil {
		creds.Close()
		return nil, err
	}

	return &Client{
		config:  cfg,
		api:     api,
		session: session,
		cache:   NewCache(cfg.Logger, cfg.CacheRetention),
		log:     cfg.Logger,
	}, nil
}

// Close releases all resources held by the client.
// Should be called when the application shuts down.
func (c *Client) Close() error {
	var errs []error

	if err := c.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.config.Credentials.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("telesync: errors during close: %v", errs)
	}
	return nil
}

// Login authenticates with the remote API and persists the credential.
// A failed attempt leaves any existing session untouched.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if err := c.session.Login(ctx, email, password); err != nil {
		return err
	}
	// The profile cache belongs to the previous identity.
	c.cache.Invalidate(keyCurrentUser)
	return nil
}

// Logout clears the credential and invalidates every session-scoped
// cache entry. Subsequent queries fail with ErrUnauthenticated until a
// new login.
func (c *Client) Logout() error {
	err := c.session.Logout()
	c.cache.InvalidateAll()
	return err
}

// IsAuthenticated reports whether an authenticated session exists.
func (c *Client) IsAuthenticated() bool {
	return c.session.IsAuthenticated()
}

// SessionStatus returns the current session status.
func (c *Client) SessionStatus() SessionStatus {
	return c.session.Status()
}

// Subscribe registers a callback for cache entry status transitions,
// for callers that want to react to staleness instead of polling.
func (c *Client) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.cache.Subscribe(fn)
}

// CurrentUser returns the profile of the logged-in user, fetching and
// memoizing it like any other cached entity. If the fetch fails and a
// previously stored profile exists, that profile is returned instead.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	res, err := getCached[User](c, ctx, keyCurrentUser, func(fctx context.Context, token string) (any, error) {
		user, err := c.api.me(fctx, token)
		if err != nil {
			return nil, err
		}
		c.session.setUser(user)
		return user, nil
	})
	if err != nil {
		if cached := c.session.CachedUser(); cached != nil && !errors.Is(err, ErrUnauthenticated) && !errors.Is(err, ErrSessionExpired) {
			return *cached, nil
		}
		return User{}, err
	}
	return res.Value, nil
}

// Devices returns the device list.
func (c *Client) Devices(ctx context.Context) (Cached[[]Device], error) {
	return getCached[[]Device](c, ctx, keyDevices, func(fctx context.Context, token string) (any, error) {
		return c.api.devices(fctx, token)
	})
}

// Device returns a single device by ID.
func (c *Client) Device(ctx context.Context, id int64) (Cached[Device], error) {
	return getCached[Device](c, ctx, keyDevice(id), func(fctx context.Context, token string) (any, error) {
		return c.api.device(fctx, token, id)
	})
}

// DeviceSchema returns the plottable-variable schema for a device.
func (c *Client) DeviceSchema(ctx context.Context, id int64) (Cached[DeviceSchema], error) {
	return getCached[DeviceSchema](c, ctx, keyDeviceSchema(id), func(fctx context.Context, token string) (any, error) {
		return c.api.deviceSchema(fctx, token, id)
	})
}

// Readings returns telemetry for a device over a relative window. The
// window is resolved against the clock at fetch time; the cache key is
// derived from the device and the specifier, so repeated calls for the
// same logical query share one entry.
func (c *Client) Readings(ctx context.Context, deviceID int64, spec WindowSpec) (Cached[[]SensorReading], error) {
	if _, err := ResolveWindow(spec, time.Now()); err != nil {
		return Cached[[]SensorReading]{}, err
	}

	return getCached[[]SensorReading](c, ctx, keyReadings(deviceID, spec), func(fctx context.Context, token string) (any, error) {
		window, err := ResolveWindow(spec, time.Now())
		if err != nil {
			return nil, err
		}
		return c.api.readings(fctx, token, deviceID, window)
	})
}

// Reading returns a single sensor reading by ID.
func (c *Client) Reading(ctx context.Context, id int64) (Cached[SensorReading], error) {
	key := "readings:id:" + strconv.FormatInt(id, 10)
	return getCached[SensorReading](c, ctx, key, func(fctx context.Context, token string) (any, error) {
		return c.api.reading(fctx, token, id)
	})
}

// Summary computes fleet-level counts from the cached device list.
func (c *Client) Summary(ctx context.Context) (Cached[FleetSummary], error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return Cached[FleetSummary]{}, err
	}
	return Cached[FleetSummary]{
		Value:     Summarize(devices.Value, time.Now(), c.config.OnlineThreshold),
		Stale:     devices.Stale,
		Degraded:  devices.Degraded,
		FetchedAt: devices.FetchedAt,
	}, nil
}

// Connectivity classifies a device using the configured online threshold.
func (c *Client) Connectivity(d Device, now time.Time) Connectivity {
	return ClassifyConnectivity(d.LastSeenAt, now, c.config.OnlineThreshold)
}

// GoodQuality reports whether a reading meets the configured quality
// threshold.
func (c *Client) GoodQuality(r SensorReading) bool {
	return GoodQuality(r.QualityScore, c.config.QualityThreshold)
}

// CreateDevice registers a device and invalidates the device caches so
// the next read refetches. Mutations pass straight through to the API;
// there is no offline queueing.
func (c *Client) CreateDevice(ctx context.Context, nd NewDevice) (Device, error) {
	token, ok := c.session.Token()
	if !ok {
		return Device{}, ErrUnauthenticated
	}

	device, err := c.api.createDevice(ctx, token, nd)
	if err != nil {
		return Device{}, c.mapAuthError(err)
	}

	c.cache.InvalidatePrefix(keyDevices)
	return device, nil
}

// UpdateDevice applies a partial update to a device and invalidates the
// device caches.
func (c *Client) UpdateDevice(ctx context.Context, id int64, patch DevicePatch) (Device, error) {
	token, ok := c.session.Token()
	if !ok {
		return Device{}, ErrUnauthenticated
	}

	device, err := c.api.updateDevice(ctx, token, id, patch)
	if err != nil {
		return Device{}, c.mapAuthError(err)
	}

	c.cache.InvalidatePrefix(keyDevices)
	return device, nil
}

// DeleteDevice removes a device and invalidates the device caches.
func (c *Client) DeleteDevice(ctx context.Context, id int64) error {
	token, ok := c.session.Token()
	if !ok {
		return ErrUnauthenticated
	}

	if err := c.api.deleteDevice(ctx, token, id); err != nil {
		return c.mapAuthError(err)
	}

	c.cache.InvalidatePrefix(keyDevices)
	return nil
}

// InvalidateDevices drops the cached device list and per-device entries,
// forcing the next query to refetch.
func (c *Client) InvalidateDevices() {
	c.cache.InvalidatePrefix(keyDevices)
}

// InvalidateReadings drops every cached readings query for a device.
func (c *Client) InvalidateReadings(deviceID int64) {
	c.cache.InvalidatePrefix("readings:" + strconv.FormatInt(deviceID, 10) + ":")
}

// mapAuthError routes credential rejections into the session manager and
// surfaces ErrSessionExpired instead of a generic API error.
func (c *Client) mapAuthError(err error) error {
	if isUnauthorized(err) {
		c.session.Expire()
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return err
}

// getCached runs one facade query through the cache: it requires an
// authenticated session, binds the current credential into the fetcher,
// and converts the cache result into a typed value.
func getCached[T any](c *Client, ctx context.Context, key string, fetch func(ctx context.Context, token string) (any, error)) (Cached[T], error) {
	var zero Cached[T]

	token, ok := c.session.Token()
	if !ok {
		return zero, ErrUnauthenticated
	}

	res := c.cache.Get(ctx, key, func(fctx context.Context) (any, error) {
		value, err := fetch(fctx, token)
		if err != nil {
			return nil, c.mapAuthError(err)
		}
		return value, nil
	}, FetchOptions{StaleAfter: c.config.StaleAfter, Retry: c.config.Retry})

	if !res.HasValue {
		switch {
		case res.Err == nil:
			return zero, ErrNoData
		case errors.Is(res.Err, ErrSessionExpired):
			return zero, res.Err
		default:
			return zero, fmt.Errorf("%w: %w", ErrNoData, res.Err)
		}
	}

	value, ok := res.Value.(T)
	if !ok {
		return zero, fmt.Errorf("telesync: unexpected cached type %T for key %q", res.Value, key)
	}

	return Cached[T]{
		Value:     value,
		Stale:     res.Stale,
		Degraded:  res.Err != nil,
		FetchedAt: res.FetchedAt,
	}, nil
}
