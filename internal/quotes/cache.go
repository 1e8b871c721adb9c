package quotes

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"ivsurface/internal/errors"
	"ivsurface/internal/logging"
	"ivsurface/internal/models"
	"ivsurface/internal/store"
)

const (
	// DefaultTTL is how long a fetched chain is reused.
	DefaultTTL = time.Hour
	// DefaultFetchTimeout bounds a shared provider fetch once it no longer
	// follows the caller that started it.
	DefaultFetchTimeout = 2 * time.Minute
)

// Cache wraps a Provider and reuses each ticker's snapshot while it is younger
// than the TTL. Snapshots live in a store.SnapshotStore so they can outlive the
// process when the store is persistent.
//
// Only successful fetches are cached; an empty result or a failure is
// re-requested on the next call.
type Cache struct {
	provider Provider
	store    store.SnapshotStore
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	group singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the reuse window. A TTL of zero disables reuse.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithFetchTimeout bounds each provider fetch.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCacheClock sets the clock used to age snapshots.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// WithCacheLogger sets the logger for hit/miss events.
func WithCacheLogger(logger zerolog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates a cache in front of p backed by s.
func NewCache(p Provider, s store.SnapshotStore, opts ...CacheOption) *Cache {
	c := &Cache{
		provider: p,
		store:    s,
		ttl:      DefaultTTL,
		timeout:  DefaultFetchTimeout,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Provider.
func (c *Cache) Name() string { return c.provider.Name() + "+cache" }

// TTL returns the reuse window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// FetchChain implements Provider. A stored snapshot with now - FetchedAt < TTL
// is returned without contacting the provider.
func (c *Cache) FetchChain(ctx context.Context, ticker string) (*models.OptionChainSnapshot, error) {
	snap, err := c.store.GetSnapshot(ctx, ticker)
	switch {
	case err == nil:
		age := snap.Age(c.now())
		if age >= 0 && age < c.ttl {
			logging.LogCache(c.logger, ticker, true, age)
			return snap, nil
		}
		logging.LogCache(c.logger, ticker, false, age)
	case errors.Is(err, errors.ErrDataNotFound):
		logging.LogCache(c.logger, ticker, false, 0)
	default:
		// A broken cache must not stop a fresh fetch.
		c.logger.Warn().Err(err).Str("ticker", ticker).Msg("Snapshot store read failed")
	}
	return c.Refresh(ctx, ticker)
}

// Refresh fetches ticker from the provider regardless of age and stores the result.
// Concurrent refreshes of one ticker share a single request. The shared request
// keeps running when the caller that started it gives up, so the others still
// get its result; each caller stops waiting when its own ctx is done.
func (c *Cache) Refresh(ctx context.Context, ticker string) (*models.OptionChainSnapshot, error) {
	ch := c.group.DoChan(ticker, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		snap, err := c.provider.FetchChain(fetchCtx, ticker)
		if err != nil {
			return nil, err
		}
		if err := c.store.SaveSnapshot(fetchCtx, snap); err != nil {
			c.logger.Warn().Err(err).Str("ticker", ticker).Msg("Snapshot store write failed")
		}
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.OptionChainSnapshot), nil
	}
}

// Invalidate drops the cached snapshot for ticker.
func (c *Cache) Invalidate(ctx context.Context, ticker string) error {
	return c.store.DeleteSnapshot(ctx, ticker)
}
