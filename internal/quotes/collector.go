package quotes

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ivsurface/internal/logging"
	"ivsurface/internal/models"
	"ivsurface/internal/store"
)

// Collector is the entry point the CLI uses to obtain quotes for a ticker.
type Collector struct {
	cache  *Cache
	logger zerolog.Logger
}

// NewCollector wires a provider behind a TTL cache on s.
func NewCollector(p Provider, s store.SnapshotStore, ttl time.Duration, logger zerolog.Logger) *Collector {
	return &Collector{
		cache:  NewCache(p, s, WithTTL(ttl), WithCacheLogger(logger)),
		logger: logger,
	}
}

// FetchQuotes returns the call contracts for ticker that carry a defined
// implied volatility. With refresh set the cache is bypassed.
//
// An empty result is reported as errors.ErrNoOptionData.
func (c *Collector) FetchQuotes(ctx context.Context, ticker string, refresh bool) (*models.OptionChainSnapshot, error) {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	log := logging.WithOperation(logging.WithTicker(c.logger, t), "fetch_quotes")

	start := time.Now()
	var snap *models.OptionChainSnapshot
	if refresh {
		snap, err = c.cache.Refresh(ctx, t)
	} else {
		snap, err = c.cache.FetchChain(ctx, t)
	}
	if err != nil {
		log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("Quote collection failed")
		return nil, err
	}

	log.Debug().
		Int("contracts", len(snap.Points)).
		Time("fetched_at", snap.FetchedAt).
		Dur("elapsed", time.Since(start)).
		Msg("Quotes ready")
	return snap, nil
}

// Cache returns the collector's cache.
func (c *Collector) Cache() *Cache {
	return c.cache
}
