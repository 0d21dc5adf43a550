package oracle

import (
	"context"

	"go.uber.org/zap"

	"predictionmarket/internal/logger"
	"predictionmarket/internal/settlement"
)

// QuoteCache is the storage side of Cached. PriceCache implements it.
type QuoteCache interface {
	Oracle
	SetQuote(ctx context.Context, q settlement.Quote) error
}

// Cached serves quotes from a cache and falls back to source on a miss,
// writing the fresh quote through. It is meant for display paths; market
// resolution reads the source directly.
type Cached struct {
	source Oracle
	cache  QuoteCache
}

// NewCached wraps source with cache.
func NewCached(source Oracle, cache QuoteCache) *Cached {
	return &Cached{source: source, cache: cache}
}

func (c *Cached) LatestPrice(ctx context.Context, asset string) (settlement.Quote, error) {
	asset = NormalizeAsset(asset)
	if q, err := c.cache.LatestPrice(ctx, asset); err == nil {
		return q, nil
	}

	q, err := c.source.LatestPrice(ctx, asset)
	if err != nil {
		return settlement.Quote{}, err
	}
	if err := c.cache.SetQuote(ctx, q); err != nil {
		// A cache write failure never hides a good quote.
		logger.L().Warn("price cache write failed", zap.String("asset", asset), zap.Error(err))
	}
	return q, nil
}
