package oracle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"predictionmarket/internal/settlement"
)

// RedisConfig holds connection parameters for the price cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient creates a client and pings it so a bad address fails at startup.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// PriceCache stores the latest quote per asset as a Redis hash at
// "price:{asset}" with fields "price" (decimal text) and "ts" (unix seconds of
// the oracle update). Entries expire after ttl.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. A zero ttl keeps entries forever.
func NewPriceCache(rdb *redis.Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: rdb, ttl: ttl}
}

func priceKey(asset string) string {
	return "price:" + asset
}

// SetQuote stores q under its asset.
func (pc *PriceCache) SetQuote(ctx context.Context, q settlement.Quote) error {
	key := priceKey(q.Asset)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, quoteFields(q))
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", q.Asset, err)
	}
	return nil
}

// LatestPrice serves the cached quote. A miss is ErrNoPriceData.
func (pc *PriceCache) LatestPrice(ctx context.Context, asset string) (settlement.Quote, error) {
	asset = NormalizeAsset(asset)
	vals, err := pc.rdb.HGetAll(ctx, priceKey(asset)).Result()
	if err != nil {
		return settlement.Quote{}, errors.Wrapf(settlement.ErrNoPriceData, "redis: get price %s: %v", asset, err)
	}
	return parseQuote(asset, vals)
}

func quoteFields(q settlement.Quote) map[string]any {
	return map[string]any{
		"price": q.Price.Text('f'),
		"ts":    strconv.FormatInt(q.UpdatedAt.Unix(), 10),
	}
}

func parseQuote(asset string, vals map[string]string) (settlement.Quote, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return settlement.Quote{}, errors.Wrapf(settlement.ErrNoPriceData, "redis: no cached price for %s", asset)
	}
	tsStr, ok := vals["ts"]
	if !ok {
		return settlement.Quote{}, errors.Wrapf(settlement.ErrNoPriceData, "redis: no cached ts for %s", asset)
	}

	q := settlement.Quote{Asset: asset}
	if _, _, err := q.Price.SetString(priceStr); err != nil {
		return settlement.Quote{}, errors.Wrapf(settlement.ErrInvalidResponse, "redis: parse price %s: %v", asset, err)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return settlement.Quote{}, errors.Wrapf(settlement.ErrInvalidResponse, "redis: parse ts %s: %v", asset, err)
	}
	q.UpdatedAt = time.Unix(ts, 0).UTC()
	return q, nil
}

var _ Oracle = (*PriceCache)(nil)
