package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// UpsertPriceFeed registers or replaces the aggregator for an asset.
func UpsertPriceFeed(ctx context.Context, q Querier, asset string, addr common.Address, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO price_feeds (asset, address, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(asset) DO UPDATE SET
			address = excluded.address,
			updated_at = excluded.updated_at
	`, asset, addr.Hex(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert price feed: %w", err)
	}
	return nil
}

// GetPriceFeed returns the feed for asset, or nil if none is registered.
func GetPriceFeed(ctx context.Context, q Querier, asset string) (*PriceFeed, error) {
	var (
		addr    string
		updated int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT address, updated_at FROM price_feeds WHERE asset = ?
	`, asset).Scan(&addr, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price feed: %w", err)
	}
	return &PriceFeed{
		Asset:     asset,
		Address:   common.HexToAddress(addr),
		UpdatedAt: fromUnix(updated),
	}, nil
}

// ListPriceFeeds returns all registered feeds ordered by asset.
func ListPriceFeeds(ctx context.Context, q Querier) ([]PriceFeed, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT asset, address, updated_at FROM price_feeds ORDER BY asset ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query price feeds: %w", err)
	}
	defer rows.Close()

	var feeds []PriceFeed
	for rows.Next() {
		var (
			f       PriceFeed
			addr    string
			updated int64
		)
		if err := rows.Scan(&f.Asset, &addr, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan price feed: %w", err)
		}
		f.Address = common.HexToAddress(addr)
		f.UpdatedAt = fromUnix(updated)
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}
