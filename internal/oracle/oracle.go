// Package oracle supplies asset prices used to resolve markets.
package oracle

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"predictionmarket/internal/settlement"
	"predictionmarket/internal/storage"
)

// Oracle returns the latest known price for an asset. Implementations fail
// with settlement.ErrNoPriceData when no price can be supplied and with
// settlement.ErrInvalidResponse when the source answered with malformed data.
type Oracle interface {
	LatestPrice(ctx context.Context, asset string) (settlement.Quote, error)
}

// Feeds maps an asset symbol to the address of its on-chain aggregator.
type Feeds interface {
	FeedAddress(ctx context.Context, asset string) (common.Address, error)
}

// StoredFeeds resolves feeds from the price_feeds table.
type StoredFeeds struct{}

func (StoredFeeds) FeedAddress(ctx context.Context, asset string) (common.Address, error) {
	feed, err := storage.GetPriceFeed(ctx, storage.DB(), NormalizeAsset(asset))
	if err != nil {
		return common.Address{}, errors.WithStack(err)
	}
	if feed == nil {
		return common.Address{}, errors.Wrapf(settlement.ErrNoPriceData, "no feed for %s", asset)
	}
	return feed.Address, nil
}

// NormalizeAsset upper-cases and trims an asset symbol.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
