package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/pkg/errors"

	"predictionmarket/internal/settlement"
)

// Static is an in-memory oracle for local runs and tests.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]settlement.Quote
	calls  int
}

func NewStatic() *Static {
	return &Static{quotes: make(map[string]settlement.Quote)}
}

// Set replaces the quote for asset.
func (s *Static) Set(asset string, price *apd.Decimal, updatedAt time.Time) {
	asset = NormalizeAsset(asset)
	q := settlement.Quote{Asset: asset, UpdatedAt: updatedAt}
	q.Price.Set(price)

	s.mu.Lock()
	s.quotes[asset] = q
	s.mu.Unlock()
}

// SetString is Set with a decimal literal. It panics on a malformed price.
func (s *Static) SetString(asset, price string, updatedAt time.Time) {
	d, _, err := apd.NewFromString(price)
	if err != nil {
		panic(err)
	}
	s.Set(asset, d, updatedAt)
}

// Remove forgets asset.
func (s *Static) Remove(asset string) {
	s.mu.Lock()
	delete(s.quotes, NormalizeAsset(asset))
	s.mu.Unlock()
}

// Calls returns how many lookups were served.
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *Static) LatestPrice(_ context.Context, asset string) (settlement.Quote, error) {
	asset = NormalizeAsset(asset)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	q, ok := s.quotes[asset]
	if !ok {
		return settlement.Quote{}, errors.Wrapf(settlement.ErrNoPriceData, "no price for %s", asset)
	}
	var out settlement.Quote
	out.Asset = q.Asset
	out.UpdatedAt = q.UpdatedAt
	out.Price.Set(&q.Price)
	return out, nil
}
