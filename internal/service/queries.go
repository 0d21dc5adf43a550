package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"predictionmarket/internal/oracle"
	"predictionmarket/internal/settlement"
	"predictionmarket/internal/storage"
)

// PositionView is a position together with what it would pay if its larger
// side won at the current pools.
type PositionView struct {
	*settlement.Position
	PotentialWinnings int64
	Claimable         settlement.Payout
}

// Odds are display percentages for each side.
type Odds struct {
	Yes int `json:"yes"`
	No  int `json:"no"`
}

func (s *SettlementService) GetMarket(ctx context.Context, id int64) (*settlement.Market, error) {
	return storage.GetMarket(ctx, storage.DB(), id)
}

func (s *SettlementService) ListMarkets(ctx context.Context, filter storage.MarketFilter) ([]*settlement.Market, error) {
	return storage.ListMarkets(ctx, storage.DB(), filter)
}

// GetPosition returns user's position on a market, empty if they never bet.
func (s *SettlementService) GetPosition(ctx context.Context, marketID int64, user common.Address) (*PositionView, error) {
	m, err := storage.GetMarket(ctx, storage.DB(), marketID)
	if err != nil {
		return nil, err
	}
	pos, err := storage.GetPosition(ctx, storage.DB(), marketID, user)
	if err != nil {
		return nil, err
	}
	view := &PositionView{Position: pos, PotentialWinnings: settlement.PotentialWinnings(m, pos)}
	if !pos.Claimed {
		view.Claimable = settlement.ComputePayout(m, pos)
	}
	return view, nil
}

// ListPositions returns every position user holds.
func (s *SettlementService) ListPositions(ctx context.Context, user common.Address) ([]*settlement.Position, error) {
	return storage.ListPositionsByAddress(ctx, storage.DB(), user)
}

func (s *SettlementService) GetOdds(ctx context.Context, marketID int64) (Odds, error) {
	m, err := storage.GetMarket(ctx, storage.DB(), marketID)
	if err != nil {
		return Odds{}, err
	}
	return OddsFor(m), nil
}

// OddsFor computes display odds from a market's current pools.
func OddsFor(m *settlement.Market) Odds {
	yes, no := settlement.CalculateOdds(m.YesPool, m.NoPool)
	return Odds{Yes: yes, No: no}
}

// Activity lists recent events for user, or for everyone with a zero address.
func (s *SettlementService) Activity(ctx context.Context, user common.Address, limit int) ([]storage.Event, error) {
	return storage.ListEvents(ctx, storage.DB(), user, limit)
}

func (s *SettlementService) Ledger(ctx context.Context) (*settlement.Ledger, error) {
	return storage.GetLedger(ctx, storage.DB())
}

// Leaderboard returns the accounts with the highest balances.
func (s *SettlementService) Leaderboard(ctx context.Context, limit int) ([]storage.Account, error) {
	return storage.TopAccounts(ctx, storage.DB(), limit)
}

// Price returns the latest quote for display.
func (s *SettlementService) Price(ctx context.Context, asset string) (settlement.Quote, error) {
	return s.quotes.LatestPrice(ctx, oracle.NormalizeAsset(asset))
}

// PriceFeeds lists registered feeds.
func (s *SettlementService) PriceFeeds(ctx context.Context) ([]storage.PriceFeed, error) {
	return storage.ListPriceFeeds(ctx, storage.DB())
}
