// Package settlement holds the market settlement and payout accounting model:
// bet acceptance, write-once resolution, proportional payouts with a fee on
// winnings, one-sided market handling and the owner ledger.
//
// All amounts are int64 base units of the settlement stablecoin (USDC has six
// decimals, so 1_000_000 is one dollar). Prices are fixed-point decimals.
package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultFeeBps is the fee taken from the winnings portion of a payout (1%).
const DefaultFeeBps int64 = 100

// BpsDenominator is the basis-point scale used by fee rates.
const BpsDenominator int64 = 10_000

// Side is one side of a binary market.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// ParseSide accepts "yes"/"no" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SideYes):
		return SideYes, nil
	case string(SideNo):
		return SideNo, nil
	}
	return "", ErrInvalidSide
}

// SideOf maps a boolean "is yes" flag to a Side.
func SideOf(isYes bool) Side {
	if isYes {
		return SideYes
	}
	return SideNo
}

// Market is a single prediction on an asset price crossing a target by a deadline.
type Market struct {
	ID          int64
	Question    string
	Asset       string
	TargetPrice apd.Decimal
	IsAbove     bool
	Deadline    time.Time
	MinBet      int64
	FeeBps      int64
	Creator     common.Address
	CreatedAt   time.Time

	YesPool int64
	NoPool  int64

	Resolved        bool
	Outcome         bool
	SettlementPrice apd.Decimal
	ResolvedAt      time.Time

	AccumulatedFees int64
	ForfeitedAmount int64
}

// Position is one user's cumulative stake on one market.
type Position struct {
	MarketID  int64
	User      common.Address
	YesAmount int64
	NoAmount  int64
	Claimed   bool
}

// Stake returns the amount the position holds on the given side.
func (p *Position) Stake(side Side) int64 {
	if side == SideYes {
		return p.YesAmount
	}
	return p.NoAmount
}

// IsOpen reports whether the market still accepts bets at now.
func (m *Market) IsOpen(now time.Time) bool {
	return !m.Resolved && now.Before(m.Deadline)
}

// TotalPool is the sum of both pools.
func (m *Market) TotalPool() int64 {
	return m.YesPool + m.NoPool
}

// WinningSide is only meaningful once the market is resolved.
func (m *Market) WinningSide() Side {
	return SideOf(m.Outcome)
}

// BuildQuestion renders the display question for a market, e.g.
// "Will BTC be above $130000 by 2025-01-01 00:00 UTC?".
func BuildQuestion(asset string, target *apd.Decimal, isAbove bool, deadline time.Time) string {
	dir := "below"
	if isAbove {
		dir = "above"
	}
	return fmt.Sprintf("Will %s be %s $%s by %s?", asset, dir, target.Text('f'), deadline.UTC().Format("2006-01-02 15:04 UTC"))
}

// PlaceBet records amount on side for pos. pos must belong to m.
func (m *Market) PlaceBet(pos *Position, side Side, amount int64, now time.Time) error {
	if side != SideYes && side != SideNo {
		return ErrInvalidSide
	}
	if !m.IsOpen(now) {
		return ErrMarketClosed
	}
	if amount <= 0 || amount < m.MinBet {
		return ErrBetTooSmall
	}

	if side == SideYes {
		pos.YesAmount += amount
		m.YesPool += amount
	} else {
		pos.NoAmount += amount
		m.NoPool += amount
	}
	return nil
}

// Decide applies the market condition to a settlement price.
func (m *Market) Decide(price *apd.Decimal) bool {
	c := price.Cmp(&m.TargetPrice)
	if m.IsAbove {
		return c >= 0
	}
	return c <= 0
}

// Resolve fixes the outcome from price. Resolution is write-once: a second call
// fails with ErrAlreadyResolved and leaves the market untouched.
//
// When nobody bet on the winning side the whole losing pool is forfeited here,
// once; the forfeited amount is returned so the caller can credit the ledger.
func (m *Market) Resolve(price *apd.Decimal, now time.Time) (int64, error) {
	if m.Resolved {
		return 0, ErrAlreadyResolved
	}
	if now.Before(m.Deadline) {
		return 0, ErrNotYetExpired
	}
	if price == nil {
		return 0, ErrNoPriceData
	}

	m.Outcome = m.Decide(price)
	m.Resolved = true
	m.ResolvedAt = now
	m.SettlementPrice.Set(price)

	winning, losing := m.pools()
	if winning == 0 && losing > 0 {
		m.ForfeitedAmount += losing
		return losing, nil
	}
	return 0, nil
}

// Claim settles pos against the resolved market and marks it claimed.
func (m *Market) Claim(pos *Position) (Payout, error) {
	if !m.Resolved {
		return Payout{}, ErrNotResolved
	}
	if pos.Claimed {
		return Payout{}, ErrAlreadyClaimed
	}
	p := ComputePayout(m, pos)
	if p.Amount <= 0 {
		return Payout{}, ErrNothingToClaim
	}

	pos.Claimed = true
	m.AccumulatedFees += p.Fee
	return p, nil
}

// pools returns (winning, losing) for a resolved market.
func (m *Market) pools() (int64, int64) {
	if m.Outcome {
		return m.YesPool, m.NoPool
	}
	return m.NoPool, m.YesPool
}
