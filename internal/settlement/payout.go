package settlement

import (
	"fmt"
	"math/big"
)

// Payout is the breakdown of what a position receives from a resolved market.
type Payout struct {
	Principal int64 `json:"principal"` // winning-side stake returned
	Winnings  int64 `json:"winnings"`  // gross share of the losing pool
	Fee       int64 `json:"fee"`       // withheld from Winnings
	Amount    int64 `json:"amount"`    // Principal + Winnings - Fee
}

// ComputePayout is the pure payout rule for a resolved market:
//
//   - both pools funded: stake + stake*losing/winning, minus the fee on the
//     winnings part only
//   - losing pool empty: the winning stake is refunded, no fee
//   - winning pool empty: nobody is paid (the losing pool is forfeited at
//     resolution)
//
// Division truncates; the dust stays in the contract balance.
func ComputePayout(m *Market, pos *Position) Payout {
	if !m.Resolved || pos == nil {
		return Payout{}
	}
	winning, losing := m.pools()
	stake := pos.Stake(m.WinningSide())
	if stake <= 0 || winning == 0 {
		return Payout{}
	}
	if losing == 0 {
		return Payout{Principal: stake, Amount: stake}
	}
	return split(stake, winning, losing, m.FeeBps)
}

// PotentialWinnings is what pos would be paid if its larger side won with the
// pools as they stand now. Zero for an empty position.
func PotentialWinnings(m *Market, pos *Position) int64 {
	if pos == nil {
		return 0
	}
	side := SideYes
	if pos.NoAmount > pos.YesAmount {
		side = SideNo
	}
	stake := pos.Stake(side)
	if stake <= 0 {
		return 0
	}

	winning, losing := m.YesPool, m.NoPool
	if side == SideNo {
		winning, losing = m.NoPool, m.YesPool
	}
	if winning == 0 {
		return 0
	}
	if losing == 0 {
		return stake
	}
	return split(stake, winning, losing, m.FeeBps).Amount
}

func split(stake, winning, losing, feeBps int64) Payout {
	gross := mulDiv(stake, losing, winning)
	fee := mulDiv(gross, feeBps, BpsDenominator)
	return Payout{
		Principal: stake,
		Winnings:  gross,
		Fee:       fee,
		Amount:    stake + gross - fee,
	}
}

// mulDiv returns a*b/c truncated, without intermediate overflow.
func mulDiv(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	x := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	return x.Quo(x, big.NewInt(c)).Int64()
}

// FormatUSDC renders base units as a dollar amount with two decimals,
// truncating sub-cent dust.
func FormatUSDC(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d USDC", sign, amount/1_000_000, amount%1_000_000/10_000)
}
