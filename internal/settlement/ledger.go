package settlement

import "github.com/ethereum/go-ethereum/common"

// Ledger is the process-wide record of owner-withdrawable balances collected
// across all markets. Per-market totals live on Market; these are the
// counters the owner drains.
type Ledger struct {
	Owner            common.Address
	FeeBalance       int64
	ForfeitedBalance int64
}

// Authorize fails unless caller is the ledger owner.
func (l *Ledger) Authorize(caller common.Address) error {
	if l.Owner == (common.Address{}) || caller != l.Owner {
		return ErrUnauthorized
	}
	return nil
}

// CreditFees records fee collected by a claim.
func (l *Ledger) CreditFees(amount int64) {
	if amount > 0 {
		l.FeeBalance += amount
	}
}

// CreditForfeited records stake forfeited at resolution.
func (l *Ledger) CreditForfeited(amount int64) {
	if amount > 0 {
		l.ForfeitedBalance += amount
	}
}

// WithdrawFees drains the whole fee balance to the owner.
func (l *Ledger) WithdrawFees(caller common.Address) (int64, error) {
	if err := l.Authorize(caller); err != nil {
		return 0, err
	}
	amount := l.FeeBalance
	l.FeeBalance = 0
	return amount, nil
}

// WithdrawForfeited drains the whole forfeited balance to the owner.
func (l *Ledger) WithdrawForfeited(caller common.Address) (int64, error) {
	if err := l.Authorize(caller); err != nil {
		return 0, err
	}
	amount := l.ForfeitedBalance
	l.ForfeitedBalance = 0
	return amount, nil
}
