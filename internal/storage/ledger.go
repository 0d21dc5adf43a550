package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"predictionmarket/internal/settlement"
)

// GetLedger loads the single ledger row. Before SetLedgerOwner has run it
// returns an empty ledger with no owner, which authorizes nobody.
func GetLedger(ctx context.Context, q Querier) (*settlement.Ledger, error) {
	var (
		l     settlement.Ledger
		owner string
	)
	err := q.QueryRowContext(ctx, `
		SELECT owner, fee_balance, forfeited_balance
		FROM ledger
		WHERE id = 1
	`).Scan(&owner, &l.FeeBalance, &l.ForfeitedBalance)
	if err == sql.ErrNoRows {
		return &l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	l.Owner = common.HexToAddress(owner)
	return &l, nil
}

// SaveLedger writes the ledger balances. The owner is only set by SetLedgerOwner.
func SaveLedger(ctx context.Context, q Querier, l *settlement.Ledger) error {
	_, err := q.ExecContext(ctx, `
		UPDATE ledger
		SET fee_balance = ?, forfeited_balance = ?
		WHERE id = 1
	`, l.FeeBalance, l.ForfeitedBalance)
	if err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

// SetLedgerOwner creates the ledger row on first start and sets its owner,
// keeping any balances already collected.
func SetLedgerOwner(ctx context.Context, q Querier, owner common.Address) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger (id, owner) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET owner = excluded.owner
	`, owner.Hex())
	if err != nil {
		return fmt.Errorf("failed to set ledger owner: %w", err)
	}
	return nil
}
