package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// GetAccount retrieves an account by address. A missing account is not an error.
func GetAccount(ctx context.Context, q Querier, addr common.Address) (*Account, error) {
	var (
		acc              Account
		created, updated int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT balance, created_at, updated_at
		FROM accounts
		WHERE address = ?
	`, addr.Hex()).Scan(&acc.Balance, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	acc.Address = addr
	acc.CreatedAt = fromUnix(created)
	acc.UpdatedAt = fromUnix(updated)
	return &acc, nil
}

// EnsureAccount returns the account for addr, opening it with grant as the
// starting balance if it does not exist yet. created reports whether the
// account was opened by this call.
func EnsureAccount(ctx context.Context, q Querier, addr common.Address, grant int64, now time.Time) (acc *Account, created bool, err error) {
	acc, err = GetAccount(ctx, q, addr)
	if err != nil || acc != nil {
		return acc, false, err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO accounts (address, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, addr.Hex(), grant, now.Unix(), now.Unix())
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert account: %w", err)
	}

	acc, err = GetAccount(ctx, q, addr)
	return acc, true, err
}

// Debit moves amount out of addr's balance. It fails with ErrInsufficientFunds
// when the account is missing or cannot cover the amount; nothing is changed then.
func Debit(ctx context.Context, q Querier, addr common.Address, amount int64, now time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("debit of non-positive amount %d", amount)
	}
	res, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance - ?, updated_at = ?
		WHERE address = ? AND balance >= ?
	`, amount, now.Unix(), addr.Hex(), amount)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	if n == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// Credit adds amount to addr's balance, opening the account if needed.
func Credit(ctx context.Context, q Querier, addr common.Address, amount int64, now time.Time) error {
	if amount < 0 {
		return fmt.Errorf("credit of negative amount %d", amount)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (address, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			balance = balance + excluded.balance,
			updated_at = excluded.updated_at
	`, addr.Hex(), amount, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

// TopAccounts returns the richest accounts, highest balance first.
func TopAccounts(ctx context.Context, q Querier, limit int) ([]Account, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := q.QueryContext(ctx, `
		SELECT address, balance, created_at, updated_at
		FROM accounts
		ORDER BY balance DESC, address ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var (
			acc              Account
			addr             string
			created, updated int64
		)
		if err := rows.Scan(&addr, &acc.Balance, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		acc.Address = common.HexToAddress(addr)
		acc.CreatedAt = fromUnix(created)
		acc.UpdatedAt = fromUnix(updated)
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
