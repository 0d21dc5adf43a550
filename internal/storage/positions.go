package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"predictionmarket/internal/settlement"
)

// GetPosition returns addr's position on a market. A user who never bet gets
// an empty position rather than an error.
func GetPosition(ctx context.Context, q Querier, marketID int64, addr common.Address) (*settlement.Position, error) {
	pos := &settlement.Position{MarketID: marketID, User: addr}
	var claimed int
	err := q.QueryRowContext(ctx, `
		SELECT yes_amount, no_amount, claimed
		FROM positions
		WHERE market_id = ? AND address = ?
	`, marketID, addr.Hex()).Scan(&pos.YesAmount, &pos.NoAmount, &claimed)
	if err == sql.ErrNoRows {
		return pos, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	pos.Claimed = claimed != 0
	return pos, nil
}

// SavePosition writes a position, creating the row on first bet.
func SavePosition(ctx context.Context, q Querier, pos *settlement.Position) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO positions (market_id, address, yes_amount, no_amount, claimed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(market_id, address) DO UPDATE SET
			yes_amount = excluded.yes_amount,
			no_amount = excluded.no_amount,
			claimed = excluded.claimed
	`, pos.MarketID, pos.User.Hex(), pos.YesAmount, pos.NoAmount, boolToInt(pos.Claimed))
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// ListPositionsByAddress returns every position addr holds, newest market first.
func ListPositionsByAddress(ctx context.Context, q Querier, addr common.Address) ([]*settlement.Position, error) {
	return queryPositions(ctx, q, `
		SELECT market_id, address, yes_amount, no_amount, claimed
		FROM positions
		WHERE address = ?
		ORDER BY market_id DESC
	`, addr.Hex())
}

// ListPositionsByMarket returns every position on a market.
func ListPositionsByMarket(ctx context.Context, q Querier, marketID int64) ([]*settlement.Position, error) {
	return queryPositions(ctx, q, `
		SELECT market_id, address, yes_amount, no_amount, claimed
		FROM positions
		WHERE market_id = ?
		ORDER BY address ASC
	`, marketID)
}

func queryPositions(ctx context.Context, q Querier, query string, args ...any) ([]*settlement.Position, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*settlement.Position
	for rows.Next() {
		var (
			pos     settlement.Position
			addr    string
			claimed int
		)
		if err := rows.Scan(&pos.MarketID, &addr, &pos.YesAmount, &pos.NoAmount, &claimed); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		pos.User = common.HexToAddress(addr)
		pos.Claimed = claimed != 0
		positions = append(positions, &pos)
	}
	return positions, rows.Err()
}
