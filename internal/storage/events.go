package storage

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// RecordEvent appends e to the activity log. An empty ID is filled with a
// fresh UUID and written back to e.
func RecordEvent(ctx context.Context, q Querier, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO events (id, type, market_id, address, amount, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Type), e.MarketID, e.Address.Hex(), e.Amount, e.Details, toUnix(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events for addr, newest first. A zero
// address lists events for everyone.
func ListEvents(ctx context.Context, q Querier, addr common.Address, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, type, market_id, address, amount, details, created_at FROM events`
	args := []any{}
	if addr != (common.Address{}) {
		query += ` WHERE address = ?`
		args = append(args, addr.Hex())
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			typ     string
			address string
			created int64
		)
		if err := rows.Scan(&e.ID, &typ, &e.MarketID, &address, &e.Amount, &e.Details, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = EventType(typ)
		e.Address = common.HexToAddress(address)
		e.CreatedAt = fromUnix(created)
		events = append(events, e)
	}
	return events, rows.Err()
}
