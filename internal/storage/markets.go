package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"predictionmarket/internal/settlement"
)

const marketColumns = `id, question, asset, target_price, is_above, deadline, min_bet, fee_bps,
	creator, created_at, yes_pool, no_pool, resolved, outcome, settlement_price, resolved_at,
	accumulated_fees, forfeited_amount`

// InsertMarket stores a new market and returns its id. Ids start at 1.
func InsertMarket(ctx context.Context, q Querier, m *settlement.Market) (int64, error) {
	result, err := q.ExecContext(ctx, `
		INSERT INTO markets (question, asset, target_price, is_above, deadline, min_bet, fee_bps,
			creator, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Question, m.Asset, m.TargetPrice.Text('f'), boolToInt(m.IsAbove), m.Deadline.Unix(),
		m.MinBet, m.FeeBps, m.Creator.Hex(), toUnix(m.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert market: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// GetMarket retrieves a market by id, or ErrMarketNotFound.
func GetMarket(ctx context.Context, q Querier, id int64) (*settlement.Market, error) {
	row := q.QueryRowContext(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = ?`, id)
	m, err := scanMarket(row)
	if err == sql.ErrNoRows {
		return nil, ErrMarketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	return m, nil
}

// UpdateMarket persists the mutable state of a market: pools, resolution and
// per-market totals. The definition columns are never rewritten.
func UpdateMarket(ctx context.Context, q Querier, m *settlement.Market) error {
	settlementPrice := ""
	if m.Resolved {
		settlementPrice = m.SettlementPrice.Text('f')
	}
	result, err := q.ExecContext(ctx, `
		UPDATE markets
		SET yes_pool = ?, no_pool = ?, resolved = ?, outcome = ?, settlement_price = ?,
			resolved_at = ?, accumulated_fees = ?, forfeited_amount = ?
		WHERE id = ?
	`, m.YesPool, m.NoPool, boolToInt(m.Resolved), boolToInt(m.Outcome), settlementPrice,
		toUnix(m.ResolvedAt), m.AccumulatedFees, m.ForfeitedAmount, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update market: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrMarketNotFound
	}
	return nil
}

// ListMarkets returns markets matching filter. Open markets come soonest
// deadline first; resolved ones most recently resolved first.
func ListMarkets(ctx context.Context, q Querier, filter MarketFilter) ([]*settlement.Market, error) {
	var (
		where []string
		args  []any
	)
	if filter.Resolved != nil {
		where = append(where, "resolved = ?")
		args = append(args, boolToInt(*filter.Resolved))
	}
	if filter.Creator != nil {
		where = append(where, "creator = ?")
		args = append(args, filter.Creator.Hex())
	}

	query := `SELECT ` + marketColumns + ` FROM markets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY resolved ASC, CASE WHEN resolved = 0 THEN deadline ELSE -resolved_at END ASC, id ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	return queryMarkets(ctx, q, query, args...)
}

// ListExpiredUnresolved returns markets past their deadline that have not
// been resolved yet, oldest deadline first.
func ListExpiredUnresolved(ctx context.Context, q Querier, now time.Time) ([]*settlement.Market, error) {
	return queryMarkets(ctx, q, `
		SELECT `+marketColumns+`
		FROM markets
		WHERE resolved = 0 AND deadline <= ?
		ORDER BY deadline ASC
	`, now.Unix())
}

func queryMarkets(ctx context.Context, q Querier, query string, args ...any) ([]*settlement.Market, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query markets: %w", err)
	}
	defer rows.Close()

	var markets []*settlement.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMarket(s scanner) (*settlement.Market, error) {
	var (
		m                          settlement.Market
		target, price, creator     string
		isAbove, resolved, outcome int
		deadline, created, resAt   int64
	)
	err := s.Scan(
		&m.ID,
		&m.Question,
		&m.Asset,
		&target,
		&isAbove,
		&deadline,
		&m.MinBet,
		&m.FeeBps,
		&creator,
		&created,
		&m.YesPool,
		&m.NoPool,
		&resolved,
		&outcome,
		&price,
		&resAt,
		&m.AccumulatedFees,
		&m.ForfeitedAmount,
	)
	if err != nil {
		return nil, err
	}

	if _, _, err := m.TargetPrice.SetString(target); err != nil {
		return nil, fmt.Errorf("market %d: bad target price %q: %w", m.ID, target, err)
	}
	if price != "" {
		if _, _, err := m.SettlementPrice.SetString(price); err != nil {
			return nil, fmt.Errorf("market %d: bad settlement price %q: %w", m.ID, price, err)
		}
	}
	m.IsAbove = isAbove != 0
	m.Resolved = resolved != 0
	m.Outcome = outcome != 0
	m.Deadline = fromUnix(deadline)
	m.CreatedAt = fromUnix(created)
	m.ResolvedAt = fromUnix(resAt)
	m.Creator = common.HexToAddress(creator)
	return &m, nil
}
