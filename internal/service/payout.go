package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"predictionmarket/internal/logger"
	"predictionmarket/internal/oracle"
	"predictionmarket/internal/settlement"
	"predictionmarket/internal/storage"
)

// ClaimResult is what a claim paid out.
type ClaimResult struct {
	MarketID int64             `json:"market_id"`
	Payout   settlement.Payout `json:"payout"`
	Balance  int64             `json:"balance"`
}

// Claim pays user's winnings (or refund) from a resolved market into their
// account. The fee withheld from the winnings goes to the owner ledger.
func (s *SettlementService) Claim(ctx context.Context, user common.Address, marketID int64) (*ClaimResult, error) {
	now := s.now()
	var (
		m   *settlement.Market
		res = &ClaimResult{MarketID: marketID}
	)
	err := storage.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = storage.GetMarket(ctx, tx, marketID)
		if err != nil {
			return err
		}
		pos, err := storage.GetPosition(ctx, tx, marketID, user)
		if err != nil {
			return err
		}
		res.Payout, err = m.Claim(pos)
		if err != nil {
			return err
		}

		if err := storage.SavePosition(ctx, tx, pos); err != nil {
			return err
		}
		if err := storage.UpdateMarket(ctx, tx, m); err != nil {
			return err
		}
		if err := storage.Credit(ctx, tx, user, res.Payout.Amount, now); err != nil {
			return err
		}
		if res.Payout.Fee > 0 {
			ledger, err := storage.GetLedger(ctx, tx)
			if err != nil {
				return err
			}
			ledger.CreditFees(res.Payout.Fee)
			if err := storage.SaveLedger(ctx, tx, ledger); err != nil {
				return err
			}
		}
		if err := storage.RecordEvent(ctx, tx, &storage.Event{
			Type:      storage.EventWinningsClaimed,
			MarketID:  marketID,
			Address:   user,
			Amount:    res.Payout.Amount,
			Details:   fmt.Sprintf("fee=%d", res.Payout.Fee),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		acc, err := storage.GetAccount(ctx, tx, user)
		if err != nil {
			return err
		}
		res.Balance = acc.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(user.Hex(), "winnings_claimed", fmt.Sprintf("market_id=%d amount=%d fee=%d", marketID, res.Payout.Amount, res.Payout.Fee))

	if s.notificationService != nil {
		s.notificationService.PublishClaim(m, user, res.Payout)
	}
	return res, nil
}

// WithdrawFees moves the whole fee balance to the owner's account.
func (s *SettlementService) WithdrawFees(ctx context.Context, caller common.Address) (int64, error) {
	return s.withdraw(ctx, caller, storage.EventFeesWithdrawn, (*settlement.Ledger).WithdrawFees)
}

// WithdrawForfeited moves the whole forfeited balance to the owner's account.
func (s *SettlementService) WithdrawForfeited(ctx context.Context, caller common.Address) (int64, error) {
	return s.withdraw(ctx, caller, storage.EventForfeitWithdrawn, (*settlement.Ledger).WithdrawForfeited)
}

func (s *SettlementService) withdraw(ctx context.Context, caller common.Address, event storage.EventType,
	drain func(*settlement.Ledger, common.Address) (int64, error)) (int64, error) {
	now := s.now()
	var amount int64
	err := storage.WithTx(ctx, func(tx *sql.Tx) error {
		ledger, err := storage.GetLedger(ctx, tx)
		if err != nil {
			return err
		}
		if amount, err = drain(ledger, caller); err != nil {
			return err
		}
		if amount == 0 {
			return nil
		}
		if err := storage.SaveLedger(ctx, tx, ledger); err != nil {
			return err
		}
		if err := storage.Credit(ctx, tx, caller, amount, now); err != nil {
			return err
		}
		return storage.RecordEvent(ctx, tx, &storage.Event{
			Type:      event,
			Address:   caller,
			Amount:    amount,
			CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}

	logger.Info(caller.Hex(), "ledger_withdraw", fmt.Sprintf("type=%s amount=%d", event, amount))
	return amount, nil
}

// AddPriceFeed registers or replaces the aggregator for an asset. Owner only.
func (s *SettlementService) AddPriceFeed(ctx context.Context, caller common.Address, asset string, feed common.Address) error {
	asset = oracle.NormalizeAsset(asset)
	if asset == "" || feed == (common.Address{}) {
		return fmt.Errorf("%w: asset and feed address are required", ErrInvalidMarket)
	}
	now := s.now()
	err := storage.WithTx(ctx, func(tx *sql.Tx) error {
		ledger, err := storage.GetLedger(ctx, tx)
		if err != nil {
			return err
		}
		if err := ledger.Authorize(caller); err != nil {
			return err
		}
		if err := storage.UpsertPriceFeed(ctx, tx, asset, feed, now); err != nil {
			return err
		}
		return storage.RecordEvent(ctx, tx, &storage.Event{
			Type:      storage.EventPriceFeedUpdated,
			Address:   caller,
			Details:   asset + "=" + feed.Hex(),
			CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}

	logger.Info(caller.Hex(), "price_feed_added", fmt.Sprintf("asset=%s feed=%s", asset, feed.Hex()))
	return nil
}

// Credit funds an account. Owner only; it stands in for a stablecoin deposit.
func (s *SettlementService) Credit(ctx context.Context, caller, to common.Address, amount int64) error {
	if amount <= 0 {
		return settlement.ErrInvalidAmount
	}
	now := s.now()
	err := storage.WithTx(ctx, func(tx *sql.Tx) error {
		ledger, err := storage.GetLedger(ctx, tx)
		if err != nil {
			return err
		}
		if err := ledger.Authorize(caller); err != nil {
			return err
		}
		if err := storage.Credit(ctx, tx, to, amount, now); err != nil {
			return err
		}
		return storage.RecordEvent(ctx, tx, &storage.Event{
			Type:      storage.EventCredit,
			Address:   to,
			Amount:    amount,
			Details:   "by " + caller.Hex(),
			CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}

	logger.Info(caller.Hex(), "account_credited", fmt.Sprintf("to=%s amount=%d", to.Hex(), amount))
	return nil
}
