package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"predictionmarket/internal/logger"
	"predictionmarket/internal/oracle"
	"predictionmarket/internal/settlement"
	"predictionmarket/internal/storage"
)

var (
	ErrAssetNotSupported = errors.New("asset not supported")
	ErrInvalidMarket     = errors.New("invalid market parameters")
)

// Config holds the settlement parameters the service applies.
type Config struct {
	FeeBps         int64
	PriceTolerance time.Duration
	MinDuration    time.Duration
	MaxDuration    time.Duration
	WelcomeGrant   int64
}

// DefaultConfig mirrors the defaults of the config package.
func DefaultConfig() Config {
	return Config{
		FeeBps:         settlement.DefaultFeeBps,
		PriceTolerance: settlement.DefaultPriceTolerance,
		MinDuration:    time.Hour,
		MaxDuration:    30 * 24 * time.Hour,
	}
}

// SettlementService runs every state-changing operation in one SQL
// transaction: load, apply the settlement model, persist, record the event,
// commit. Any error rolls the whole operation back.
type SettlementService struct {
	cfg                 Config
	oracle              oracle.Oracle
	quotes              oracle.Oracle
	notificationService *NotificationService
	validate            *validator.Validate
	now                 func() time.Time
}

// NewSettlementService creates the service. src is read at resolution time and
// also serves price display until SetQuoteSource installs a cached reader.
func NewSettlementService(cfg Config, src oracle.Oracle) *SettlementService {
	return &SettlementService{
		cfg:      cfg,
		oracle:   src,
		quotes:   src,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetQuoteSource sets the oracle used for price display.
func (s *SettlementService) SetQuoteSource(o oracle.Oracle) {
	s.quotes = o
}

// SetNotificationService sets the notification service for channel broadcasts
func (s *SettlementService) SetNotificationService(ns *NotificationService) {
	s.notificationService = ns
}

// Now returns the service clock, the time every operation checks deadlines
// against.
func (s *SettlementService) Now() time.Time {
	return s.now()
}

// SetClock replaces the time source.
func (s *SettlementService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateMarketInput is the caller-supplied definition of a market.
type CreateMarketInput struct {
	Asset           string `json:"asset" validate:"required,alphanum,max=16"`
	TargetPrice     string `json:"target_price" validate:"required,numeric"`
	IsAbove         bool   `json:"is_above"`
	DurationSeconds int64  `json:"duration_seconds" validate:"required,min=1"`
	MinBet          int64  `json:"min_bet" validate:"required,min=1"`
}

// CreateMarket opens a market on an asset with a registered price feed.
func (s *SettlementService) CreateMarket(ctx context.Context, creator common.Address, in CreateMarketInput) (*settlement.Market, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMarket, err)
	}
	target, _, err := apd.NewFromString(in.TargetPrice)
	if err != nil || target.Sign() <= 0 {
		return nil, fmt.Errorf("%w: target price must be positive", ErrInvalidMarket)
	}
	duration := time.Duration(in.DurationSeconds) * time.Second
	if duration < s.cfg.MinDuration || (s.cfg.MaxDuration > 0 && duration > s.cfg.MaxDuration) {
		return nil, fmt.Errorf("%w: duration must be between %s and %s", ErrInvalidMarket, s.cfg.MinDuration, s.cfg.MaxDuration)
	}

	now := s.now()
	m := &settlement.Market{
		Asset:     oracle.NormalizeAsset(in.Asset),
		IsAbove:   in.IsAbove,
		Deadline:  now.Add(duration).Truncate(time.Second),
		MinBet:    in.MinBet,
		FeeBps:    s.cfg.FeeBps,
		Creator:   creator,
		CreatedAt: now,
	}
	m.TargetPrice.Set(target)
	m.Question = settlement.BuildQuestion(m.Asset, &m.TargetPrice, m.IsAbove, m.Deadline)

	err = storage.WithTx(ctx, func(tx *sql.Tx) error {
		feed, err := storage.GetPriceFeed(ctx, tx, m.Asset)
		if err != nil {
			return err
		}
		if feed == nil {
			return ErrAssetNotSupported
		}
		if m.ID, err = storage.InsertMarket(ctx, tx, m); err != nil {
			return err
		}
		return storage.RecordEvent(ctx, tx, &storage.Event{
			Type:      storage.EventMarketCreated,
			MarketID:  m.ID,
			Address:   creator,
			Details:   m.Question,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(creator.Hex(), "market_created", fmt.Sprintf("market_id=%d asset=%s target=%s", m.ID, m.Asset, in.TargetPrice))

	if s.notificationService != nil {
		s.notificationService.PublishNewMarket(m)
	}
	return m, nil
}

// PlaceBet stakes amount on side of a market, debiting the bettor's account.
func (s *SettlementService) PlaceBet(ctx context.Context, user common.Address, marketID int64, side settlement.Side, amount int64) (*settlement.Position, error) {
	now := s.now()

	var pos *settlement.Position
	err := storage.WithTx(ctx, func(tx *sql.Tx) error {
		m, err := storage.GetMarket(ctx, tx, marketID)
		if err != nil {
			return err
		}
		pos, err = storage.GetPosition(ctx, tx, marketID, user)
		if err != nil {
			return err
		}
		if err := m.PlaceBet(pos, side, amount, now); err != nil {
			return err
		}
		if err := storage.Debit(ctx, tx, user, amount, now); err != nil {
			return err
		}
		if err := storage.SavePosition(ctx, tx, pos); err != nil {
			return err
		}
		if err := storage.UpdateMarket(ctx, tx, m); err != nil {
			return err
		}
		return storage.RecordEvent(ctx, tx, &storage.Event{
			Type:      storage.EventBetPlaced,
			MarketID:  marketID,
			Address:   user,
			Amount:    amount,
			Details:   string(side),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(user.Hex(), "bet_placed", fmt.Sprintf("market_id=%d side=%s amount=%d", marketID, side, amount))
	return pos, nil
}

// ResolveMarket fixes the outcome of an expired market from the oracle. Anyone
// may call it. A missing or stale quote fails with ErrNoPriceData and leaves
// the market open for a later attempt.
func (s *SettlementService) ResolveMarket(ctx context.Context, marketID int64) (*settlement.Market, error) {
	m, err := storage.GetMarket(ctx, storage.DB(), marketID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	// Cheap checks first so an early or repeated call never hits the oracle.
	if m.Resolved {
		return nil, settlement.ErrAlreadyResolved
	}
	if now.Before(m.Deadline) {
		return nil, settlement.ErrNotYetExpired
	}

	quote, err := s.oracle.LatestPrice(ctx, m.Asset)
	if err != nil {
		return nil, err
	}
	if err := settlement.CheckQuote(&quote, m.Deadline, now, s.cfg.PriceTolerance); err != nil {
		return nil, err
	}

	var forfeited int64
	err = storage.WithTx(ctx, func(tx *sql.Tx) error {
		// Reload inside the transaction; another caller may have won the race.
		m, err = storage.GetMarket(ctx, tx, marketID)
		if err != nil {
			return err
		}
		if forfeited, err = m.Resolve(&quote.Price, now); err != nil {
			return err
		}
		if err := storage.UpdateMarket(ctx, tx, m); err != nil {
			return err
		}
		if forfeited > 0 {
			ledger, err := storage.GetLedger(ctx, tx)
			if err != nil {
				return err
			}
			ledger.CreditForfeited(forfeited)
			if err := storage.SaveLedger(ctx, tx, ledger); err != nil {
				return err
			}
			if err := storage.RecordEvent(ctx, tx, &storage.Event{
				Type:      storage.EventStakeForfeited,
				MarketID:  marketID,
				Amount:    forfeited,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		return storage.RecordEvent(ctx, tx, &storage.Event{
			Type:      storage.EventMarketResolved,
			MarketID:  marketID,
			Amount:    m.TotalPool(),
			Details:   fmt.Sprintf("%s at %s", m.WinningSide(), quote.Price.Text('f')),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("", "market_resolved", fmt.Sprintf("market_id=%d outcome=%s price=%s forfeited=%d",
		marketID, m.WinningSide(), quote.Price.Text('f'), forfeited))

	if s.notificationService != nil {
		s.notificationService.PublishResolution(m, s.countWinners(ctx, m))
	}
	return m, nil
}

// countWinners returns how many positions hold a stake on the winning side of
// a resolved market. A read failure counts as zero.
func (s *SettlementService) countWinners(ctx context.Context, m *settlement.Market) int {
	positions, err := storage.ListPositionsByMarket(ctx, storage.DB(), m.ID)
	if err != nil {
		logger.Info("", "count_winners_failed", fmt.Sprintf("market_id=%d error=%s", m.ID, err.Error()))
		return 0
	}
	winners := 0
	for _, p := range positions {
		if p.Stake(m.WinningSide()) > 0 {
			winners++
		}
	}
	return winners
}

// EnsureAccount opens the caller's account on first contact, crediting the
// welcome grant once.
func (s *SettlementService) EnsureAccount(ctx context.Context, addr common.Address) (*storage.Account, error) {
	now := s.now()
	var acc *storage.Account
	err := storage.WithTx(ctx, func(tx *sql.Tx) error {
		var (
			created bool
			err     error
		)
		acc, created, err = storage.EnsureAccount(ctx, tx, addr, s.cfg.WelcomeGrant, now)
		if err != nil || !created || s.cfg.WelcomeGrant <= 0 {
			return err
		}
		return storage.RecordEvent(ctx, tx, &storage.Event{
			Type:      storage.EventWelcomeGrant,
			Address:   addr,
			Amount:    s.cfg.WelcomeGrant,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}
