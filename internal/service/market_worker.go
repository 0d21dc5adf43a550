package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"predictionmarket/internal/logger"
	"predictionmarket/internal/settlement"
	"predictionmarket/internal/storage"
)

// DefaultWorkerInterval is how often expired markets are swept.
const DefaultWorkerInterval = time.Minute

// MarketWorker resolves markets once their deadline has passed
type MarketWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	ticker   *time.Ticker
	interval time.Duration
	service  *SettlementService
	done     chan struct{}
}

// NewMarketWorker creates a new market worker
func NewMarketWorker(svc *SettlementService, interval time.Duration) *MarketWorker {
	if interval <= 0 {
		interval = DefaultWorkerInterval
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &MarketWorker{
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
		service:  svc,
		done:     make(chan struct{}),
	}
}

// Start begins the background worker
func (w *MarketWorker) Start() {
	logger.Debug("", "market_worker_started", fmt.Sprintf("interval=%v", w.interval))
	w.ticker = time.NewTicker(w.interval)

	// Run immediately on start
	w.resolveExpiredMarkets()

	// Then run on ticker
	go func() {
		defer close(w.done)
		for {
			select {
			case <-w.ticker.C:
				w.resolveExpiredMarkets()
			case <-w.ctx.Done():
				logger.Debug("", "market_worker_stopped", "")
				return
			}
		}
	}()
}

// Stop stops the background worker and waits for the current sweep to end
func (w *MarketWorker) Stop() {
	if w.ticker != nil {
		w.ticker.Stop()
	}
	w.cancel()
	if w.ticker != nil {
		<-w.done
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *MarketWorker) Run(ctx context.Context) error {
	w.Start()
	<-ctx.Done()
	w.Stop()
	return nil
}

// resolveExpiredMarkets resolves every unresolved market past its deadline.
// Markets without usable price data stay open and are retried next tick.
func (w *MarketWorker) resolveExpiredMarkets() (resolved int) {
	if storage.DB() == nil {
		logger.Debug("", "market_worker_no_db", "")
		return 0
	}

	markets, err := storage.ListExpiredUnresolved(w.ctx, storage.DB(), w.service.now())
	if err != nil {
		logger.Info("", "market_worker_query_failed", fmt.Sprintf("error=%s", err.Error()))
		return 0
	}

	for _, m := range markets {
		if w.ctx.Err() != nil {
			return resolved
		}
		_, err := w.service.ResolveMarket(w.ctx, m.ID)
		switch {
		case err == nil:
			resolved++
		case errors.Is(err, settlement.ErrAlreadyResolved):
			// resolved by a caller between the query and now
		case errors.Is(err, settlement.ErrNoPriceData), errors.Is(err, settlement.ErrInvalidResponse):
			logger.Info("", "market_worker_price_unavailable", fmt.Sprintf("market_id=%d error=%s", m.ID, err.Error()))
		default:
			logger.Info("", "market_worker_resolve_failed", fmt.Sprintf("market_id=%d error=%s", m.ID, err.Error()))
		}
	}

	if resolved > 0 {
		logger.Info("", "market_worker_resolved_markets", fmt.Sprintf("count=%d", resolved))
	}
	return resolved
}
