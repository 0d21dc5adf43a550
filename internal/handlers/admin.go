package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"predictionmarket/internal/logger"
	"predictionmarket/internal/storage"
)

// WithdrawResponse reports an owner withdrawal.
type WithdrawResponse struct {
	Amount int64 `json:"amount"`
}

// AddFeedRequest registers an aggregator for an asset.
type AddFeedRequest struct {
	Asset   string `json:"asset"`
	Address string `json:"address"`
}

// CreditRequest funds an account from outside the system.
type CreditRequest struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// LedgerResponse is the owner ledger and the registered price feeds.
type LedgerResponse struct {
	Owner            string              `json:"owner"`
	FeeBalance       int64               `json:"fee_balance"`
	ForfeitedBalance int64               `json:"forfeited_balance"`
	Feeds            []storage.PriceFeed `json:"feeds"`
}

// handleWithdrawFees handles POST /api/admin/withdraw-fees
func (a *API) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r, "withdraw_fees")
	if !ok {
		return
	}
	amount, err := a.svc.WithdrawFees(r.Context(), addr)
	if err != nil {
		respondWithServiceError(w, addr.Hex(), "withdraw_fees", err)
		return
	}
	respondJSON(w, http.StatusOK, WithdrawResponse{Amount: amount})
}

// handleWithdrawForfeited handles POST /api/admin/withdraw-forfeited
func (a *API) handleWithdrawForfeited(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r, "withdraw_forfeited")
	if !ok {
		return
	}
	amount, err := a.svc.WithdrawForfeited(r.Context(), addr)
	if err != nil {
		respondWithServiceError(w, addr.Hex(), "withdraw_forfeited", err)
		return
	}
	respondJSON(w, http.StatusOK, WithdrawResponse{Amount: amount})
}

// handleAddFeed handles POST /api/admin/feeds
func (a *API) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r, "add_feed")
	if !ok {
		return
	}
	user := addr.Hex()

	var req AddFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Asset == "" || !common.IsHexAddress(req.Address) {
		respondWithError(w, "Asset and feed address are required", http.StatusBadRequest)
		return
	}

	if err := a.svc.AddPriceFeed(r.Context(), addr, req.Asset, common.HexToAddress(req.Address)); err != nil {
		respondWithServiceError(w, user, "add_feed", err)
		return
	}

	logger.Debug(user, "feed_added", fmt.Sprintf("asset=%s feed=%s", req.Asset, req.Address))
	w.WriteHeader(http.StatusNoContent)
}

// handleCredit handles POST /api/admin/credit
func (a *API) handleCredit(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r, "credit")
	if !ok {
		return
	}
	user := addr.Hex()

	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondWithError(w, "Invalid address", http.StatusBadRequest)
		return
	}

	if err := a.svc.Credit(r.Context(), addr, common.HexToAddress(req.Address), req.Amount); err != nil {
		respondWithServiceError(w, user, "credit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLedger handles GET /api/admin/ledger
func (a *API) handleLedger(w http.ResponseWriter, r *http.Request) {
	_, user := optionalCaller(r)

	ledger, err := a.svc.Ledger(r.Context())
	if err != nil {
		respondWithServiceError(w, user, "ledger", err)
		return
	}
	feeds, err := a.svc.PriceFeeds(r.Context())
	if err != nil {
		respondWithServiceError(w, user, "ledger", err)
		return
	}
	if feeds == nil {
		feeds = []storage.PriceFeed{}
	}

	respondJSON(w, http.StatusOK, LedgerResponse{
		Owner:            ledger.Owner.Hex(),
		FeeBalance:       ledger.FeeBalance,
		ForfeitedBalance: ledger.ForfeitedBalance,
		Feeds:            feeds,
	})
}
