// Package handlers exposes the settlement service as a JSON HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"predictionmarket/internal/auth"
	"predictionmarket/internal/logger"
	"predictionmarket/internal/service"
	"predictionmarket/internal/settlement"
	"predictionmarket/internal/storage"
)

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error string `json:"error"`
}

// API serves the /api routes.
type API struct {
	svc *service.SettlementService
}

func NewAPI(svc *service.SettlementService) *API {
	return &API{svc: svc}
}

// Routes registers every /api route on a new mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ping", PingHandler)
	mux.HandleFunc("GET /api/me", a.HandleMe)
	mux.HandleFunc("GET /api/markets", a.handleListMarkets)
	mux.HandleFunc("POST /api/markets", a.handleCreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", a.handleGetMarket)
	mux.HandleFunc("GET /api/markets/{id}/odds", a.handleGetOdds)
	mux.HandleFunc("POST /api/markets/{id}/resolve", a.handleResolveMarket)
	mux.HandleFunc("POST /api/markets/{id}/claim", a.handleClaim)
	mux.HandleFunc("POST /api/bets", a.HandleBets)
	mux.HandleFunc("GET /api/activity", a.HandleActivity)
	mux.HandleFunc("GET /api/leaderboard", a.HandleLeaderboard)
	mux.HandleFunc("GET /api/prices/{asset}", a.HandlePrice)
	mux.HandleFunc("POST /api/admin/withdraw-fees", a.handleWithdrawFees)
	mux.HandleFunc("POST /api/admin/withdraw-forfeited", a.handleWithdrawForfeited)
	mux.HandleFunc("POST /api/admin/feeds", a.handleAddFeed)
	mux.HandleFunc("POST /api/admin/credit", a.handleCredit)
	mux.HandleFunc("GET /api/admin/ledger", a.handleLedger)
	return mux
}

func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondWithServiceError maps a service error onto a status code. Named
// settlement conditions keep their message; anything else is a 500.
func respondWithServiceError(w http.ResponseWriter, user, action string, err error) {
	status := statusFor(err)
	logger.Debug(user, action+"_failed", "error="+err.Error())
	if status == http.StatusInternalServerError {
		respondWithError(w, "Internal error", status)
		return
	}
	respondWithError(w, rootMessage(err), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, settlement.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrMarketNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, settlement.ErrNoPriceData),
		errors.Is(err, settlement.ErrInvalidResponse):
		return http.StatusServiceUnavailable
	case errors.Is(err, settlement.ErrMarketClosed),
		errors.Is(err, settlement.ErrAlreadyResolved),
		errors.Is(err, settlement.ErrNotYetExpired),
		errors.Is(err, settlement.ErrAlreadyClaimed),
		errors.Is(err, settlement.ErrNotResolved),
		errors.Is(err, settlement.ErrNothingToClaim):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrBetTooSmall),
		errors.Is(err, settlement.ErrInvalidSide),
		errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidMarket),
		errors.Is(err, service.ErrAssetNotSupported):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// rootMessage returns the message of the named condition inside err.
func rootMessage(err error) string {
	named := []error{
		settlement.ErrUnauthorized, storage.ErrMarketNotFound, storage.ErrInsufficientFunds,
		settlement.ErrNoPriceData, settlement.ErrInvalidResponse, settlement.ErrMarketClosed,
		settlement.ErrAlreadyResolved, settlement.ErrNotYetExpired, settlement.ErrAlreadyClaimed,
		settlement.ErrNotResolved, settlement.ErrNothingToClaim, settlement.ErrBetTooSmall,
		settlement.ErrInvalidSide, settlement.ErrInvalidAmount, service.ErrAssetNotSupported,
	}
	for _, e := range named {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	// validation errors carry useful detail
	return err.Error()
}

// caller returns the authenticated wallet, writing a 401 if there is none.
func caller(w http.ResponseWriter, r *http.Request, action string) (common.Address, bool) {
	addr, ok := auth.GetAddressFromContext(r.Context())
	if !ok {
		logger.Debug("", action+"_unauthorized", "path="+r.URL.Path)
		respondWithError(w, "Unauthorized: wallet signature required", http.StatusUnauthorized)
	}
	return addr, ok
}

// optionalCaller returns the authenticated wallet or the zero address.
func optionalCaller(r *http.Request) (common.Address, string) {
	addr, ok := auth.GetAddressFromContext(r.Context())
	if !ok {
		return common.Address{}, ""
	}
	return addr, addr.Hex()
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, "Invalid market ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
