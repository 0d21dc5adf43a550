package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"predictionmarket/internal/logger"
	"predictionmarket/internal/settlement"
)

// PlaceBetRequest is the request body for POST /api/bets
type PlaceBetRequest struct {
	MarketID int64  `json:"market_id"`
	Side     string `json:"side"`
	Amount   int64  `json:"amount"`
}

// PlaceBetResponse reports the caller's position after the bet.
type PlaceBetResponse struct {
	MarketID  int64 `json:"market_id"`
	YesAmount int64 `json:"yes_amount"`
	NoAmount  int64 `json:"no_amount"`
	YesPool   int64 `json:"yes_pool"`
	NoPool    int64 `json:"no_pool"`
}

// HandleBets handles POST /api/bets
func (a *API) HandleBets(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r, "bet")
	if !ok {
		return
	}
	user := addr.Hex()

	var req PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug(user, "bet_invalid_body", "error="+err.Error())
		respondWithError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.MarketID <= 0 {
		respondWithError(w, "Invalid market ID", http.StatusBadRequest)
		return
	}
	side, err := settlement.ParseSide(req.Side)
	if err != nil {
		respondWithError(w, "Side must be YES or NO", http.StatusBadRequest)
		return
	}

	pos, err := a.svc.PlaceBet(r.Context(), addr, req.MarketID, side, req.Amount)
	if err != nil {
		respondWithServiceError(w, user, "bet", err)
		return
	}

	response := PlaceBetResponse{
		MarketID:  pos.MarketID,
		YesAmount: pos.YesAmount,
		NoAmount:  pos.NoAmount,
	}
	if m, err := a.svc.GetMarket(r.Context(), req.MarketID); err == nil {
		response.YesPool, response.NoPool = m.YesPool, m.NoPool
	}

	logger.Debug(user, "bet_success", fmt.Sprintf("market_id=%d yes=%d no=%d", pos.MarketID, pos.YesAmount, pos.NoAmount))
	respondJSON(w, http.StatusCreated, response)
}
