package handlers

import (
	"net/http"

	"predictionmarket/internal/settlement"
)

// UserResponse is the response for the /api/me endpoint
type UserResponse struct {
	Address        string            `json:"address"`
	Balance        int64             `json:"balance"`
	BalanceDisplay string            `json:"balance_display"`
	Positions      []PositionSummary `json:"positions"`
}

// PositionSummary is one of the caller's positions.
type PositionSummary struct {
	MarketID  int64 `json:"market_id"`
	YesAmount int64 `json:"yes_amount"`
	NoAmount  int64 `json:"no_amount"`
	Claimed   bool  `json:"claimed"`
}

// HandleMe handles the GET /api/me endpoint. The first call from a wallet
// opens its account with the welcome grant.
func (a *API) HandleMe(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r, "me")
	if !ok {
		return
	}
	user := addr.Hex()

	acc, err := a.svc.EnsureAccount(r.Context(), addr)
	if err != nil {
		respondWithServiceError(w, user, "me", err)
		return
	}
	positions, err := a.svc.ListPositions(r.Context(), addr)
	if err != nil {
		respondWithServiceError(w, user, "me", err)
		return
	}

	response := UserResponse{
		Address:        user,
		Balance:        acc.Balance,
		BalanceDisplay: settlement.FormatUSDC(acc.Balance),
		Positions:      make([]PositionSummary, 0, len(positions)),
	}
	for _, p := range positions {
		response.Positions = append(response.Positions, PositionSummary{
			MarketID:  p.MarketID,
			YesAmount: p.YesAmount,
			NoAmount:  p.NoAmount,
			Claimed:   p.Claimed,
		})
	}

	respondJSON(w, http.StatusOK, response)
}
