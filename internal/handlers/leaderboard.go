package handlers

import (
	"fmt"
	"net/http"

	"predictionmarket/internal/logger"
	"predictionmarket/internal/settlement"
)

// LeaderboardEntry is one ranked account.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	Address        string `json:"address"`
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}

// HandleLeaderboard handles GET /api/leaderboard
func (a *API) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.svc.Leaderboard(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		respondWithServiceError(w, "", "leaderboard", err)
		return
	}

	leaderboard := make([]LeaderboardEntry, 0, len(accounts))
	for i, acc := range accounts {
		leaderboard = append(leaderboard, LeaderboardEntry{
			Rank:           i + 1,
			Address:        acc.Address.Hex(),
			Balance:        acc.Balance,
			BalanceDisplay: settlement.FormatUSDC(acc.Balance),
		})
	}

	logger.Debug("", "leaderboard_success", fmt.Sprintf("count=%d", len(leaderboard)))
	respondJSON(w, http.StatusOK, leaderboard)
}
