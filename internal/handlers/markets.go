package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"predictionmarket/internal/logger"
	"predictionmarket/internal/service"
	"predictionmarket/internal/settlement"
	"predictionmarket/internal/storage"
)

// MarketResponse is the JSON view of a market.
type MarketResponse struct {
	ID              int64        `json:"id"`
	Question        string       `json:"question"`
	Asset           string       `json:"asset"`
	TargetPrice     string       `json:"target_price"`
	IsAbove         bool         `json:"is_above"`
	Deadline        time.Time    `json:"deadline"`
	MinBet          int64        `json:"min_bet"`
	FeeBps          int64        `json:"fee_bps"`
	Creator         string       `json:"creator"`
	CreatedAt       time.Time    `json:"created_at"`
	YesPool         int64        `json:"yes_pool"`
	NoPool          int64        `json:"no_pool"`
	TotalPool       int64        `json:"total_pool"`
	Odds            service.Odds `json:"odds"`
	Open            bool         `json:"open"`
	Resolved        bool         `json:"resolved"`
	Outcome         string       `json:"outcome,omitempty"`
	SettlementPrice string       `json:"settlement_price,omitempty"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
	AccumulatedFees int64        `json:"accumulated_fees"`
	ForfeitedAmount int64        `json:"forfeited_amount"`
}

// PositionResponse is the caller's stake on a market.
type PositionResponse struct {
	YesAmount         int64             `json:"yes_amount"`
	NoAmount          int64             `json:"no_amount"`
	Claimed           bool              `json:"claimed"`
	PotentialWinnings int64             `json:"potential_winnings"`
	Claimable         settlement.Payout `json:"claimable"`
}

// MarketDetailResponse is a market with the caller's position, if any.
type MarketDetailResponse struct {
	MarketResponse
	Position *PositionResponse `json:"position,omitempty"`
}

func newMarketResponse(m *settlement.Market, now time.Time) MarketResponse {
	resp := MarketResponse{
		ID:              m.ID,
		Question:        m.Question,
		Asset:           m.Asset,
		TargetPrice:     m.TargetPrice.Text('f'),
		IsAbove:         m.IsAbove,
		Deadline:        m.Deadline,
		MinBet:          m.MinBet,
		FeeBps:          m.FeeBps,
		Creator:         m.Creator.Hex(),
		CreatedAt:       m.CreatedAt,
		YesPool:         m.YesPool,
		NoPool:          m.NoPool,
		TotalPool:       m.TotalPool(),
		Odds:            service.OddsFor(m),
		Open:            m.IsOpen(now),
		Resolved:        m.Resolved,
		AccumulatedFees: m.AccumulatedFees,
		ForfeitedAmount: m.ForfeitedAmount,
	}
	if m.Resolved {
		resp.Outcome = string(m.WinningSide())
		resp.SettlementPrice = m.SettlementPrice.Text('f')
		resolvedAt := m.ResolvedAt
		resp.ResolvedAt = &resolvedAt
	}
	return resp
}

// handleCreateMarket handles POST /api/markets
func (a *API) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	creator, ok := caller(w, r, "markets_create")
	if !ok {
		return
	}

	var req service.CreateMarketInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug(creator.Hex(), "markets_create_invalid_body", "error="+err.Error())
		respondWithError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	market, err := a.svc.CreateMarket(r.Context(), creator, req)
	if err != nil {
		respondWithServiceError(w, creator.Hex(), "markets_create", err)
		return
	}

	respondJSON(w, http.StatusCreated, newMarketResponse(market, a.svc.Now()))
}

// handleListMarkets handles GET /api/markets?status=open|resolved&creator=0x..
func (a *API) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	_, user := optionalCaller(r)

	filter := storage.MarketFilter{
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}
	switch strings.ToLower(r.URL.Query().Get("status")) {
	case "open", "active":
		resolved := false
		filter.Resolved = &resolved
	case "resolved":
		resolved := true
		filter.Resolved = &resolved
	case "", "all":
	default:
		respondWithError(w, "Invalid status filter", http.StatusBadRequest)
		return
	}
	if c := r.URL.Query().Get("creator"); c != "" {
		if !common.IsHexAddress(c) {
			respondWithError(w, "Invalid creator address", http.StatusBadRequest)
			return
		}
		creator := common.HexToAddress(c)
		filter.Creator = &creator
	}

	markets, err := a.svc.ListMarkets(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, user, "markets_list", err)
		return
	}

	now := a.svc.Now()
	response := make([]MarketResponse, 0, len(markets))
	for _, m := range markets {
		response = append(response, newMarketResponse(m, now))
	}

	logger.Debug(user, "markets_list_success", fmt.Sprintf("count=%d", len(response)))
	respondJSON(w, http.StatusOK, response)
}

// handleGetMarket handles GET /api/markets/{id}
func (a *API) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	addr, user := optionalCaller(r)

	market, err := a.svc.GetMarket(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, user, "market_get", err)
		return
	}

	response := MarketDetailResponse{MarketResponse: newMarketResponse(market, a.svc.Now())}
	if user != "" {
		view, err := a.svc.GetPosition(r.Context(), id, addr)
		if err != nil {
			respondWithServiceError(w, user, "market_get", err)
			return
		}
		response.Position = &PositionResponse{
			YesAmount:         view.YesAmount,
			NoAmount:          view.NoAmount,
			Claimed:           view.Claimed,
			PotentialWinnings: view.PotentialWinnings,
			Claimable:         view.Claimable,
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// handleResolveMarket handles POST /api/markets/{id}/resolve. Any signed-in
// wallet may trigger resolution once the deadline has passed.
func (a *API) handleResolveMarket(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r, "market_resolve")
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	market, err := a.svc.ResolveMarket(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, addr.Hex(), "market_resolve", err)
		return
	}

	respondJSON(w, http.StatusOK, newMarketResponse(market, a.svc.Now()))
}

// handleClaim handles POST /api/markets/{id}/claim
func (a *API) handleClaim(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r, "market_claim")
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	result, err := a.svc.Claim(r.Context(), addr, id)
	if err != nil {
		respondWithServiceError(w, addr.Hex(), "market_claim", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetOdds handles GET /api/markets/{id}/odds
func (a *API) handleGetOdds(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	_, user := optionalCaller(r)

	odds, err := a.svc.GetOdds(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, user, "market_odds", err)
		return
	}

	respondJSON(w, http.StatusOK, odds)
}
