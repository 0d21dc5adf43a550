package handlers

import (
	"net/http"
	"time"
)

// PriceResponse is the latest oracle reading for an asset.
type PriceResponse struct {
	Asset     string    `json:"asset"`
	Price     string    `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HandlePrice handles GET /api/prices/{asset}
func (a *API) HandlePrice(w http.ResponseWriter, r *http.Request) {
	_, user := optionalCaller(r)

	q, err := a.svc.Price(r.Context(), r.PathValue("asset"))
	if err != nil {
		respondWithServiceError(w, user, "price", err)
		return
	}

	respondJSON(w, http.StatusOK, PriceResponse{
		Asset:     q.Asset,
		Price:     q.Price.Text('f'),
		UpdatedAt: q.UpdatedAt.UTC(),
	})
}
