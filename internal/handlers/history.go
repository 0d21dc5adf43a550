package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// HandleActivity handles GET /api/activity. Signed-in callers see their own
// events; anonymous callers see the global feed. ?scope=all forces the latter.
func (a *API) HandleActivity(w http.ResponseWriter, r *http.Request) {
	addr, user := optionalCaller(r)
	if r.URL.Query().Get("scope") == "all" {
		addr = common.Address{}
	}

	events, err := a.svc.Activity(r.Context(), addr, queryInt(r, "limit", 50))
	if err != nil {
		respondWithServiceError(w, user, "activity", err)
		return
	}

	respondJSON(w, http.StatusOK, events)
}
