package metadata

import (
	"errors"
	"net/http"
)

func (a *API) handleRBACChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := a.store.RBACChanges(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

func (a *API) handleRBACClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UpTo int64 `json:"up_to"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.UpTo <= 0 {
		respondError(w, http.StatusBadRequest, errors.New("up_to must be positive"))
		return
	}

	if err := a.store.ClearRBACChanges(r.Context(), req.UpTo); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cleared_up_to": req.UpTo})
}
