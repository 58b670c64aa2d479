package metadata

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hatchd/services/metadata/preseed"
)

func (a *API) handlePreseed(w http.ResponseWriter, r *http.Request) {
	systemID := chi.URLParam(r, "systemID")

	kindParam := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kindParam == "" {
		kindParam = string(preseed.KindDefault)
	}
	kind := preseed.RequestKind(kindParam)
	switch kind {
	case preseed.KindCommissioning, preseed.KindCurtin, preseed.KindDefault:
	default:
		respondError(w, http.StatusBadRequest, fmt.Errorf("unknown preseed kind %q", kindParam))
		return
	}

	m, err := a.store.MachineBySystemID(r.Context(), systemID)
	if err != nil {
		if errors.Is(err, ErrMachineNotFound) {
			respondError(w, http.StatusNotFound, fmt.Errorf("machine %s not found", systemID))
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	payload, err := a.composer.Compose(r.Context(), kind, m)
	compositionsTotal.WithLabelValues(string(kind), outcomeLabel(err)).Inc()
	if err != nil {
		switch {
		case errors.Is(err, preseed.ErrNoDefaultArchive):
			// Operator configuration error, not retryable by the machine.
			respondError(w, http.StatusConflict, err)
		case errors.Is(err, preseed.ErrUnknownOS):
			respondError(w, http.StatusBadRequest, err)
		case errors.Is(err, preseed.ErrRackUnreachable):
			respondError(w, http.StatusServiceUnavailable, err)
		default:
			respondError(w, http.StatusInternalServerError, err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(payload)
}
