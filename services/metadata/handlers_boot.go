package metadata

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Series booted into the ephemeral environment when a machine has none
// recorded yet.
const defaultBootSeries = "noble"

func (a *API) handleIPXE(w http.ResponseWriter, r *http.Request) {
	mac := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mac")))
	if mac == "" {
		respondError(w, http.StatusBadRequest, errors.New("mac query parameter is required"))
		return
	}

	machine, err := a.store.MachineByMAC(r.Context(), mac)
	if err != nil {
		if errors.Is(err, ErrMachineNotFound) {
			respondError(w, http.StatusNotFound, fmt.Errorf("machine with mac %s not found", mac))
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	apiBase := a.config.APIBase
	if apiBase == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		apiBase = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	series := machine.DistroSeries
	if series == "" {
		series = defaultBootSeries
	}

	rendered, err := a.engine.Render("ipxe.tmpl", map[string]any{
		"APIBase":  apiBase,
		"SystemID": machine.SystemID,
		"Series":   series,
		"Arch":     machine.PrimaryArch(),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(rendered))
}
