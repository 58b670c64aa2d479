package metadata

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"hatchd/services/metadata/preseed"
	"hatchd/services/metadata/userdata"
)

func (a *API) handleUserdata(w http.ResponseWriter, r *http.Request) {
	systemID := chi.URLParam(r, "systemID")

	purpose := strings.TrimSpace(r.URL.Query().Get("purpose"))
	if purpose == "" {
		purpose = userdata.PurposeCommissioning
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

	token, err := a.store.TokenFor(r.Context(), m)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	rack, err := a.store.BootController(r.Context(), m)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	params := userdata.Params{
		SystemID:    m.SystemID,
		MetadataURL: a.endpoints.Endpoint(preseed.EndpointMetadata, rack.URL),
		ConsumerKey: token.ConsumerKey,
		TokenKey:    token.TokenKey,
		TokenSecret: token.TokenSecret,
	}
	if v := r.URL.Query().Get("secure_erase"); v != "" {
		params.SecureErase, _ = strconv.ParseBool(v)
	}
	if v := r.URL.Query().Get("quick_erase"); v != "" {
		params.QuickErase, _ = strconv.ParseBool(v)
	}

	blob, err := a.userdata.Generate(r.Context(), purpose, params)
	if err != nil {
		if errors.Is(err, userdata.ErrUnknownPurpose) {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(blob)
}
