package metadata

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hatchd/services/metadata/userdata"
)

const (
	defaultPresignTTLSeconds = 300
	maxPresignTTLSeconds     = 3600
)

// Template overrides live in object storage under templates/<purpose>.
// These endpoints hand out short-lived URLs so operators can inspect or
// replace an override without going through the bundle CLI.

func (a *API) handleTemplateDownloadURL(w http.ResponseWriter, r *http.Request) {
	a.presignTemplate(w, r, false)
}

func (a *API) handleTemplateUploadURL(w http.ResponseWriter, r *http.Request) {
	a.presignTemplate(w, r, true)
}

func (a *API) presignTemplate(w http.ResponseWriter, r *http.Request, upload bool) {
	purpose := chi.URLParam(r, "purpose")
	switch purpose {
	case userdata.PurposeCommissioning, userdata.PurposeDiskErasing:
	default:
		respondError(w, http.StatusBadRequest, fmt.Errorf("unknown template purpose %q", purpose))
		return
	}

	if a.store.S3 == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("object storage is not configured"))
		return
	}

	ttl, ok := presignTTL(r.URL.Query().Get("ttl"))
	if !ok {
		respondError(w, http.StatusBadRequest, errors.New("invalid ttl"))
		return
	}

	key := "templates/" + purpose
	var (
		url string
		err error
	)
	if upload {
		url, err = a.store.S3.PresignPut(r.Context(), a.config.TemplateBucket, key, ttl)
	} else {
		url, err = a.store.S3.PresignGet(r.Context(), a.config.TemplateBucket, key, ttl)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("presign template url: %w", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"purpose": purpose,
		"url":     url,
	})
}

func presignTTL(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultPresignTTLSeconds * time.Second, true
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	if seconds > maxPresignTTLSeconds {
		seconds = maxPresignTTLSeconds
	}
	return time.Duration(seconds) * time.Second, true
}
