package metadata

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

func (a *API) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var models []packageRepositoryModel
	if err := a.store.ORM.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	repos := make([]RepositoryRecord, 0, len(models))
	for _, m := range models {
		repos = append(repos, m.toRecord())
	}
	respondJSON(w, http.StatusOK, map[string]any{"repositories": repos})
}

func (a *API) handleCreateRepository(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string   `json:"name"`
		URL             string   `json:"url"`
		Key             string   `json:"key"`
		Arches          []string `json:"arches"`
		Components      []string `json:"components"`
		Distributions   []string `json:"distributions"`
		DisabledPockets []string `json:"disabled_pockets"`
		Default         bool     `json:"default"`
		Enabled         *bool    `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.URL = strings.TrimSpace(req.URL)
	if req.Name == "" || req.URL == "" {
		respondError(w, http.StatusBadRequest, errors.New("name and url are required"))
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	now := time.Now().UTC()
	model := packageRepositoryModel{
		Name:            req.Name,
		URL:             req.URL,
		Key:             req.Key,
		Arches:          toJSONSlice(req.Arches),
		Components:      toJSONSlice(req.Components),
		Distributions:   toJSONSlice(req.Distributions),
		DisabledPockets: toJSONSlice(req.DisabledPockets),
		Default:         req.Default,
		Enabled:         enabled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.store.ORM.WithContext(ctx).Create(&model).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	if err := a.store.recordRBACChange(ctx, rbacActionAdd, rbacResourceRepository, &model.ID, model.Name); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"repository": model.toRecord()})
}

func (a *API) handleDeleteRepository(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid numeric id is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	orm := a.store.ORM.WithContext(ctx)

	var model packageRepositoryModel
	if err := orm.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, fmt.Errorf("repository %d not found", id))
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if model.Default {
		respondError(w, http.StatusBadRequest, errors.New("default repositories cannot be deleted"))
		return
	}

	if err := orm.Delete(&model).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	if err := a.store.recordRBACChange(ctx, rbacActionRemove, rbacResourceRepository, &model.ID, model.Name); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
