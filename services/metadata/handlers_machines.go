package metadata

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"hatchd/pkg/bus"
	"hatchd/services/metadata/preseed"
)

var knownStatuses = map[preseed.Status]bool{
	preseed.StatusNew:                true,
	preseed.StatusCommissioning:      true,
	preseed.StatusReady:              true,
	preseed.StatusDeploying:          true,
	preseed.StatusDeployed:           true,
	preseed.StatusDiskErasing:        true,
	preseed.StatusEnteringRescueMode: true,
	preseed.StatusRescueMode:         true,
	preseed.StatusBroken:             true,
}

func (a *API) handleUpsertMachine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MAC          string   `json:"mac"`
		Hostname     string   `json:"hostname"`
		Architecture string   `json:"architecture"`
		OSystem      string   `json:"osystem"`
		DistroSeries string   `json:"distro_series"`
		Tags         []string `json:"tags"`
		Rack         string   `json:"rack"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	req.MAC = strings.ToLower(strings.TrimSpace(req.MAC))
	if req.MAC == "" {
		respondError(w, http.StatusBadRequest, errors.New("mac is required"))
		return
	}
	if req.Architecture == "" {
		req.Architecture = "amd64/generic"
	}
	if req.OSystem == "" {
		req.OSystem = "ubuntu"
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	orm := a.store.ORM.WithContext(ctx)

	var rackID *uuid.UUID
	if req.Rack != "" {
		var rack rackControllerModel
		if err := orm.Where("hostname = ?", req.Rack).First(&rack).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				respondError(w, http.StatusBadRequest, fmt.Errorf("rack controller %q not registered", req.Rack))
				return
			}
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		rackID = &rack.ID
	}

	var existing machineModel
	err := orm.Where("mac = ?", req.MAC).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		now := time.Now().UTC()
		model := machineModel{
			ID:               uuid.New(),
			SystemID:         newSystemID(),
			Hostname:         req.Hostname,
			MAC:              req.MAC,
			Architecture:     req.Architecture,
			OSystem:          req.OSystem,
			DistroSeries:     req.DistroSeries,
			Status:           string(preseed.StatusNew),
			Tags:             toJSONSlice(req.Tags),
			RackControllerID: rackID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := orm.Create(&model).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		machine := model.toRecord()
		if err := a.store.recordRBACChange(ctx, rbacActionAdd, rbacResourceMachine, nil, machine.SystemID); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		a.publishEvent(ctx, bus.SubjectMachineEnrolled, map[string]any{
			"machine_id": machine.ID,
			"system_id":  machine.SystemID,
			"mac":        machine.MAC,
		})
		respondJSON(w, http.StatusCreated, map[string]any{"machine": machine})
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
	default:
		updates := map[string]any{
			"hostname":      req.Hostname,
			"architecture":  req.Architecture,
			"osystem":       req.OSystem,
			"distro_series": req.DistroSeries,
			"tags":          toJSONSlice(req.Tags),
			"updated_at":    time.Now().UTC(),
		}
		if rackID != nil {
			updates["rack_controller_id"] = *rackID
		}
		if err := orm.Model(&existing).Updates(updates).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		if err := orm.First(&existing, "id = ?", existing.ID).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}

		machine := existing.toRecord()
		if err := a.store.recordRBACChange(ctx, rbacActionUpdate, rbacResourceMachine, nil, machine.SystemID); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		a.publishEvent(ctx, bus.SubjectMachineEnrolled, map[string]any{
			"machine_id": machine.ID,
			"system_id":  machine.SystemID,
			"mac":        machine.MAC,
		})
		respondJSON(w, http.StatusOK, map[string]any{"machine": machine})
	}
}

func (a *API) handleMachineStatus(w http.ResponseWriter, r *http.Request) {
	systemID := chi.URLParam(r, "systemID")

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	status := preseed.Status(strings.TrimSpace(req.Status))
	if !knownStatuses[status] {
		respondError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", req.Status))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	orm := a.store.ORM.WithContext(ctx)

	var machine machineModel
	if err := orm.Where("system_id = ?", systemID).First(&machine).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, fmt.Errorf("machine %s not found", systemID))
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	updates := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	if err := orm.Model(&machine).Updates(updates).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	a.publishEvent(ctx, bus.SubjectMachineStatus, map[string]any{
		"machine_id": machine.ID,
		"system_id":  machine.SystemID,
		"status":     string(status),
	})

	machine.Status = string(status)
	respondJSON(w, http.StatusOK, map[string]any{"machine": machine.toRecord()})
}

func newSystemID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
