package metadata

import (
	"context"
	"time"

	"hatchd/pkg/db"
)

// Actions recorded in the RBAC change log.
const (
	rbacActionAdd    = "add"
	rbacActionUpdate = "update"
	rbacActionRemove = "remove"
)

// Resource types the change log tracks.
const (
	rbacResourceMachine    = "machine"
	rbacResourceRepository = "package-repository"
)

const rbacSourceAPI = "metadata-api"

// RBACChange is one pending entry in the append-only change log consumed by
// an external RBAC service during its next sync.
type RBACChange struct {
	ID           int64     `json:"id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   *int64    `json:"resource_id,omitempty"`
	ResourceName string    `json:"resource_name"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Store) recordRBACChange(ctx context.Context, action, resourceType string, resourceID *int64, resourceName string) error {
	ctx, cancel := context.WithTimeout(ctx, db.DefaultTimeout)
	defer cancel()

	model := rbacSyncModel{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ResourceName: resourceName,
		Source:       rbacSourceAPI,
		CreatedAt:    time.Now().UTC(),
	}
	return s.ORM.WithContext(ctx).Create(&model).Error
}

// RBACChanges returns all pending change-log entries in insertion order.
func (s *Store) RBACChanges(ctx context.Context) ([]RBACChange, error) {
	ctx, cancel := context.WithTimeout(ctx, db.DefaultTimeout)
	defer cancel()

	var models []rbacSyncModel
	if err := s.ORM.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}

	changes := make([]RBACChange, 0, len(models))
	for _, m := range models {
		changes = append(changes, RBACChange{
			ID:           m.ID,
			Action:       m.Action,
			ResourceType: m.ResourceType,
			ResourceID:   m.ResourceID,
			ResourceName: m.ResourceName,
			Source:       m.Source,
			CreatedAt:    m.CreatedAt,
		})
	}
	return changes, nil
}

// ClearRBACChanges removes entries with IDs up to and including upTo, so a
// consumer can acknowledge exactly the window it has synced.
func (s *Store) ClearRBACChanges(ctx context.Context, upTo int64) error {
	ctx, cancel := context.WithTimeout(ctx, db.DefaultTimeout)
	defer cancel()

	return s.ORM.WithContext(ctx).Where("id <= ?", upTo).Delete(&rbacSyncModel{}).Error
}
