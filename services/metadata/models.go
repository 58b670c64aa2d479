package metadata

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type rackControllerModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Hostname  string    `gorm:"type:text;uniqueIndex;not null"`
	URL       string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (rackControllerModel) TableName() string { return "rack_controllers" }

type machineModel struct {
	ID               uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	SystemID         string                      `gorm:"type:text;uniqueIndex;not null"`
	Hostname         string                      `gorm:"type:text"`
	MAC              string                      `gorm:"type:text;uniqueIndex;not null"`
	Architecture     string                      `gorm:"type:text"`
	OSystem          string                      `gorm:"type:text"`
	DistroSeries     string                      `gorm:"type:text"`
	Status           string                      `gorm:"type:text"`
	Tags             datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	RackControllerID *uuid.UUID                  `gorm:"type:uuid"`
	CreatedAt        time.Time                   `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt        time.Time                   `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (machineModel) TableName() string { return "machines" }

// MachineRecord is the API-facing view of a stored machine.
type MachineRecord struct {
	ID           uuid.UUID `json:"id"`
	SystemID     string    `json:"system_id"`
	Hostname     string    `json:"hostname"`
	MAC          string    `json:"mac"`
	Architecture string    `json:"architecture"`
	OSystem      string    `json:"osystem"`
	DistroSeries string    `json:"distro_series"`
	Status       string    `json:"status"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (m machineModel) toRecord() MachineRecord {
	return MachineRecord{
		ID:           m.ID,
		SystemID:     m.SystemID,
		Hostname:     m.Hostname,
		MAC:          m.MAC,
		Architecture: m.Architecture,
		OSystem:      m.OSystem,
		DistroSeries: m.DistroSeries,
		Status:       m.Status,
		Tags:         sliceFromJSON(m.Tags),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type packageRepositoryModel struct {
	ID              int64                       `gorm:"primaryKey;autoIncrement"`
	Name            string                      `gorm:"type:text;not null"`
	URL             string                      `gorm:"type:text;not null"`
	Key             string                      `gorm:"type:text"`
	Arches          datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Components      datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Distributions   datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	DisabledPockets datatypes.JSONSlice[string] `gorm:"type:jsonb;column:disabled_pockets"`
	Default         bool                        `gorm:"column:is_default;not null"`
	Enabled         bool                        `gorm:"not null"`
	CreatedAt       time.Time                   `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt       time.Time                   `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (packageRepositoryModel) TableName() string { return "package_repositories" }

// RepositoryRecord is the API-facing view of a configured apt source.
type RepositoryRecord struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	URL             string    `json:"url"`
	Key             string    `json:"key,omitempty"`
	Arches          []string  `json:"arches"`
	Components      []string  `json:"components"`
	Distributions   []string  `json:"distributions"`
	DisabledPockets []string  `json:"disabled_pockets"`
	Default         bool      `json:"default"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (p packageRepositoryModel) toRecord() RepositoryRecord {
	return RepositoryRecord{
		ID:              p.ID,
		Name:            p.Name,
		URL:             p.URL,
		Key:             p.Key,
		Arches:          sliceFromJSON(p.Arches),
		Components:      sliceFromJSON(p.Components),
		Distributions:   sliceFromJSON(p.Distributions),
		DisabledPockets: sliceFromJSON(p.DisabledPockets),
		Default:         p.Default,
		Enabled:         p.Enabled,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

type nodeKeyModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	MachineID   uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	ConsumerKey string    `gorm:"type:text;not null"`
	TokenKey    string    `gorm:"type:text;not null"`
	TokenSecret string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (nodeKeyModel) TableName() string { return "node_keys" }

type settingModel struct {
	Key   string `gorm:"type:text;primaryKey"`
	Value string `gorm:"type:text;not null"`
}

func (settingModel) TableName() string { return "settings" }

type rbacSyncModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Action       string    `gorm:"type:text;not null"`
	ResourceType string    `gorm:"type:text"`
	ResourceID   *int64    `gorm:"type:bigint"`
	ResourceName string    `gorm:"type:text"`
	Source       string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (rbacSyncModel) TableName() string { return "rbac_sync" }

func sliceFromJSON(src datatypes.JSONSlice[string]) []string {
	if src == nil {
		return []string{}
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

func toJSONSlice(src []string) datatypes.JSONSlice[string] {
	if src == nil {
		return datatypes.JSONSlice[string]{}
	}
	return datatypes.JSONSlice[string](src)
}
