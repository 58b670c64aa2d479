package metadata

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"hatchd/services/metadata/preseed"
)

// SeedSampleData inserts a development dataset: one rack controller, the
// default Ubuntu archives, a sample PPA, baseline settings, and two machines.
// Inserts are idempotent so the command can be re-run.
func (s *Store) SeedSampleData(ctx context.Context) error {
	orm := s.ORM.WithContext(ctx)
	now := time.Now().UTC()

	rack := rackControllerModel{
		ID:       uuid.New(),
		Hostname: "rack01.example",
		URL:      "http://rack01.example:5240",
	}
	if err := orm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hostname"}},
		DoNothing: true,
	}).Create(&rack).Error; err != nil {
		return err
	}
	if err := orm.Where("hostname = ?", rack.Hostname).First(&rack).Error; err != nil {
		return err
	}

	repos := sampleRepositories()
	for i := range repos {
		var count int64
		if err := orm.Model(&packageRepositoryModel{}).
			Where("name = ?", repos[i].Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		repos[i].CreatedAt = now
		repos[i].UpdatedAt = now
		if err := orm.Create(&repos[i]).Error; err != nil {
			return err
		}
	}

	settings := []settingModel{
		{Key: settingProxyEnabled, Value: "true"},
		{Key: settingMainArchive, Value: defaultMainArchiveURL},
		{Key: settingPortsArchive, Value: defaultPortsArchiveURL},
	}
	for _, setting := range settings {
		if err := orm.Clauses(clause.OnConflict{DoNothing: true}).Create(&setting).Error; err != nil {
			return err
		}
	}

	machines := []machineModel{
		{
			ID:               uuid.New(),
			SystemID:         "dev4k3a1",
			Hostname:         "sample-amd64",
			MAC:              "52:54:00:12:34:56",
			Architecture:     "amd64/generic",
			OSystem:          "ubuntu",
			DistroSeries:     "noble",
			Status:           string(preseed.StatusNew),
			RackControllerID: &rack.ID,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
		{
			ID:               uuid.New(),
			SystemID:         "dev4k3a2",
			Hostname:         "sample-arm64",
			MAC:              "52:54:00:12:34:57",
			Architecture:     "arm64/generic",
			OSystem:          "ubuntu",
			DistroSeries:     "noble",
			Status:           string(preseed.StatusNew),
			RackControllerID: &rack.ID,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	}
	for _, machine := range machines {
		if err := orm.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "system_id"}},
			DoNothing: true,
		}).Create(&machine).Error; err != nil {
			return err
		}
	}

	return nil
}

// sampleRepositories builds the development repository set. Every jsonb
// slice column goes through toJSONSlice so empty sets are stored as [],
// not the jsonb null the AdditionalRepositories arch filter cannot match.
func sampleRepositories() []packageRepositoryModel {
	return []packageRepositoryModel{
		{
			Name:            "Ubuntu archive",
			URL:             defaultMainArchiveURL,
			Arches:          toJSONSlice([]string{"i386", "amd64"}),
			Components:      toJSONSlice([]string{"main", "restricted", "universe", "multiverse"}),
			Distributions:   toJSONSlice(nil),
			DisabledPockets: toJSONSlice(nil),
			Default:         true,
			Enabled:         true,
		},
		{
			Name:            "Ubuntu ports archive",
			URL:             defaultPortsArchiveURL,
			Arches:          toJSONSlice([]string{"arm64", "armhf", "ppc64el", "s390x"}),
			Components:      toJSONSlice([]string{"main", "restricted", "universe", "multiverse"}),
			Distributions:   toJSONSlice(nil),
			DisabledPockets: toJSONSlice(nil),
			Default:         true,
			Enabled:         true,
		},
		{
			Name:            "Sample tooling PPA",
			URL:             "http://ppa.launchpad.net/hatchd/tools/ubuntu",
			Arches:          toJSONSlice(nil),
			Components:      toJSONSlice(nil),
			Distributions:   toJSONSlice(nil),
			DisabledPockets: toJSONSlice(nil),
			Enabled:         true,
		},
	}
}
