// Package metadata is the region-side service that answers machine metadata
// requests: preseed composition, user-data delivery, machine enrollment, and
// the apt repository configuration behind them.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"hatchd/pkg/bus"
	hdb "hatchd/pkg/db"
	objstore "hatchd/pkg/s3"
	"hatchd/services/metadata/preseed"
)

// ErrMachineNotFound reports a lookup for a machine the store has no record
// of.
var ErrMachineNotFound = errors.New("machine not found")

// Settings keys understood by the snapshot reader.
const (
	settingProxyEnabled = "http_proxy_enabled"
	settingProxyURL     = "http_proxy"
	settingMainArchive  = "main_archive_url"
	settingPortsArchive = "ports_archive_url"
)

// Upstream archives used until an operator configures their own.
const (
	defaultMainArchiveURL  = "http://archive.ubuntu.com/ubuntu"
	defaultPortsArchiveURL = "http://ports.ubuntu.com/ubuntu-ports"
)

// Store holds external dependencies required by the metadata layer. Hot read
// paths go through the pgx pool; writes go through gorm.
type Store struct {
	DB  *pgxpool.Pool
	ORM *gorm.DB
	S3  *objstore.Client
	Bus *bus.Bus
}

// MachineBySystemID loads the composer's view of a machine.
func (s *Store) MachineBySystemID(ctx context.Context, systemID string) (preseed.Machine, error) {
	query := `
        SELECT system_id, hostname, architecture, osystem, distro_series, status
        FROM machines
        WHERE system_id = $1
    `
	return s.machineRow(ctx, query, systemID)
}

// MachineByMAC loads the composer's view of a machine from its boot MAC.
func (s *Store) MachineByMAC(ctx context.Context, mac string) (preseed.Machine, error) {
	query := `
        SELECT system_id, hostname, architecture, osystem, distro_series, status
        FROM machines
        WHERE mac = $1
    `
	return s.machineRow(ctx, query, strings.ToLower(mac))
}

func (s *Store) machineRow(ctx context.Context, query string, arg any) (preseed.Machine, error) {
	var row struct {
		SystemID     string `db:"system_id"`
		Hostname     string `db:"hostname"`
		Architecture string `db:"architecture"`
		OSystem      string `db:"osystem"`
		DistroSeries string `db:"distro_series"`
		Status       string `db:"status"`
	}
	if err := hdb.Get(ctx, s.DB, &row, query, arg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return preseed.Machine{}, ErrMachineNotFound
		}
		return preseed.Machine{}, err
	}
	return preseed.Machine{
		SystemID:     row.SystemID,
		Hostname:     row.Hostname,
		Architecture: row.Architecture,
		OSystem:      row.OSystem,
		DistroSeries: row.DistroSeries,
		Status:       preseed.Status(row.Status),
	}, nil
}

// DefaultArchive returns the enabled default archive covering arch, wrapping
// ErrNoDefaultArchive when none is configured.
func (s *Store) DefaultArchive(ctx context.Context, arch string) (preseed.Archive, error) {
	archJSON, err := json.Marshal([]string{arch})
	if err != nil {
		return preseed.Archive{}, err
	}

	var row struct {
		URL             string   `db:"url"`
		Key             string   `db:"key"`
		DisabledPockets []string `db:"disabled_pockets"`
	}
	query := `
        SELECT url, key, disabled_pockets
        FROM package_repositories
        WHERE is_default AND enabled AND arches @> $1::jsonb
        ORDER BY id
        LIMIT 1
    `
	if err := hdb.Get(ctx, s.DB, &row, query, string(archJSON)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return preseed.Archive{}, fmt.Errorf("architecture %q: %w", arch, preseed.ErrNoDefaultArchive)
		}
		return preseed.Archive{}, err
	}
	return preseed.Archive{
		URL:             row.URL,
		Key:             row.Key,
		DisabledPockets: row.DisabledPockets,
	}, nil
}

// AdditionalRepositories returns the enabled non-default apt sources that
// apply to arch. A repository with no arches listed applies everywhere.
func (s *Store) AdditionalRepositories(ctx context.Context, arch string) ([]preseed.PackageRepository, error) {
	archJSON, err := json.Marshal([]string{arch})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID            int64    `db:"id"`
		Name          string   `db:"name"`
		URL           string   `db:"url"`
		Key           string   `db:"key"`
		Components    []string `db:"components"`
		Distributions []string `db:"distributions"`
	}
	query := `
        SELECT id, name, url, key, components, distributions
        FROM package_repositories
        WHERE NOT is_default AND enabled
          AND (arches IS NULL OR arches = '[]'::jsonb OR arches @> $1::jsonb)
        ORDER BY id
    `
	if err := hdb.Select(ctx, s.DB, &rows, query, string(archJSON)); err != nil {
		return nil, err
	}

	repos := make([]preseed.PackageRepository, 0, len(rows))
	for _, row := range rows {
		repos = append(repos, preseed.PackageRepository{
			ID:            row.ID,
			Name:          row.Name,
			URL:           row.URL,
			Key:           row.Key,
			Components:    row.Components,
			Distributions: row.Distributions,
		})
	}
	return repos, nil
}

// BootController returns the rack controller a machine boots through. A
// machine without a pinned rack falls back to the oldest registered one.
func (s *Store) BootController(ctx context.Context, m preseed.Machine) (preseed.RackController, error) {
	var row struct {
		Hostname string `db:"hostname"`
		URL      string `db:"url"`
	}
	query := `
        SELECT rc.hostname, rc.url
        FROM machines AS m
        JOIN rack_controllers AS rc ON rc.id = m.rack_controller_id
        WHERE m.system_id = $1
    `
	err := hdb.Get(ctx, s.DB, &row, query, m.SystemID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = hdb.Get(ctx, s.DB, &row, `SELECT hostname, url FROM rack_controllers ORDER BY created_at LIMIT 1`)
		if errors.Is(err, pgx.ErrNoRows) {
			return preseed.RackController{}, errors.New("no rack controller registered")
		}
	}
	if err != nil {
		return preseed.RackController{}, err
	}
	return preseed.RackController{Host: row.Hostname, URL: row.URL}, nil
}

// TokenFor returns the machine's credential triple, minting and persisting
// one on first use.
func (s *Store) TokenFor(ctx context.Context, m preseed.Machine) (preseed.CredentialTriple, error) {
	ctx, cancel := context.WithTimeout(ctx, hdb.DefaultTimeout)
	defer cancel()

	orm := s.ORM.WithContext(ctx)

	var machine machineModel
	if err := orm.Where("system_id = ?", m.SystemID).First(&machine).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return preseed.CredentialTriple{}, ErrMachineNotFound
		}
		return preseed.CredentialTriple{}, err
	}

	var key nodeKeyModel
	err := orm.Where("machine_id = ?", machine.ID).First(&key).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		key = nodeKeyModel{
			ID:          uuid.New(),
			MachineID:   machine.ID,
			ConsumerKey: newSecret(),
			TokenKey:    newSecret(),
			TokenSecret: newSecret(),
			CreatedAt:   time.Now().UTC(),
		}
		if err := orm.Create(&key).Error; err != nil {
			return preseed.CredentialTriple{}, fmt.Errorf("mint credentials for %s: %w", m.SystemID, err)
		}
	case err != nil:
		return preseed.CredentialTriple{}, err
	}

	return preseed.CredentialTriple{
		ConsumerKey: key.ConsumerKey,
		TokenKey:    key.TokenKey,
		TokenSecret: key.TokenSecret,
	}, nil
}

// Snapshot captures the ambient settings one composition call depends on.
// Unset keys fall back to the upstream archive defaults with the proxy on.
func (s *Store) Snapshot(ctx context.Context) (preseed.Snapshot, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := hdb.Select(ctx, s.DB, &rows, `SELECT key, value FROM settings`); err != nil {
		return preseed.Snapshot{}, fmt.Errorf("load settings: %w", err)
	}

	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.Key] = row.Value
	}

	snap := preseed.Snapshot{
		ProxyEnabled:    true,
		MainArchiveURL:  defaultMainArchiveURL,
		PortsArchiveURL: defaultPortsArchiveURL,
	}
	if v, ok := settings[settingProxyEnabled]; ok {
		if enabled, err := strconv.ParseBool(v); err == nil {
			snap.ProxyEnabled = enabled
		}
	}
	if v, ok := settings[settingProxyURL]; ok {
		snap.ProxyURL = v
	}
	if v, ok := settings[settingMainArchive]; ok && v != "" {
		snap.MainArchiveURL = v
	}
	if v, ok := settings[settingPortsArchive]; ok && v != "" {
		snap.PortsArchiveURL = v
	}
	return snap, nil
}

func newSecret() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
