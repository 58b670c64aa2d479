package preseed

import (
	"context"
	"fmt"
	"strings"
)

const (
	ppaPrefix = "ppa:"
	ppaHost   = "ppa.launchpad.net"
)

// Characters stripped from repository display names before they are used as
// apt list file names.
const repoNamePunctuation = `'!@#$[]{}`

// APTConfig is the cloud-init apt block composed for a machine.
type APTConfig struct {
	PreserveSourcesList bool                 `yaml:"preserve_sources_list"`
	Primary             []ArchiveEntry       `yaml:"primary"`
	Security            []ArchiveEntry       `yaml:"security"`
	DisableSuites       []string             `yaml:"disable_suites,omitempty"`
	Proxy               string               `yaml:"proxy,omitempty"`
	Sources             map[string]APTSource `yaml:"sources,omitempty"`
}

// ArchiveEntry points a mirror list at a single archive URL.
type ArchiveEntry struct {
	Arches []string `yaml:"arches"`
	URI    string   `yaml:"uri"`
}

// APTSource is one named entry in the additional-sources map.
type APTSource struct {
	Key    string `yaml:"key,omitempty"`
	Source string `yaml:"source,omitempty"`
}

// CleanRepositoryName derives a stable, collision-free apt list name for a
// repository: punctuation stripped, the numeric id appended, spaces replaced
// with underscores, lowercased. The id suffix keeps names unique even when
// two repositories share a display name.
func CleanRepositoryName(name string, id int64) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(repoNamePunctuation, r) {
			return -1
		}
		return r
	}, name)
	joined := fmt.Sprintf("%s_%d", cleaned, id)
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(joined), " ", "_"))
}

// BuildArchiveConfig merges the default archive for the machine's primary
// architecture with any additional repositories into an apt block. It fails
// only when no default archive is configured.
func BuildArchiveConfig(ctx context.Context, archives ArchiveStore, m Machine, proxy string, preserveSources bool) (APTConfig, error) {
	arch := m.PrimaryArch()

	archive, err := archives.DefaultArchive(ctx, arch)
	if err != nil {
		return APTConfig{}, fmt.Errorf("default archive for %q: %w", arch, err)
	}
	repos, err := archives.AdditionalRepositories(ctx, arch)
	if err != nil {
		return APTConfig{}, fmt.Errorf("additional repositories for %q: %w", arch, err)
	}

	cfg := APTConfig{
		PreserveSourcesList: preserveSources,
		Primary:             []ArchiveEntry{{Arches: []string{"default"}, URI: archive.URL}},
		Security:            []ArchiveEntry{{Arches: []string{"default"}, URI: archive.URL}},
		DisableSuites:       archive.DisabledPockets,
		Proxy:               proxy,
	}
	if archive.Key != "" {
		cfg.Sources = map[string]APTSource{
			"archive_key": {Key: archive.Key},
		}
	}

	for _, repo := range repos {
		if cfg.Sources == nil {
			cfg.Sources = make(map[string]APTSource, len(repos))
		}
		cfg.Sources[CleanRepositoryName(repo.Name, repo.ID)] = APTSource{
			Key:    repo.Key,
			Source: repoSourceLines(repo, m.DistroSeries),
		}
	}

	return cfg, nil
}

// repoSourceLines classifies a repository URL and renders its deb line(s).
// PPA shorthand is kept verbatim; repositories hosted on the PPA web host
// expand to a single line against the machine's release series; anything
// else emits one line per target distribution, defaulting to the machine's
// own series.
func repoSourceLines(repo PackageRepository, series string) string {
	if strings.HasPrefix(repo.URL, ppaPrefix) {
		return repo.URL
	}
	if strings.Contains(repo.URL, ppaHost) {
		return fmt.Sprintf("deb %s %s main", repo.URL, series)
	}

	components := "main"
	if len(repo.Components) > 0 {
		components = strings.TrimSpace(strings.Join(repo.Components, " "))
	}

	if len(repo.Distributions) == 0 {
		return fmt.Sprintf("deb %s %s %s", repo.URL, series, components)
	}
	lines := make([]string, 0, len(repo.Distributions))
	for _, dist := range repo.Distributions {
		lines = append(lines, fmt.Sprintf("deb %s %s %s", repo.URL, dist, components))
	}
	return strings.Join(lines, "\n")
}
