package preseed

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Port machines ship ephemeral-environment syslog to on the rack controller.
const rsyslogPort = 514

// Datasource name machines select; cloud-init ships a MAAS datasource and
// this service speaks that protocol.
const datasourceName = "MAAS"

// Composer is the top-level dispatcher. It assembles the final document for
// a machine from read-only collaborator lookups and delegates to an
// OS-specific provider when one exists. Composers are safe for concurrent
// use; every call is a pure function of its arguments plus the lookups.
type Composer struct {
	Archives  ArchiveStore
	Settings  SnapshotSource
	Racks     RackResolver
	Tokens    TokenIssuer
	Endpoints EndpointBuilder
	Delegates *Registry
}

type datasourceConfig struct {
	MetadataURL string `yaml:"metadata_url"`
	ConsumerKey string `yaml:"consumer_key"`
	TokenKey    string `yaml:"token_key"`
	TokenSecret string `yaml:"token_secret"`
}

type reportingConfig struct {
	Type        string `yaml:"type"`
	Endpoint    string `yaml:"endpoint"`
	ConsumerKey string `yaml:"consumer_key"`
	TokenKey    string `yaml:"token_key"`
	TokenSecret string `yaml:"token_secret"`
}

type rsyslogConfig struct {
	Remotes map[string]string `yaml:"remotes"`
}

type powerStateConfig struct {
	Delay     string `yaml:"delay"`
	Mode      string `yaml:"mode"`
	Timeout   int    `yaml:"timeout"`
	Condition string `yaml:"condition,omitempty"`
}

// cloudConfig is the ephemeral-environment document served to commissioning
// and curtin requests.
type cloudConfig struct {
	Datasource map[string]datasourceConfig `yaml:"datasource"`
	Reporting  map[string]reportingConfig  `yaml:"reporting"`
	Rsyslog    rsyslogConfig               `yaml:"rsyslog"`
	SystemInfo SystemInfo                  `yaml:"system_info"`
	AptProxy   string                      `yaml:"apt_proxy,omitempty"`
	Apt        APTConfig                   `yaml:"apt"`
	PowerState *powerStateConfig           `yaml:"power_state,omitempty"`
}

// localCloudConfig is the document embedded, escaped, in the debconf
// fallback for installed machines.
type localCloudConfig struct {
	// Leave /etc/hosts alone so hostname lookups on the machine go through
	// DNS instead of resolving to 127.0.0.1.
	ManageEtcHosts         bool `yaml:"manage_etc_hosts"`
	AptPreserveSourcesList bool `yaml:"apt_preserve_sources_list"`
	// Installed machines must not refetch seed data on every reboot.
	ManualCacheClean bool                        `yaml:"manual_cache_clean"`
	Datasource       map[string]datasourceConfig `yaml:"datasource"`
	Reporting        map[string]reportingConfig  `yaml:"reporting"`
	SystemInfo       SystemInfo                  `yaml:"system_info"`
	AptProxy         string                      `yaml:"apt_proxy,omitempty"`
	Apt              APTConfig                   `yaml:"apt"`
}

// Compose is the sole public entry point: it puts together preseed data for
// a machine in the format selected by kind and machine status. UnknownOS and
// unreachable-rack failures from the OS delegate are propagated unchanged so
// the caller can decide whether to retry, abort, or mark the machine broken.
func (c *Composer) Compose(ctx context.Context, kind RequestKind, m Machine) ([]byte, error) {
	token, err := c.Tokens.TokenFor(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("token for %s: %w", m.SystemID, err)
	}
	rack, err := c.Racks.BootController(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("boot rack controller for %s: %w", m.SystemID, err)
	}
	snap, err := c.Settings.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings snapshot: %w", err)
	}

	if kind == KindCommissioning {
		metadataURL := c.Endpoints.Endpoint(EndpointMetadata, rack.URL)
		return c.composeCloudConfig(ctx, m, token, rack, snap, metadataURL, PowerOffFor(m.Status))
	}

	metadataURL := c.Endpoints.Endpoint(EndpointMetadata, rack.URL)
	if kind == KindCurtin {
		metadataURL = c.Endpoints.Endpoint(EndpointCurtinMetadata, rack.URL)
	}

	res := c.Delegates.Preseed(ctx, kind, m, token, metadataURL)
	switch res.Outcome {
	case OutcomeHandled:
		return res.Payload, nil
	case OutcomeUnknownOS, OutcomeUnreachable:
		return nil, res.Err
	}

	// The OS has no special preseed content for this kind; fall back to the
	// generic formats.
	if kind == KindCurtin {
		return c.composeCloudConfig(ctx, m, token, rack, snap, metadataURL, PowerOff{})
	}
	return c.composeDebconf(ctx, m, token, rack, snap)
}

// composeCloudConfig builds the "#cloud-config" document: datasource,
// reporting webhook, remote syslog, mirror info, optional proxy, apt block,
// and the power-off block when requested.
func (c *Composer) composeCloudConfig(ctx context.Context, m Machine, token CredentialTriple, rack RackController, snap Snapshot, metadataURL string, po PowerOff) ([]byte, error) {
	proxy := ResolveProxy(snap, rack)
	apt, err := BuildArchiveConfig(ctx, c.Archives, m, proxy, false)
	if err != nil {
		return nil, err
	}

	doc := cloudConfig{
		Datasource: map[string]datasourceConfig{
			datasourceName: {
				MetadataURL: metadataURL,
				ConsumerKey: token.ConsumerKey,
				TokenKey:    token.TokenKey,
				TokenSecret: token.TokenSecret,
			},
		},
		Reporting:  c.reportingBlock(m, token, rack),
		Rsyslog:    rsyslogConfig{Remotes: map[string]string{"maas": fmt.Sprintf("%s:%d", rack.Host, rsyslogPort)}},
		SystemInfo: NewSystemInfo(snap),
		AptProxy:   proxy,
		Apt:        apt,
	}
	if po.Enabled {
		doc.PowerState = &powerStateConfig{
			Delay:     "now",
			Mode:      "poweroff",
			Timeout:   po.Timeout,
			Condition: po.Condition,
		}
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal cloud-config: %w", err)
	}
	return append([]byte("#cloud-config\n"), raw...), nil
}

// composeDebconf builds the debconf selection-line fallback for installed
// machines: datasource selection, metadata URL, URL-encoded credentials, and
// the escaped local cloud config.
func (c *Composer) composeDebconf(ctx context.Context, m Machine, token CredentialTriple, rack RackController, snap Snapshot) ([]byte, error) {
	metadataURL := c.Endpoints.Endpoint(EndpointMetadata, rack.URL)
	proxy := ResolveProxy(snap, rack)
	apt, err := BuildArchiveConfig(ctx, c.Archives, m, proxy, true)
	if err != nil {
		return nil, err
	}

	local := localCloudConfig{
		ManageEtcHosts:         false,
		AptPreserveSourcesList: true,
		ManualCacheClean:       true,
		Datasource: map[string]datasourceConfig{
			datasourceName: {
				MetadataURL: metadataURL,
				ConsumerKey: token.ConsumerKey,
				TokenKey:    token.TokenKey,
				TokenSecret: token.TokenSecret,
			},
		},
		Reporting:  c.reportingBlock(m, token, rack),
		SystemInfo: NewSystemInfo(snap),
		AptProxy:   proxy,
		Apt:        apt,
	}
	escaped, err := EscapeForDebconf(local)
	if err != nil {
		return nil, fmt.Errorf("escape local cloud config: %w", err)
	}

	items := []struct {
		name, typ, value string
	}{
		{"datasources", "multiselect", datasourceName},
		{"maas-metadata-url", "string", metadataURL},
		{"maas-metadata-credentials", "string", token.QueryString()},
		{"local-cloud-config", "string", escaped},
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("cloud-init   cloud-init/%s  %s %s", item.name, item.typ, item.value))
	}
	return []byte(strings.Join(lines, "\n")), nil
}

func (c *Composer) reportingBlock(m Machine, token CredentialTriple, rack RackController) map[string]reportingConfig {
	return map[string]reportingConfig{
		"maas": {
			Type:        "webhook",
			Endpoint:    c.Endpoints.Endpoint(EndpointMetadataStatus, rack.URL, m.SystemID),
			ConsumerKey: token.ConsumerKey,
			TokenKey:    token.TokenKey,
			TokenSecret: token.TokenSecret,
		},
	}
}
