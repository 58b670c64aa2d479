package preseed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type fakeRacks struct{ rack RackController }

func (f fakeRacks) BootController(ctx context.Context, m Machine) (RackController, error) {
	return f.rack, nil
}

type fakeTokens struct{ token CredentialTriple }

func (f fakeTokens) TokenFor(ctx context.Context, m Machine) (CredentialTriple, error) {
	return f.token, nil
}

type fakeSettings struct{ snap Snapshot }

func (f fakeSettings) Snapshot(ctx context.Context) (Snapshot, error) {
	return f.snap, nil
}

type fakeEndpoints struct{}

func (fakeEndpoints) Endpoint(name, baseURL string, args ...string) string {
	url := baseURL + "/" + name
	if len(args) > 0 {
		url += "/" + strings.Join(args, "/")
	}
	return url
}

func testComposer(archives ArchiveStore, reg *Registry) *Composer {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Composer{
		Archives: archives,
		Settings: fakeSettings{snap: Snapshot{
			MainArchiveURL:  "http://archive.example/ubuntu",
			PortsArchiveURL: "http://ports.example/ubuntu-ports",
		}},
		Racks:     fakeRacks{rack: RackController{Host: "rack01.example", URL: "http://rack01.example:5240"}},
		Tokens:    fakeTokens{token: CredentialTriple{ConsumerKey: "ck", TokenKey: "tk", TokenSecret: "ts"}},
		Endpoints: fakeEndpoints{},
		Delegates: reg,
	}
}

func testArchives() fakeArchives {
	return fakeArchives{archive: Archive{URL: "http://archive.example/ubuntu"}}
}

func testMachine(status Status) Machine {
	return Machine{
		SystemID:     "abc123",
		Architecture: "amd64/generic",
		OSystem:      "ubuntu",
		DistroSeries: "jammy",
		Status:       status,
	}
}

func decodeCloudConfig(t *testing.T, doc []byte) map[string]any {
	t.Helper()
	raw := string(doc)
	if !strings.HasPrefix(raw, "#cloud-config\n") {
		t.Fatalf("document missing #cloud-config marker: %q", raw[:min(len(raw), 40)])
	}
	var out map[string]any
	if err := yaml.Unmarshal([]byte(strings.TrimPrefix(raw, "#cloud-config\n")), &out); err != nil {
		t.Fatalf("unmarshal cloud-config: %v", err)
	}
	return out
}

func TestComposeCommissioning(t *testing.T) {
	c := testComposer(testArchives(), nil)

	doc, err := c.Compose(context.Background(), KindCommissioning, testMachine(StatusCommissioning))
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	cfg := decodeCloudConfig(t, doc)

	ds, ok := cfg["datasource"].(map[string]any)
	if !ok {
		t.Fatalf("missing datasource block: %v", cfg)
	}
	maas := ds["MAAS"].(map[string]any)
	if maas["metadata_url"] != "http://rack01.example:5240/metadata" {
		t.Fatalf("metadata_url = %v", maas["metadata_url"])
	}

	reporting, ok := cfg["reporting"].(map[string]any)
	if !ok {
		t.Fatalf("missing reporting block: %v", cfg)
	}
	webhook := reporting["maas"].(map[string]any)
	if webhook["type"] != "webhook" {
		t.Fatalf("reporting type = %v", webhook["type"])
	}
	if webhook["endpoint"] != "http://rack01.example:5240/metadata-status/abc123" {
		t.Fatalf("reporting endpoint = %v", webhook["endpoint"])
	}
	for _, key := range []string{"consumer_key", "token_key", "token_secret"} {
		if v, _ := webhook[key].(string); v == "" {
			t.Fatalf("reporting block missing %s: %v", key, webhook)
		}
	}

	rsyslog := cfg["rsyslog"].(map[string]any)
	remotes := rsyslog["remotes"].(map[string]any)
	if remotes["maas"] != "rack01.example:514" {
		t.Fatalf("rsyslog remote = %v", remotes["maas"])
	}

	power, ok := cfg["power_state"].(map[string]any)
	if !ok {
		t.Fatalf("commissioning document missing power_state: %v", cfg)
	}
	if power["mode"] != "poweroff" || power["timeout"] != 3600 {
		t.Fatalf("power_state = %v", power)
	}
	if power["condition"] != "test ! -e /tmp/block-poweroff" {
		t.Fatalf("power_state condition = %v", power["condition"])
	}

	if _, ok := cfg["system_info"]; !ok {
		t.Fatalf("missing system_info block")
	}
	if _, ok := cfg["apt"]; !ok {
		t.Fatalf("missing apt block")
	}
}

func TestComposeCommissioningPowerOffVariants(t *testing.T) {
	c := testComposer(testArchives(), nil)

	doc, err := c.Compose(context.Background(), KindCommissioning, testMachine(StatusDiskErasing))
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	power := decodeCloudConfig(t, doc)["power_state"].(map[string]any)
	if power["timeout"] != 604800 {
		t.Fatalf("disk erasing timeout = %v, want 604800", power["timeout"])
	}

	doc, err = c.Compose(context.Background(), KindCommissioning, testMachine(StatusEnteringRescueMode))
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if _, ok := decodeCloudConfig(t, doc)["power_state"]; ok {
		t.Fatalf("rescue-mode document must not carry power_state")
	}
}

func TestComposeCurtinFallback(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ubuntu", DelegateFunc(func(ctx context.Context, kind RequestKind, m Machine, creds CredentialTriple, metadataURL string) Result {
		return NotSupported()
	}))
	c := testComposer(testArchives(), reg)

	doc, err := c.Compose(context.Background(), KindCurtin, testMachine(StatusDeploying))
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	cfg := decodeCloudConfig(t, doc)

	if _, ok := cfg["power_state"]; ok {
		t.Fatalf("curtin fallback must never carry power_state")
	}
	maas := cfg["datasource"].(map[string]any)["MAAS"].(map[string]any)
	if maas["metadata_url"] != "http://rack01.example:5240/curtin-metadata" {
		t.Fatalf("curtin metadata_url = %v", maas["metadata_url"])
	}
}

func TestComposeDebconfFallback(t *testing.T) {
	reg := NewRegistry()
	reg.Register("ubuntu", DelegateFunc(func(ctx context.Context, kind RequestKind, m Machine, creds CredentialTriple, metadataURL string) Result {
		return NotSupported()
	}))
	c := testComposer(testArchives(), reg)

	doc, err := c.Compose(context.Background(), KindDefault, testMachine(StatusDeployed))
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	lines := strings.Split(string(doc), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d debconf lines, want 4:\n%s", len(lines), doc)
	}
	if lines[0] != "cloud-init   cloud-init/datasources  multiselect MAAS" {
		t.Fatalf("datasource line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "cloud-init   cloud-init/maas-metadata-url  string http://rack01.example:5240/metadata") {
		t.Fatalf("metadata-url line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "oauth_consumer_key=ck") ||
		!strings.Contains(lines[2], "oauth_token_key=tk") ||
		!strings.Contains(lines[2], "oauth_token_secret=ts") {
		t.Fatalf("credentials line = %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "cloud-init   cloud-init/local-cloud-config  string ") {
		t.Fatalf("local config line = %q", lines[3])
	}

	// The embedded document is escaped onto a single line and preserves
	// existing sources.
	if !strings.Contains(lines[3], `\n`) {
		t.Fatalf("local config not debconf-escaped: %q", lines[3])
	}
	if !strings.Contains(lines[3], `preserve_sources_list: true`) {
		t.Fatalf("local config must force preserve_sources_list: %q", lines[3])
	}
	if strings.Contains(string(doc), "power_state") {
		t.Fatalf("debconf fallback must never carry a power-off key")
	}
}

func TestComposeDelegateHandled(t *testing.T) {
	payload := []byte("<unattend/>")
	reg := NewRegistry()
	reg.Register("windows", DelegateFunc(func(ctx context.Context, kind RequestKind, m Machine, creds CredentialTriple, metadataURL string) Result {
		return Handled(payload)
	}))
	c := testComposer(testArchives(), reg)

	m := testMachine(StatusDeploying)
	m.OSystem = "windows"
	doc, err := c.Compose(context.Background(), KindDefault, m)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if string(doc) != string(payload) {
		t.Fatalf("delegate payload altered: %q", doc)
	}
}

func TestComposePropagatesDelegateFailures(t *testing.T) {
	c := testComposer(testArchives(), NewRegistry())
	m := testMachine(StatusDeploying)
	m.OSystem = "plan9"
	if _, err := c.Compose(context.Background(), KindDefault, m); !errors.Is(err, ErrUnknownOS) {
		t.Fatalf("error = %v, want ErrUnknownOS", err)
	}

	reg := NewRegistry()
	reg.Register("ubuntu", DelegateFunc(func(ctx context.Context, kind RequestKind, m Machine, creds CredentialTriple, metadataURL string) Result {
		return Unreachable(errors.New("connection refused"))
	}))
	c = testComposer(testArchives(), reg)
	if _, err := c.Compose(context.Background(), KindCurtin, testMachine(StatusDeploying)); !errors.Is(err, ErrRackUnreachable) {
		t.Fatalf("error = %v, want ErrRackUnreachable", err)
	}
}

func TestComposeMissingDefaultArchiveIsFatal(t *testing.T) {
	archives := fakeArchives{archiveErr: ErrNoDefaultArchive}
	c := testComposer(archives, nil)
	if _, err := c.Compose(context.Background(), KindCommissioning, testMachine(StatusCommissioning)); !errors.Is(err, ErrNoDefaultArchive) {
		t.Fatalf("error = %v, want ErrNoDefaultArchive", err)
	}
}
