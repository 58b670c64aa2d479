// Package preseed composes the boot-time configuration payload delivered to a
// machine being provisioned: the document a freshly booted or newly installed
// machine needs to find its control plane, authenticate, configure apt, and
// report status. Composition is a pure, synchronous transform over
// already-fetched inputs; persistence, transport, and retry policy belong to
// the callers.
package preseed

import (
	"context"
	"errors"
	"strings"
)

// RequestKind selects the output format of a composed document.
type RequestKind string

const (
	// KindCommissioning produces the cloud-config used while a machine is
	// commissioned, including the post-commissioning power-off block.
	KindCommissioning RequestKind = "commissioning"
	// KindCurtin produces the cloud-config consumed by the curtin installer.
	KindCurtin RequestKind = "curtin"
	// KindDefault produces OS-driven preseed content, falling back to
	// debconf selection lines when the OS has nothing special to say.
	KindDefault RequestKind = "default"
)

// Status is a machine lifecycle status as recorded by the record store.
type Status string

const (
	StatusNew                Status = "new"
	StatusCommissioning      Status = "commissioning"
	StatusReady              Status = "ready"
	StatusDeploying          Status = "deploying"
	StatusDeployed           Status = "deployed"
	StatusDiskErasing        Status = "disk_erasing"
	StatusEnteringRescueMode Status = "entering_rescue_mode"
	StatusRescueMode         Status = "rescue_mode"
	StatusBroken             Status = "broken"
)

var (
	// ErrNoDefaultArchive reports the fatal configuration error of an
	// architecture with no enabled default package archive.
	ErrNoDefaultArchive = errors.New("no default package archive configured")
	// ErrUnknownOS reports an operating system no delegate knows about.
	ErrUnknownOS = errors.New("unknown operating system")
	// ErrRackUnreachable reports that the machine's rack controller could
	// not be reached while asking for OS-specific preseed content.
	ErrRackUnreachable = errors.New("rack controller unreachable")
)

// Machine is a read-only view of a provisionable host. Instances are
// assembled fresh per composition call and never mutated.
type Machine struct {
	SystemID     string
	Hostname     string
	Architecture string // "<arch>/<subarch>"
	OSystem      string
	DistroSeries string
	Status       Status
}

// PrimaryArch returns the architecture with any subarchitecture suffix
// removed, e.g. "amd64/generic" becomes "amd64".
func (m Machine) PrimaryArch() string {
	arch, _, _ := strings.Cut(m.Architecture, "/")
	return arch
}

// Archive is the default package archive configured for an architecture.
type Archive struct {
	URL             string
	Key             string
	DisabledPockets []string
}

// PackageRepository is an additional apt source configured by an operator.
type PackageRepository struct {
	ID            int64
	Name          string
	URL           string
	Key           string
	Components    []string
	Distributions []string
}

// CredentialTriple is a machine's opaque authentication material. It is
// never inspected, only encoded.
type CredentialTriple struct {
	ConsumerKey string
	TokenKey    string
	TokenSecret string
}

// Snapshot is a read-only capture of the ambient settings a composition
// depends on, taken once per call so composition stays a pure function of
// its arguments.
type Snapshot struct {
	ProxyEnabled    bool
	ProxyURL        string
	MainArchiveURL  string
	PortsArchiveURL string
}

// RackController locates the boot rack controller through which a machine
// reaches the control plane.
type RackController struct {
	Host string // hostname as seen from the machine
	URL  string // base URL for the metadata service
}

// ArchiveStore resolves package archive configuration for an architecture.
// DefaultArchive wraps ErrNoDefaultArchive when none is configured.
type ArchiveStore interface {
	DefaultArchive(ctx context.Context, arch string) (Archive, error)
	AdditionalRepositories(ctx context.Context, arch string) ([]PackageRepository, error)
}

// RackResolver finds the rack controller a machine boots through.
type RackResolver interface {
	BootController(ctx context.Context, m Machine) (RackController, error)
}

// TokenIssuer returns the credential triple for a machine, minting one if
// the machine has none yet.
type TokenIssuer interface {
	TokenFor(ctx context.Context, m Machine) (CredentialTriple, error)
}

// SnapshotSource captures the ambient settings for one composition call.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// EndpointBuilder resolves named service endpoints to absolute URLs rooted
// at a rack controller's base URL.
type EndpointBuilder interface {
	Endpoint(name, baseURL string, args ...string) string
}

// Endpoint names understood by the EndpointBuilder.
const (
	EndpointMetadata       = "metadata"
	EndpointCurtinMetadata = "curtin-metadata"
	EndpointMetadataStatus = "metadata-status"
)
