package preseed

// Upstream mirrors used when the configured archives are unreachable.
const (
	failsafeMainArchive     = "http://archive.ubuntu.com/ubuntu"
	failsafeSecurityArchive = "http://security.ubuntu.com/ubuntu"
	failsafePortsArchive    = "http://ports.ubuntu.com/ubuntu-ports"
)

// SystemInfo is the cloud-init system_info block carrying mirror search and
// failsafe URLs.
type SystemInfo struct {
	PackageMirrors []PackageMirror `yaml:"package_mirrors"`
}

// PackageMirror maps a set of architectures to mirror search and failsafe
// URLs.
type PackageMirror struct {
	Arches   []string       `yaml:"arches"`
	Search   MirrorSearch   `yaml:"search"`
	Failsafe MirrorFailsafe `yaml:"failsafe"`
}

// MirrorSearch lists candidate mirror URLs for primary and security pockets.
type MirrorSearch struct {
	Primary  []string `yaml:"primary"`
	Security []string `yaml:"security"`
}

// MirrorFailsafe names the last-resort mirrors.
type MirrorFailsafe struct {
	Primary  string `yaml:"primary"`
	Security string `yaml:"security"`
}

// NewSystemInfo derives the fixed-shape mirror description from the two
// configured archive URLs: i386/amd64 search the main archive, every other
// architecture searches the ports archive.
func NewSystemInfo(snap Snapshot) SystemInfo {
	return SystemInfo{
		PackageMirrors: []PackageMirror{
			{
				Arches: []string{"i386", "amd64"},
				Search: MirrorSearch{
					Primary:  []string{snap.MainArchiveURL},
					Security: []string{snap.MainArchiveURL},
				},
				Failsafe: MirrorFailsafe{
					Primary:  failsafeMainArchive,
					Security: failsafeSecurityArchive,
				},
			},
			{
				Arches: []string{"default"},
				Search: MirrorSearch{
					Primary:  []string{snap.PortsArchiveURL},
					Security: []string{snap.PortsArchiveURL},
				},
				Failsafe: MirrorFailsafe{
					Primary:  failsafePortsArchive,
					Security: failsafePortsArchive,
				},
			},
		},
	}
}
