package preseed

import (
	"fmt"
	"strings"
)

// Port the rack controller serves its package proxy on.
const rackProxyPort = 8000

// ResolveProxy decides the package proxy a machine should use. Proxying
// disabled yields the empty string; an explicit non-blank proxy URL wins;
// otherwise the machine is pointed at its own rack controller.
func ResolveProxy(snap Snapshot, rack RackController) string {
	if !snap.ProxyEnabled {
		return ""
	}
	if strings.TrimSpace(snap.ProxyURL) != "" {
		return snap.ProxyURL
	}
	return fmt.Sprintf("http://%s:%d/", rack.Host, rackProxyPort)
}
