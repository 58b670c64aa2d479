package tftp

import (
	"path/filepath"
	"testing"
)

func TestResolvePath(t *testing.T) {
	root := filepath.FromSlash("/var/lib/tftpboot")

	tests := []struct {
		name     string
		filename string
		want     string
		wantErr  bool
	}{
		{"plain file", "undionly.kpxe", "/var/lib/tftpboot/undionly.kpxe", false},
		{"nested file", "noble/amd64/vmlinuz", "/var/lib/tftpboot/noble/amd64/vmlinuz", false},
		{"leading slash", "/undionly.kpxe", "/var/lib/tftpboot/undionly.kpxe", false},
		{"traversal", "../../etc/passwd", "", true},
		{"embedded traversal", "images/../../secret", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePath(root, tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolvePath(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if want := filepath.FromSlash(tt.want); got != want {
				t.Fatalf("resolvePath(%q) = %q, want %q", tt.filename, got, want)
			}
		})
	}
}
