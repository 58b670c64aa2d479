// Package bundles builds and imports signed template bundles. A bundle is a
// tar.zst archive carrying userdata template overrides and boot files, with a
// signed manifest so air-gapped sites can verify provenance before import.
package bundles

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the signed metadata included in every bundle.
type Manifest struct {
	Version          string          `yaml:"version"`
	CreatedAt        time.Time       `yaml:"created_at"`
	Signer           string          `yaml:"signer,omitempty"`
	SigningPublicKey string          `yaml:"signing_public_key,omitempty"`
	Signature        string          `yaml:"signature,omitempty"`
	Templates        []TemplateEntry `yaml:"templates,omitempty"`
	BootFiles        []FileEntry     `yaml:"boot_files,omitempty"`
}

// SigningBytes marshals the manifest without its signature for
// signing and verification.
func (m Manifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.Signature = ""
	return yaml.Marshal(clone)
}

// TemplateEntry describes one userdata template override. Purpose matches the
// preseed purposes the metadata service knows (commissioning, disk_erasing).
type TemplateEntry struct {
	Purpose string `yaml:"purpose"`
	Path    string `yaml:"path"`
	Size    int64  `yaml:"size"`
	SHA256  string `yaml:"sha256"`
}

// FileEntry describes a boot file (kernel, initrd, iPXE binary).
type FileEntry struct {
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}
