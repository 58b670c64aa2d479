package bundles

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func testSecretKey(t *testing.T) string {
	t.Helper()
	seed := bytes.Repeat([]byte{0x42}, 32)
	data, err := bech32.ConvertBits(seed, 8, 5, true)
	if err != nil {
		t.Fatalf("convert bits: %v", err)
	}
	key, err := bech32.Encode("age-secret-key-", data)
	if err != nil {
		t.Fatalf("encode key: %v", err)
	}
	return key
}

func writeSourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	templates := filepath.Join(dir, "templates")
	if err := os.MkdirAll(templates, 0o755); err != nil {
		t.Fatal(err)
	}
	boot := filepath.Join(dir, "boot", "noble", "amd64")
	if err := os.MkdirAll(boot, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(templates, "commissioning.tmpl"): "#!/bin/sh\necho {{.SystemID}}\n",
		filepath.Join(templates, "disk_erasing.tmpl"):  "#!/bin/sh\necho wipe\n",
		filepath.Join(boot, "vmlinuz"):                 "kernel bits",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestBuildAndExtractRoundTrip(t *testing.T) {
	signer, err := NewSigner(testSecretKey(t), "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	output := filepath.Join(t.TempDir(), "bundle.tar.zst")
	manifest, err := Build(context.Background(), BuildConfig{
		SourceDir: writeSourceDir(t),
		Output:    output,
		Signer:    signer,
		Stdout:    &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(manifest.Templates) != 2 {
		t.Fatalf("templates = %d, want 2", len(manifest.Templates))
	}
	if manifest.Templates[0].Purpose != "commissioning" || manifest.Templates[1].Purpose != "disk_erasing" {
		t.Fatalf("unexpected template order: %+v", manifest.Templates)
	}
	if len(manifest.BootFiles) != 1 || manifest.BootFiles[0].Path != "boot/noble/amd64/vmlinuz" {
		t.Fatalf("unexpected boot files: %+v", manifest.BootFiles)
	}
	if manifest.Signature == "" {
		t.Fatal("manifest not signed")
	}

	// A verification-only signer with just the embedded public key must
	// accept the archive.
	verifier, err := NewSigner("", signer.PublicKeyBase64())
	if err != nil {
		t.Fatalf("NewSigner verify-only: %v", err)
	}
	extracted, files, cleanup, err := extract(context.Background(), output, verifier)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	defer cleanup()

	if extracted.Version != "1" {
		t.Fatalf("version = %q", extracted.Version)
	}
	for _, tmpl := range extracted.Templates {
		path, ok := files[tmpl.Path]
		if !ok {
			t.Fatalf("missing extracted file for %q", tmpl.Path)
		}
		if err := validateEntry(path, tmpl.Path, tmpl.Size, tmpl.SHA256); err != nil {
			t.Fatalf("validateEntry(%q): %v", tmpl.Path, err)
		}
	}
}

func TestExtractRejectsWrongKey(t *testing.T) {
	signer, err := NewSigner(testSecretKey(t), "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	output := filepath.Join(t.TempDir(), "bundle.tar.zst")
	if _, err := Build(context.Background(), BuildConfig{
		SourceDir: writeSourceDir(t),
		Output:    output,
		Signer:    signer,
		Stdout:    &bytes.Buffer{},
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	otherSeed := bytes.Repeat([]byte{0x17}, 32)
	data, err := bech32.ConvertBits(otherSeed, 8, 5, true)
	if err != nil {
		t.Fatal(err)
	}
	otherKey, err := bech32.Encode("age-secret-key-", data)
	if err != nil {
		t.Fatal(err)
	}
	other, err := NewSigner(otherKey, "")
	if err != nil {
		t.Fatalf("NewSigner other: %v", err)
	}

	if _, _, _, err := extract(context.Background(), output, other); err == nil {
		t.Fatal("expected signature verification to fail with a different key")
	}
}

func TestBuildRejectsUnknownPurpose(t *testing.T) {
	dir := t.TempDir()
	templates := filepath.Join(dir, "templates")
	if err := os.MkdirAll(templates, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(templates, "debugging.tmpl"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	signer, err := NewSigner(testSecretKey(t), "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	_, err = Build(context.Background(), BuildConfig{
		SourceDir: dir,
		Output:    filepath.Join(t.TempDir(), "bundle.tar.zst"),
		Signer:    signer,
		Stdout:    &bytes.Buffer{},
	})
	if err == nil {
		t.Fatal("expected an error for an unknown template purpose")
	}
}

func TestSignerKeyMismatch(t *testing.T) {
	signer, err := NewSigner(testSecretKey(t), "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	payload := []byte("payload")
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := signer.Verify(payload, sig, signer.PublicKeyBase64()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := signer.Verify([]byte("tampered"), sig, signer.PublicKeyBase64()); err == nil {
		t.Fatal("expected verification failure for a tampered payload")
	}
}
