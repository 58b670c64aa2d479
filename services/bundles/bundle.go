package bundles

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	objstore "hatchd/pkg/s3"
)

const (
	manifestFileName  = "manifest.yaml"
	templatesPrefix   = "templates"
	bootFilesPrefix   = "boot"
	templateExtension = ".tmpl"
)

var knownPurposes = map[string]bool{
	"commissioning": true,
	"disk_erasing":  true,
}

// BuildConfig configures bundle creation. SourceDir holds templates/ and
// boot/ subdirectories; templates are named <purpose>.tmpl.
type BuildConfig struct {
	SourceDir string
	Output    string
	Signer    *Signer
	Now       func() time.Time
	Stdout    io.Writer
}

// ImportConfig configures bundle import. Verified templates land in
// TemplateBucket under templates/<purpose>; boot files land in ImagesBucket
// under their bundle-relative path.
type ImportConfig struct {
	BundlePath     string
	TemplateBucket string
	ImagesBucket   string
	S3             *objstore.Client
	Signer         *Signer
	Stdout         io.Writer
}

// Build assembles a signed bundle from SourceDir and writes the tar.zst
// archive to Output.
func Build(ctx context.Context, cfg BuildConfig) (*Manifest, error) {
	if cfg.SourceDir == "" {
		return nil, errors.New("source directory is required")
	}
	if cfg.Output == "" {
		return nil, errors.New("output path is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("signer is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	templates, err := collectTemplates(ctx, filepath.Join(cfg.SourceDir, templatesPrefix))
	if err != nil {
		return nil, err
	}
	bootFiles, err := collectBootFiles(ctx, filepath.Join(cfg.SourceDir, bootFilesPrefix))
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 && len(bootFiles) == 0 {
		return nil, errors.New("nothing to bundle: no templates or boot files found")
	}

	manifest := &Manifest{
		Version:          "1",
		CreatedAt:        cfg.Now().UTC().Truncate(time.Second),
		Signer:           cfg.Signer.Recipient(),
		SigningPublicKey: cfg.Signer.PublicKeyBase64(),
		Templates:        templates,
		BootFiles:        bootFiles,
	}

	payload, err := manifest.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for signing: %w", err)
	}
	sig, err := cfg.Signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign manifest: %w", err)
	}
	manifest.Signature = sig

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	if err := writeArchive(cfg.SourceDir, cfg.Output, manifestBytes, manifest); err != nil {
		return nil, err
	}

	fmt.Fprintf(cfg.Stdout, "wrote bundle %s (%d templates, %d boot files)\n",
		cfg.Output, len(templates), len(bootFiles))
	return manifest, nil
}

func collectTemplates(ctx context.Context, dir string) ([]TemplateEntry, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read templates dir: %w", err)
	}

	var templates []TemplateEntry
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), templateExtension) {
			continue
		}
		purpose := strings.TrimSuffix(entry.Name(), templateExtension)
		if !knownPurposes[purpose] {
			return nil, fmt.Errorf("unknown template purpose %q", purpose)
		}
		size, sum, err := hashFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		templates = append(templates, TemplateEntry{
			Purpose: purpose,
			Path:    templatesPrefix + "/" + entry.Name(),
			Size:    size,
			SHA256:  sum,
		})
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Purpose < templates[j].Purpose })
	return templates, nil
}

func collectBootFiles(ctx context.Context, dir string) ([]FileEntry, error) {
	var files []FileEntry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("relative path for %q: %w", path, err)
		}
		size, sum, err := hashFile(path)
		if err != nil {
			return err
		}
		files = append(files, FileEntry{
			Path:   bootFilesPrefix + "/" + filepath.ToSlash(rel),
			Size:   size,
			SHA256: sum,
		})
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func hashFile(path string) (int64, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("open %q: %w", path, err)
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return 0, "", fmt.Errorf("hash %q: %w", path, err)
	}
	return size, hex.EncodeToString(hash.Sum(nil)), nil
}

func writeArchive(sourceDir, output string, manifestBytes []byte, manifest *Manifest) error {
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer file.Close()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	defer encoder.Close()

	tw := tar.NewWriter(encoder)
	defer tw.Close()

	header := &tar.Header{
		Name:     manifestFileName,
		Mode:     0o644,
		Size:     int64(len(manifestBytes)),
		ModTime:  time.Now().UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestBytes); err != nil {
		return fmt.Errorf("write manifest body: %w", err)
	}

	paths := make([]string, 0, len(manifest.Templates)+len(manifest.BootFiles))
	for _, t := range manifest.Templates {
		paths = append(paths, t.Path)
	}
	for _, f := range manifest.BootFiles {
		paths = append(paths, f.Path)
	}

	for _, rel := range paths {
		fullPath := filepath.Join(sourceDir, filepath.FromSlash(rel))
		info, err := os.Stat(fullPath)
		if err != nil {
			return fmt.Errorf("stat %q: %w", rel, err)
		}
		src, err := os.Open(fullPath)
		if err != nil {
			return fmt.Errorf("open %q: %w", rel, err)
		}
		header := &tar.Header{
			Name:     rel,
			Mode:     int64(info.Mode().Perm()),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			src.Close()
			return fmt.Errorf("write header for %q: %w", rel, err)
		}
		if _, err := io.Copy(tw, src); err != nil {
			src.Close()
			return fmt.Errorf("copy %q: %w", rel, err)
		}
		src.Close()
	}

	return nil
}

// Import verifies a bundle and uploads its contents to object storage.
func Import(ctx context.Context, cfg ImportConfig) (*Manifest, error) {
	if cfg.BundlePath == "" {
		return nil, errors.New("bundle file is required")
	}
	if cfg.TemplateBucket == "" {
		return nil, errors.New("template bucket is required")
	}
	if cfg.S3 == nil {
		return nil, errors.New("s3 client is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("signer is required")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	manifest, files, cleanup, err := extract(ctx, cfg.BundlePath, cfg.Signer)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	fmt.Fprintf(cfg.Stdout, "verified manifest signed at %s\n", manifest.CreatedAt.Format(time.RFC3339))

	for _, tmpl := range manifest.Templates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, ok := files[tmpl.Path]
		if !ok {
			return nil, fmt.Errorf("template %q missing from archive", tmpl.Path)
		}
		if err := validateEntry(path, tmpl.Path, tmpl.Size, tmpl.SHA256); err != nil {
			return nil, err
		}
		key := templatesPrefix + "/" + tmpl.Purpose
		if err := upload(ctx, cfg.S3, cfg.TemplateBucket, key, path, tmpl.Size, tmpl.SHA256); err != nil {
			return nil, err
		}
		fmt.Fprintf(cfg.Stdout, "uploaded template %s (%d bytes)\n", tmpl.Purpose, tmpl.Size)
	}

	for _, boot := range manifest.BootFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cfg.ImagesBucket == "" {
			return nil, errors.New("bundle carries boot files but no images bucket is configured")
		}
		path, ok := files[boot.Path]
		if !ok {
			return nil, fmt.Errorf("boot file %q missing from archive", boot.Path)
		}
		if err := validateEntry(path, boot.Path, boot.Size, boot.SHA256); err != nil {
			return nil, err
		}
		key := strings.TrimPrefix(boot.Path, bootFilesPrefix+"/")
		if err := upload(ctx, cfg.S3, cfg.ImagesBucket, key, path, boot.Size, boot.SHA256); err != nil {
			return nil, err
		}
		fmt.Fprintf(cfg.Stdout, "uploaded boot file %s (%d bytes)\n", key, boot.Size)
	}

	return manifest, nil
}

// extract unpacks the archive to a temp dir, parses the manifest and checks
// its signature. The returned cleanup removes the temp dir.
func extract(ctx context.Context, bundlePath string, signer *Signer) (*Manifest, map[string]string, func(), error) {
	bundleFile, err := os.Open(bundlePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open bundle: %w", err)
	}
	defer bundleFile.Close()

	decoder, err := zstd.NewReader(bundleFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	tempDir, err := os.MkdirTemp("", "hatchd-bundle-*")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tempDir) }

	fail := func(err error) (*Manifest, map[string]string, func(), error) {
		cleanup()
		return nil, nil, nil, err
	}

	tr := tar.NewReader(decoder)
	var manifestBytes []byte
	files := map[string]string{}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("read tar entry: %w", err))
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.ToSlash(filepath.Clean(header.Name))
		if name == manifestFileName {
			data, err := io.ReadAll(tr)
			if err != nil {
				return fail(fmt.Errorf("read manifest: %w", err))
			}
			manifestBytes = data
			continue
		}

		targetPath := filepath.Join(tempDir, filepath.FromSlash(name))
		if !strings.HasPrefix(targetPath, tempDir+string(filepath.Separator)) {
			return fail(fmt.Errorf("invalid entry path %q", name))
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return fail(fmt.Errorf("mkdir for %q: %w", name, err))
		}
		dst, err := os.Create(targetPath)
		if err != nil {
			return fail(fmt.Errorf("create temp file for %q: %w", name, err))
		}
		if _, err := io.Copy(dst, tr); err != nil {
			dst.Close()
			return fail(fmt.Errorf("write temp file for %q: %w", name, err))
		}
		dst.Close()
		files[name] = targetPath
	}

	if len(manifestBytes) == 0 {
		return fail(errors.New("bundle missing manifest.yaml"))
	}

	var manifest Manifest
	if err := yaml.Unmarshal(manifestBytes, &manifest); err != nil {
		return fail(fmt.Errorf("unmarshal manifest: %w", err))
	}
	if manifest.Version != "1" {
		return fail(fmt.Errorf("unsupported manifest version %q", manifest.Version))
	}
	if manifest.Signature == "" {
		return fail(errors.New("manifest missing signature"))
	}

	payload, err := manifest.SigningBytes()
	if err != nil {
		return fail(fmt.Errorf("marshal manifest for verification: %w", err))
	}
	if err := signer.Verify(payload, manifest.Signature, manifest.SigningPublicKey); err != nil {
		return fail(fmt.Errorf("verify manifest signature: %w", err))
	}

	return &manifest, files, cleanup, nil
}

func validateEntry(path, name string, size int64, sha string) error {
	gotSize, gotSHA, err := hashFile(path)
	if err != nil {
		return err
	}
	if gotSize != size {
		return fmt.Errorf("size mismatch for %q: expected %d got %d", name, size, gotSize)
	}
	if !strings.EqualFold(gotSHA, sha) {
		return fmt.Errorf("sha256 mismatch for %q", name)
	}
	return nil
}

func upload(ctx context.Context, client *objstore.Client, bucket, key, path string, size int64, sha string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %q for upload: %w", path, err)
	}
	defer file.Close()

	if err := client.PutObject(ctx, bucket, key, file, size, sha); err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return nil
}
