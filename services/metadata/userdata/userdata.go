// Package userdata assembles the user-data blob served to machines in the
// ephemeral environment: a MIME multipart of the local cloud-init config and
// a purpose-specific shell script, gzip compressed for the wire. Operators
// can override the script templates by placing objects under templates/ in
// the object store.
package userdata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"text/template"

	"github.com/klauspost/compress/gzip"

	"hatchd/pkg/render"
	objstore "hatchd/pkg/s3"
)

// Purposes a user-data blob can be generated for.
const (
	PurposeCommissioning = "commissioning"
	PurposeDiskErasing   = "disk_erasing"
)

// ErrUnknownPurpose reports a purpose no template exists for.
var ErrUnknownPurpose = errors.New("unknown user-data purpose")

// Params feed the config and script templates.
type Params struct {
	SystemID    string
	MetadataURL string
	ConsumerKey string
	TokenKey    string
	TokenSecret string
	SecureErase bool
	QuickErase  bool
}

// Source renders user-data blobs, preferring operator overrides from the
// object store over the embedded templates.
type Source struct {
	engine *render.Engine
	s3     *objstore.Client
	bucket string
}

// New returns a Source. The object store client may be nil, in which case
// only embedded templates are used.
func New(engine *render.Engine, s3 *objstore.Client, bucket string) *Source {
	return &Source{engine: engine, s3: s3, bucket: bucket}
}

// Generate renders the user-data blob for purpose and compresses it.
func (s *Source) Generate(ctx context.Context, purpose string, p Params) ([]byte, error) {
	switch purpose {
	case PurposeCommissioning, PurposeDiskErasing:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}

	script, err := s.script(ctx, purpose, p)
	if err != nil {
		return nil, err
	}
	config, err := s.engine.Render("config.tmpl", p)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}

	blob, err := composeMIME(config, script)
	if err != nil {
		return nil, err
	}
	return compress(blob)
}

func (s *Source) script(ctx context.Context, purpose string, p Params) (string, error) {
	override, err := s.override(ctx, purpose)
	if err != nil {
		return "", err
	}
	if override != "" {
		tmpl, err := template.New(purpose).Parse(override)
		if err != nil {
			return "", fmt.Errorf("parse override for %s: %w", purpose, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, p); err != nil {
			return "", fmt.Errorf("render override for %s: %w", purpose, err)
		}
		return buf.String(), nil
	}

	rendered, err := s.engine.Render(purpose+".tmpl", p)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", purpose, err)
	}
	return rendered, nil
}

func (s *Source) override(ctx context.Context, purpose string) (string, error) {
	if s.s3 == nil || s.bucket == "" {
		return "", nil
	}

	body, err := s.s3.GetObject(ctx, s.bucket, "templates/"+purpose)
	if err != nil {
		if objstore.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("fetch override for %s: %w", purpose, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read override for %s: %w", purpose, err)
	}
	return string(raw), nil
}

func composeMIME(config, script string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":        {`text/cloud-config; charset="utf-8"`},
		"Content-Disposition": {`attachment; filename="config"`},
		"MIME-Version":        {"1.0"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(config)); err != nil {
		return nil, err
	}

	part, err = mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":        {`text/x-shellscript; charset="utf-8"`},
		"Content-Disposition": {`attachment; filename="user_data.sh"`},
		"MIME-Version":        {"1.0"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(script)); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%q\r\nMIME-Version: 1.0\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func compress(blob []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(blob); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
