package userdata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"hatchd/pkg/render"
)

func testSource(t *testing.T) *Source {
	t.Helper()
	engine, err := render.New()
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	return New(engine, nil, "")
}

func testParams() Params {
	return Params{
		SystemID:    "abc123",
		MetadataURL: "http://rack01.example:5240/metadata",
		ConsumerKey: "consumer",
		TokenKey:    "token",
		TokenSecret: "secret",
	}
}

func decompress(t *testing.T, blob []byte) string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read decompressed blob: %v", err)
	}
	return string(raw)
}

func TestGenerateCommissioning(t *testing.T) {
	src := testSource(t)

	blob, err := src.Generate(context.Background(), PurposeCommissioning, testParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	msg := decompress(t, blob)
	if !strings.HasPrefix(msg, "Content-Type: multipart/mixed; boundary=") {
		t.Fatalf("message does not start with multipart header:\n%s", msg[:min(len(msg), 120)])
	}
	for _, want := range []string{
		"text/cloud-config",
		"text/x-shellscript",
		"#!/bin/sh",
		"metadata_url: http://rack01.example:5240/metadata",
		`METADATA_URL="http://rack01.example:5240/metadata"`,
		"token_secret: secret",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestGenerateDiskErasing(t *testing.T) {
	src := testSource(t)
	params := testParams()

	t.Run("full erase by default", func(t *testing.T) {
		blob, err := src.Generate(context.Background(), PurposeDiskErasing, params)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		msg := decompress(t, blob)
		if !strings.Contains(msg, "bs=4M") {
			t.Fatalf("expected full-wipe dd invocation, got:\n%s", msg)
		}
		if strings.Contains(msg, "hdparm") {
			t.Fatal("secure erase branch rendered without SecureErase set")
		}
	})

	t.Run("quick and secure erase", func(t *testing.T) {
		params.SecureErase = true
		params.QuickErase = true
		blob, err := src.Generate(context.Background(), PurposeDiskErasing, params)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		msg := decompress(t, blob)
		if !strings.Contains(msg, "hdparm") {
			t.Fatal("expected secure erase branch")
		}
		if !strings.Contains(msg, "wipefs") {
			t.Fatal("expected quick erase branch")
		}
	})
}

func TestGenerateUnknownPurpose(t *testing.T) {
	src := testSource(t)

	_, err := src.Generate(context.Background(), "install", testParams())
	if !errors.Is(err, ErrUnknownPurpose) {
		t.Fatalf("err = %v, want ErrUnknownPurpose", err)
	}
}
