package preseed

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestCredentialTripleQueryString(t *testing.T) {
	triple := CredentialTriple{
		ConsumerKey: "consumer+key",
		TokenKey:    "token key",
		TokenSecret: "s3cret",
	}
	want := "oauth_consumer_key=consumer%2Bkey&oauth_token_key=token+key&oauth_token_secret=s3cret"
	if got := triple.QueryString(); got != want {
		t.Fatalf("QueryString() = %q, want %q", got, want)
	}
}

func TestEscapeForDebconf(t *testing.T) {
	type doc struct {
		Path  string `yaml:"path"`
		Other string `yaml:"other"`
	}
	in := doc{Path: `C:\boot`, Other: "plain"}

	escaped, err := EscapeForDebconf(in)
	if err != nil {
		t.Fatalf("EscapeForDebconf() error = %v", err)
	}

	if strings.Contains(escaped, "\n") {
		t.Fatalf("escaped value still contains a literal newline: %q", escaped)
	}
	if !strings.Contains(escaped, `\\`) {
		t.Fatalf("backslash was not doubled: %q", escaped)
	}
	if !strings.Contains(escaped, `\n`) {
		t.Fatalf("newlines were not replaced by backslash-n: %q", escaped)
	}

	// Invert the escape and confirm nothing else was altered.
	restored := strings.ReplaceAll(escaped, `\\`, "\x00")
	restored = strings.ReplaceAll(restored, `\n`, "\n")
	restored = strings.ReplaceAll(restored, "\x00", `\`)

	var out doc
	if err := yaml.Unmarshal([]byte(restored), &out); err != nil {
		t.Fatalf("unmarshal restored document: %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}
