package preseed

import (
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// QueryString encodes the triple in URL query form under the fixed OAuth key
// names, for embedding in a datasource URL or legacy preseed line.
func (t CredentialTriple) QueryString() string {
	return url.Values{
		"oauth_consumer_key": {t.ConsumerKey},
		"oauth_token_key":    {t.TokenKey},
		"oauth_token_secret": {t.TokenSecret},
	}.Encode()
}

// EscapeForDebconf serializes v to YAML and collapses it to a single-line
// value safe for a debconf answer: backslashes doubled first, then newlines
// replaced by the two-character sequence backslash-n.
func EscapeForDebconf(v any) (string, error) {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	escaped := strings.ReplaceAll(string(raw), `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	return escaped, nil
}
