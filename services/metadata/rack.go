package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hatchd/services/metadata/preseed"
)

// Operating systems whose preseed requests are offered to the rack first.
// The rack answers 501 for combinations it has nothing special for, which
// sends the composer down its generic fallback paths.
var delegatedSystems = []string{"ubuntu", "centos", "rhel", "windows", "esxi"}

const rackRequestTimeout = 10 * time.Second

// rackDelegate asks a machine's rack controller for OS-specific preseed
// content over HTTP and maps the response onto delegate outcomes.
type rackDelegate struct {
	client *http.Client
}

func newRackDelegate(client *http.Client) *rackDelegate {
	if client == nil {
		client = &http.Client{Timeout: rackRequestTimeout}
	}
	return &rackDelegate{client: client}
}

func (d *rackDelegate) Preseed(ctx context.Context, kind preseed.RequestKind, m preseed.Machine, creds preseed.CredentialTriple, metadataURL string) preseed.Result {
	target := fmt.Sprintf("%s/os/%s/%s/preseed?kind=%s",
		strings.TrimRight(metadataURL, "/"),
		url.PathEscape(m.OSystem),
		url.PathEscape(m.DistroSeries),
		url.QueryEscape(string(kind)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return preseed.Unreachable(err)
	}
	req.Header.Set("Authorization", fmt.Sprintf(
		"OAuth oauth_consumer_key=%q, oauth_token=%q", creds.ConsumerKey, creds.TokenKey))

	resp, err := d.client.Do(req)
	if err != nil {
		return preseed.Unreachable(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return preseed.Unreachable(err)
		}
		return preseed.Handled(payload)
	case http.StatusNotImplemented:
		return preseed.NotSupported()
	case http.StatusNotFound:
		return preseed.UnknownOS(m.OSystem)
	default:
		return preseed.Unreachable(fmt.Errorf("rack returned status %d", resp.StatusCode))
	}
}
