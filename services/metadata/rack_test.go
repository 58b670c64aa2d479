package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"hatchd/services/metadata/preseed"
)

func TestRackDelegateOutcomes(t *testing.T) {
	machine := preseed.Machine{
		SystemID:     "abc123",
		OSystem:      "windows",
		DistroSeries: "win2022",
	}
	creds := preseed.CredentialTriple{ConsumerKey: "consumer", TokenKey: "token", TokenSecret: "secret"}

	cases := []struct {
		name    string
		status  int
		body    string
		outcome preseed.Outcome
	}{
		{"ok is handled", http.StatusOK, "os preseed body", preseed.OutcomeHandled},
		{"not implemented is not supported", http.StatusNotImplemented, "", preseed.OutcomeNotSupported},
		{"not found is unknown os", http.StatusNotFound, "", preseed.OutcomeUnknownOS},
		{"server error is unreachable", http.StatusInternalServerError, "", preseed.OutcomeUnreachable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotPath, gotKind, gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotKind = r.URL.Query().Get("kind")
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			d := newRackDelegate(srv.Client())
			res := d.Preseed(context.Background(), preseed.KindDefault, machine, creds, srv.URL+"/metadata")

			if res.Outcome != tc.outcome {
				t.Fatalf("outcome = %d, want %d (err=%v)", res.Outcome, tc.outcome, res.Err)
			}
			if gotPath != "/metadata/os/windows/win2022/preseed" {
				t.Fatalf("request path = %q", gotPath)
			}
			if gotKind != "default" {
				t.Fatalf("kind query = %q", gotKind)
			}
			if gotAuth == "" {
				t.Fatal("expected Authorization header to be set")
			}
			if tc.outcome == preseed.OutcomeHandled && string(res.Payload) != tc.body {
				t.Fatalf("payload = %q, want %q", res.Payload, tc.body)
			}
		})
	}
}

func TestRackDelegateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	d := newRackDelegate(nil)
	res := d.Preseed(context.Background(), preseed.KindDefault, preseed.Machine{OSystem: "ubuntu"}, preseed.CredentialTriple{}, srv.URL)

	if res.Outcome != preseed.OutcomeUnreachable {
		t.Fatalf("outcome = %d, want unreachable", res.Outcome)
	}
	if !errors.Is(res.Err, preseed.ErrRackUnreachable) {
		t.Fatalf("err = %v, want ErrRackUnreachable", res.Err)
	}
}
