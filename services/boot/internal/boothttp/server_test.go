package boothttp

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"hatchd/services/boot/internal/config"
)

func newTestMux(t *testing.T, cfg config.HTTPConfig) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	var ready atomic.Bool
	logger := log.New(io.Discard, "", 0)
	if err := RegisterHandlers(mux, cfg, &ready, logger); err != nil {
		t.Fatalf("RegisterHandlers: %v", err)
	}
	if !ready.Load() {
		t.Fatal("expected ready after registration")
	}
	return mux
}

func TestMenuScript(t *testing.T) {
	mux := newTestMux(t, config.HTTPConfig{MetadataEndpoint: "http://metadata.hatchd.local/"})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/menu.ipxe?mac=aa:bb:cc:dd:ee:ff", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, "#!ipxe\n") {
		t.Fatalf("script missing shebang: %q", body)
	}
	if !strings.Contains(body, "set meta http://metadata.hatchd.local\n") {
		t.Fatalf("script missing metadata endpoint: %q", body)
	}
	if !strings.Contains(body, "chain ${meta}/v1/boot/ipxe?mac=${mac}") {
		t.Fatalf("script missing chain line: %q", body)
	}
}

func TestMenuScriptRequiresMAC(t *testing.T) {
	mux := newTestMux(t, config.HTTPConfig{MetadataEndpoint: "http://metadata.hatchd.local"})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/menu.ipxe", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestRegisterHandlersRequiresEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	var ready atomic.Bool
	err := RegisterHandlers(mux, config.HTTPConfig{}, &ready, log.New(io.Discard, "", 0))
	if err == nil {
		t.Fatal("expected an error for a missing metadata endpoint")
	}
}
