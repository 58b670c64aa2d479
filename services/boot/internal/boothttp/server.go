// Package boothttp serves the iPXE chain script and boot images over HTTP.
package boothttp

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"hatchd/services/boot/internal/config"
)

func RegisterHandlers(mux *http.ServeMux, cfg config.HTTPConfig, ready *atomic.Bool, logger *log.Logger) error {
	if mux == nil {
		return errors.New("nil mux")
	}
	if logger == nil {
		logger = log.Default()
	}
	if ready == nil {
		return errors.New("ready indicator is nil")
	}
	if cfg.MetadataEndpoint == "" {
		return errors.New("boot HTTP metadata endpoint is required")
	}

	endpoint := strings.TrimRight(cfg.MetadataEndpoint, "/")
	mux.HandleFunc("/menu.ipxe", func(w http.ResponseWriter, r *http.Request) {
		mac := strings.TrimSpace(r.URL.Query().Get("mac"))
		if mac == "" {
			http.Error(w, "missing mac query parameter", http.StatusBadRequest)
			return
		}
		script := fmt.Sprintf("#!ipxe\nset meta %s\nchain ${meta}/v1/boot/ipxe?mac=${mac}\n", endpoint)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(script))
	})

	if cfg.ImagesRoot != "" {
		info, err := os.Stat(cfg.ImagesRoot)
		if err != nil {
			return fmt.Errorf("stat images root: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("images root %s is not a directory", cfg.ImagesRoot)
		}
		mux.Handle("/images/", http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.ImagesRoot))))
	}

	ready.Store(true)
	logger.Printf("INFO boot HTTP handlers registered for metadata endpoint %s", endpoint)
	return nil
}
