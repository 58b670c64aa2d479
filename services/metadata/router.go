package metadata

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"hatchd/pkg/render"
	"hatchd/services/metadata/preseed"
	"hatchd/services/metadata/userdata"
)

const defaultTemplateBucket = "hatchd-templates"

// Config controls runtime behaviour for the metadata handlers.
type Config struct {
	APIBase        string
	TemplateBucket string
	AllowedOrigins []string
}

// API wires the record store, preseed composer, and user-data source behind
// the HTTP layer.
type API struct {
	store     *Store
	composer  *preseed.Composer
	userdata  *userdata.Source
	engine    *render.Engine
	endpoints Endpoints
	config    Config
}

// New initialises the metadata API layer. The composer is wired against the
// store for all lookups, with the rack delegate registered for every OS the
// rack can render special preseed content for.
func New(store *Store, cfg Config) (*API, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.DB == nil {
		return nil, errors.New("store DB is required")
	}
	if store.ORM == nil {
		return nil, errors.New("store ORM is required")
	}

	if cfg.TemplateBucket == "" {
		cfg.TemplateBucket = defaultTemplateBucket
	}

	engine, err := render.New()
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}

	registry := preseed.NewRegistry()
	delegate := newRackDelegate(nil)
	for _, osystem := range delegatedSystems {
		registry.Register(osystem, delegate)
	}

	return &API{
		store: store,
		composer: &preseed.Composer{
			Archives:  store,
			Settings:  store,
			Racks:     store,
			Tokens:    store,
			Endpoints: Endpoints{},
			Delegates: registry,
		},
		userdata: userdata.New(engine, store.S3, cfg.TemplateBucket),
		engine:   engine,
		config:   cfg,
	}, nil
}

// Routes constructs the chi router containing all metadata endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	allowed := a.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))
	// Generous per-client ceiling; a booting machine polls a handful of
	// endpoints, not hundreds.
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/machines", a.handleUpsertMachine)
		r.Post("/machines/{systemID}/status", a.handleMachineStatus)
		r.Get("/machines/{systemID}/preseed", a.handlePreseed)
		r.Get("/machines/{systemID}/userdata", a.handleUserdata)
		r.Get("/boot/ipxe", a.handleIPXE)
		r.Get("/repositories", a.handleListRepositories)
		r.Post("/repositories", a.handleCreateRepository)
		r.Delete("/repositories/{id}", a.handleDeleteRepository)
		r.Get("/rbac/changes", a.handleRBACChanges)
		r.Post("/rbac/changes/clear", a.handleRBACClear)
		r.Get("/templates/{purpose}/url", a.handleTemplateDownloadURL)
		r.Post("/templates/{purpose}/upload-url", a.handleTemplateUploadURL)
	})

	return r, nil
}
