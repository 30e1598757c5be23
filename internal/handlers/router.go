package handlers

import (
	"net/http"

	"drip-admin-console/internal/cache"
	"drip-admin-console/internal/middleware"
	"drip-admin-console/internal/models"
	"drip-admin-console/internal/notify"
	"drip-admin-console/internal/storage"
	"drip-admin-console/internal/store"
	"drip-admin-console/internal/telemetry"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
)

// RouterConfig carries everything the console router is built from
type RouterConfig struct {
	Version         string
	Store           *store.Store
	Exporter        Exporter
	Downloads       *cache.TTLCache[*models.Download]
	Feed            *notify.Feed
	DefaultPageSize int
	APIKeys         []string
	Session         storage.SessionStorage
	Telemetry       *telemetry.ConsoleTelemetry
	MetricsHandler  http.Handler
}

// NewRouter wires the console routes
func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry != nil {
		r.Use(cfg.Telemetry.Middleware)
	}

	healthHandler := NewHealthHandler(cfg.Version)
	consoleHandler := NewConsoleHandler(cfg.Store, cfg.DefaultPageSize)
	orderHandler := NewOrderHandler(cfg.Store)
	exportHandler := NewExportHandler(cfg.Store.Registry(), cfg.Exporter, cfg.Downloads, cfg.Feed)

	// Unauthenticated system endpoints
	r.HandleFunc("/health", healthHandler.Health).Methods("GET")
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler).Methods("GET")
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.APIKeyAuth(cfg.APIKeys))
	if cfg.Session != nil {
		v1.Use(middleware.ExpireSession(cfg.Session))
	}

	// fixed paths before the {entity} patterns
	v1.HandleFunc("/entities", consoleHandler.ListEntities).Methods("GET")
	v1.HandleFunc("/notifications", exportHandler.Notifications).Methods("GET")
	v1.HandleFunc("/exports/{kind}", exportHandler.Export).Methods("GET")

	v1.HandleFunc("/{entity}/order", orderHandler.GetOrder).Methods("GET")
	v1.HandleFunc("/{entity}/order", orderHandler.Drop).Methods("POST")
	v1.HandleFunc("/{entity}/page/{page}", consoleHandler.List).Methods("GET")
	v1.HandleFunc("/{entity}/{id}/toggle-status", consoleHandler.ToggleStatus).Methods("PATCH")
	v1.HandleFunc("/{entity}/{id}", consoleHandler.Update).Methods("PUT")
	v1.HandleFunc("/{entity}/{id}", consoleHandler.Delete).Methods("DELETE")
	v1.HandleFunc("/{entity}", consoleHandler.List).Methods("GET")
	v1.HandleFunc("/{entity}", consoleHandler.Create).Methods("POST")

	return r
}
