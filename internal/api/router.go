package api

import (
	"net/http"

	"github.com/accessops/idm-access-manager/internal/api/handler"
	"github.com/accessops/idm-access-manager/internal/api/middleware"
	"github.com/accessops/idm-access-manager/internal/backup"
	"github.com/accessops/idm-access-manager/internal/catalog"
	"github.com/accessops/idm-access-manager/internal/ipa"
	"github.com/accessops/idm-access-manager/internal/obs"
	"github.com/accessops/idm-access-manager/internal/service"
	"github.com/accessops/idm-access-manager/internal/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(
	store storage.Storage,
	client ipa.Client,
	cat *catalog.Catalog,
	reconciler *service.Reconciler,
	access *service.AccessService,
	backups *backup.Writer,
	bootstrapKey string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging)
	r.Use(obs.Instrument)

	// Health check and metrics (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(store, bootstrapKey))

		// API Keys
		keyHandler := handler.NewAPIKeyHandler(store)
		r.Post("/keys", keyHandler.Create)
		r.Get("/keys", keyHandler.List)
		r.Delete("/keys/{id}", keyHandler.Delete)

		// Trust domains and server status
		trustHandler := handler.NewTrustHandler(client)
		r.Get("/trusts", trustHandler.List)

		statusHandler := handler.NewStatusHandler(store, client)
		r.Get("/status", statusHandler.Status)

		testHandler := handler.NewAccessTestHandler(client)
		r.Post("/access-test", testHandler.Test)

		// Applications
		appHandler := handler.NewApplicationHandler(store, cat, backups)
		applyHandler := handler.NewApplyHandler(reconciler)
		r.Post("/applications", appHandler.Create)
		r.Get("/applications", appHandler.List)
		r.Route("/applications/{name}", func(r chi.Router) {
			r.Get("/", appHandler.Get)
			r.Put("/", appHandler.Update)
			r.Delete("/", appHandler.Delete)
			r.Get("/plan", applyHandler.Plan)
			r.Post("/apply", applyHandler.Apply)
		})

		// Configuration export
		exportHandler := handler.NewExportHandler(store)
		r.Get("/export", exportHandler.Export)

		// Temporary access
		accessHandler := handler.NewAccessHandler(access)
		r.Post("/access/grants", accessHandler.Grant)
		r.Post("/access/requests", accessHandler.Submit)
		r.Get("/access/requests", accessHandler.List)
		r.Get("/access/requests/{id}", accessHandler.Get)
		r.Post("/access/requests/{id}/approve", accessHandler.Approve)
		r.Post("/access/requests/{id}/deny", accessHandler.Deny)
		r.Post("/access/requests/{id}/revoke", accessHandler.Revoke)
	})

	return r
}
