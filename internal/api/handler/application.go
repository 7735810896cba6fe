package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/accessops/idm-access-manager/internal/backup"
	"github.com/accessops/idm-access-manager/internal/catalog"
	"github.com/accessops/idm-access-manager/internal/domain"
	"github.com/accessops/idm-access-manager/internal/storage"
	"github.com/accessops/idm-access-manager/internal/validation"
	"github.com/go-chi/chi/v5"
)

// ApplicationHandler handles application configuration endpoints. All writes
// are last-writer-wins on the full record.
type ApplicationHandler struct {
	store   storage.Storage
	catalog *catalog.Catalog
	backups *backup.Writer
}

// NewApplicationHandler creates a new ApplicationHandler. backups may be nil
// to disable snapshots.
func NewApplicationHandler(store storage.Storage, c *catalog.Catalog, backups *backup.Writer) *ApplicationHandler {
	return &ApplicationHandler{store: store, catalog: c, backups: backups}
}

// applicationResponse augments the stored record with the derived staleness
// flag.
type applicationResponse struct {
	*domain.Application
	Stale bool `json:"stale"`
}

func toResponse(app *domain.Application) *applicationResponse {
	return &applicationResponse{Application: app, Stale: app.Stale()}
}

// snapshot writes a configuration backup after a successful mutation.
// Snapshot failures are logged, never surfaced; the mutation already
// happened.
func (h *ApplicationHandler) snapshot(ctx context.Context) {
	if h.backups == nil {
		return
	}
	apps, err := h.store.ListApplications(ctx)
	if err != nil {
		log.Printf("backup: listing applications: %v", err)
		return
	}
	if _, err := h.backups.Snapshot(apps); err != nil {
		log.Printf("backup: %v", err)
	}
}

// Create creates a new application. Environments default to the standard
// DEV/QUA/PRD set when omitted.
func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateApplicationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now().UTC()
	app := &domain.Application{
		Name:         req.Name,
		Description:  req.Description,
		Realms:       req.Realms,
		Environments: req.Environments,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if len(app.Environments) == 0 {
		app.Environments = h.catalog.DefaultEnvironments()
	}

	if errs := validation.ValidateApplication(app, h.catalog); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	if err := h.store.CreateApplication(r.Context(), app); err != nil {
		handleError(w, err)
		return
	}

	h.snapshot(r.Context())
	respondJSON(w, http.StatusCreated, toResponse(app))
}

// List lists all applications.
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.store.ListApplications(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	resp := make([]*applicationResponse, 0, len(apps))
	for _, app := range apps {
		resp = append(resp, toResponse(app))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get returns a single application.
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	app, err := h.store.GetApplication(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toResponse(app))
}

// Update updates an application's configuration. The name is immutable.
// Any accepted edit bumps UpdatedAt, marking the application stale until the
// next apply.
func (h *ApplicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateApplicationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	app, err := h.store.GetApplication(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		handleError(w, err)
		return
	}

	if req.Description != nil {
		app.Description = *req.Description
	}
	if req.Realms != nil {
		app.Realms = req.Realms
	}
	if req.Environments != nil {
		app.Environments = req.Environments
	}
	app.UpdatedAt = time.Now().UTC()

	if errs := validation.ValidateApplication(app, h.catalog); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	if err := h.store.UpdateApplication(r.Context(), app); err != nil {
		handleError(w, err)
		return
	}

	h.snapshot(r.Context())
	respondJSON(w, http.StatusOK, toResponse(app))
}

// Delete removes an application's configuration record. Provisioned objects
// are left in place; cleanup in the identity management server is a manual,
// audited operation.
func (h *ApplicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteApplication(r.Context(), chi.URLParam(r, "name")); err != nil {
		handleError(w, err)
		return
	}

	h.snapshot(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
