package handler

import (
	"net/http"

	"github.com/accessops/idm-access-manager/internal/service"
	"github.com/go-chi/chi/v5"
)

// ApplyHandler handles reconciliation endpoints.
type ApplyHandler struct {
	reconciler *service.Reconciler
}

// NewApplyHandler creates a new ApplyHandler.
func NewApplyHandler(reconciler *service.Reconciler) *ApplyHandler {
	return &ApplyHandler{reconciler: reconciler}
}

// Apply runs a reconciliation pass for the application. A pass with object
// failures still returns 200; the per-category results carry the detail.
func (h *ApplyHandler) Apply(w http.ResponseWriter, r *http.Request) {
	resp, err := h.reconciler.Apply(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Plan returns the desired-object list without touching the server.
func (h *ApplyHandler) Plan(w http.ResponseWriter, r *http.Request) {
	objects, err := h.reconciler.Plan(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"application": chi.URLParam(r, "name"),
		"objects":     objects,
	})
}
