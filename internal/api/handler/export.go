package handler

import (
	"net/http"
	"time"

	"github.com/accessops/idm-access-manager/internal/domain"
	"github.com/accessops/idm-access-manager/internal/storage"
)

// ExportHandler serves the full configuration snapshot.
type ExportHandler struct {
	store storage.Storage
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(store storage.Storage) *ExportHandler {
	return &ExportHandler{store: store}
}

// exportResponse is the versioned snapshot envelope. The version field guards
// future shape changes for consumers restoring from a snapshot.
type exportResponse struct {
	Version      string                `json:"version"`
	ExportedAt   time.Time             `json:"exportedAt"`
	Applications []*domain.Application `json:"applications"`
}

// Export returns every application's full configuration.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	apps, err := h.store.ListApplications(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &exportResponse{
		Version:      "1.0",
		ExportedAt:   time.Now().UTC(),
		Applications: apps,
	})
}
