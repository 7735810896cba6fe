package handler

import (
	"net/http"

	"github.com/accessops/idm-access-manager/internal/ipa"
)

// TrustHandler serves the live trust domain catalog. Nothing is cached; every
// request is a fresh server round trip.
type TrustHandler struct {
	client ipa.Client
}

// NewTrustHandler creates a new TrustHandler.
func NewTrustHandler(client ipa.Client) *TrustHandler {
	return &TrustHandler{client: client}
}

// List lists the trusted external realms.
func (h *TrustHandler) List(w http.ResponseWriter, r *http.Request) {
	domains, err := h.client.TrustDomains(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, domains)
}
