package handler

import (
	"net/http"

	"github.com/accessops/idm-access-manager/internal/ipa"
	"github.com/accessops/idm-access-manager/internal/storage"
)

// StatusHandler reports engine and upstream health in one place.
type StatusHandler struct {
	store  storage.Storage
	client ipa.Client
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(store storage.Storage, client ipa.Client) *StatusHandler {
	return &StatusHandler{store: store, client: client}
}

type statusResponse struct {
	Server       string `json:"server"`
	Applications int    `json:"applications"`
	Stale        int    `json:"stale"`
	TrustDomains int    `json:"trustDomains"`
}

// Status reports upstream connectivity and collection counts. An unreachable
// server is part of the answer here, not an error.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	apps, err := h.store.ListApplications(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	resp := &statusResponse{Applications: len(apps)}
	for _, app := range apps {
		if app.Stale() {
			resp.Stale++
		}
	}

	if domains, err := h.client.TrustDomains(r.Context()); err != nil {
		resp.Server = "unavailable"
	} else {
		resp.Server = "ok"
		resp.TrustDomains = len(domains)
	}

	respondJSON(w, http.StatusOK, resp)
}

// accessTestRequest is the body for the read-only access simulation.
type accessTestRequest struct {
	User    string `json:"user"`
	Host    string `json:"host"`
	Service string `json:"service"`
}

// AccessTestHandler runs the server-side host-based-access simulation.
type AccessTestHandler struct {
	client ipa.Client
}

// NewAccessTestHandler creates a new AccessTestHandler.
func NewAccessTestHandler(client ipa.Client) *AccessTestHandler {
	return &AccessTestHandler{client: client}
}

// Test simulates whether the user may reach the service on the host.
func (h *AccessTestHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req accessTestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.User == "" || req.Host == "" {
		respondError(w, http.StatusBadRequest, "user and host are required")
		return
	}
	if req.Service == "" {
		req.Service = "sshd"
	}

	result, err := h.client.TestHBAC(r.Context(), req.User, req.Host, req.Service)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"user":    req.User,
		"host":    req.Host,
		"service": req.Service,
		"result":  result,
	})
}
