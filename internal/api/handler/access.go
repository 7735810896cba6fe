package handler

import (
	"net/http"

	"github.com/accessops/idm-access-manager/internal/domain"
	"github.com/accessops/idm-access-manager/internal/service"
	"github.com/go-chi/chi/v5"
)

// AccessHandler handles temporary access endpoints.
type AccessHandler struct {
	access *service.AccessService
}

// NewAccessHandler creates a new AccessHandler.
func NewAccessHandler(access *service.AccessService) *AccessHandler {
	return &AccessHandler{access: access}
}

// Grant provisions temporary access immediately.
func (h *AccessHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req domain.GrantAccessRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ar, err := h.access.Grant(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ar)
}

// Submit files a pending request for later approval.
func (h *AccessHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.GrantAccessRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ar, err := h.access.Submit(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ar)
}

// List lists access requests, optionally filtered by ?status=.
func (h *AccessHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.AccessRequestStatus(r.URL.Query().Get("status"))
	requests, err := h.access.List(r.Context(), status)
	if err != nil {
		handleError(w, err)
		return
	}
	if requests == nil {
		requests = []*domain.AccessRequest{}
	}
	respondJSON(w, http.StatusOK, requests)
}

// Get returns a single access request.
func (h *AccessHandler) Get(w http.ResponseWriter, r *http.Request) {
	ar, err := h.access.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ar)
}

// Approve approves a pending request and provisions its sudo rule.
func (h *AccessHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ar, err := h.access.Approve(r.Context(), chi.URLParam(r, "id"), approver(r))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ar)
}

// Deny rejects a pending request.
func (h *AccessHandler) Deny(w http.ResponseWriter, r *http.Request) {
	ar, err := h.access.Deny(r.Context(), chi.URLParam(r, "id"), approver(r))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ar)
}

// Revoke tears down an approved grant before its deadline.
func (h *AccessHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ar, err := h.access.Revoke(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ar)
}

// approver identifies the acting operator from the authenticated API key.
func approver(r *http.Request) string {
	if key := keyFromContext(r); key != nil {
		return key.Name
	}
	return "unknown"
}
