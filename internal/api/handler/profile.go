package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remiblancher/evpki/internal/api/service"
)

// ProfileHandler handles profile endpoints.
type ProfileHandler struct {
	service *service.ProfileService
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(svc *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{service: svc}
}

// List handles GET /api/v1/profiles.
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.List(r.Context())
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/profiles/{name}.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
