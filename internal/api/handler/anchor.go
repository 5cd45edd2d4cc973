package handler

import (
	"net/http"

	"github.com/remiblancher/evpki/internal/api/service"
)

// AnchorHandler handles trust anchor endpoints.
type AnchorHandler struct {
	service *service.AnchorService
}

// NewAnchorHandler creates a new AnchorHandler.
func NewAnchorHandler(svc *service.AnchorService) *AnchorHandler {
	return &AnchorHandler{service: svc}
}

// List handles GET /api/v1/anchors?protocol=ISO15118-2.
func (h *AnchorHandler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.List(r.Context(), r.URL.Query().Get("protocol"))
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
