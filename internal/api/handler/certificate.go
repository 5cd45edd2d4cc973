package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/remiblancher/evpki/internal/api/dto"
	apierrors "github.com/remiblancher/evpki/internal/api/errors"
	"github.com/remiblancher/evpki/internal/api/service"
	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/envelope"
)

// MaxBodySize bounds request bodies.
const MaxBodySize = 1 << 20

// ContentTypeCBOR is the media type of CBOR certificate documents.
const ContentTypeCBOR = "application/cbor"

// CertificateHandler handles certificate endpoints.
type CertificateHandler struct {
	service *service.CertificateService
}

// NewCertificateHandler creates a new CertificateHandler.
func NewCertificateHandler(svc *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{service: svc}
}

// Create handles POST /api/v1/certificates.
func (h *CertificateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CertificateCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Document) == 0 {
		if req.Profile == "" {
			respondError(w, http.StatusBadRequest, apierrors.NewValidationError("profile is required", map[string]string{"field": "profile"}))
			return
		}
		if strings.TrimSpace(req.Owner.Name) == "" {
			respondError(w, http.StatusBadRequest, apierrors.NewValidationError("owner.name is required", map[string]string{"field": "owner.name"}))
			return
		}
	}

	cert, err := h.service.Create(r.Context(), &req)
	if err != nil {
		respondMapped(w, err)
		return
	}
	resp, err := service.Document(cert)
	if err != nil {
		respondMapped(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/certificates/"+resp.ID)
	respondJSON(w, http.StatusCreated, resp)
}

// List handles GET /api/v1/certificates.
func (h *CertificateHandler) List(w http.ResponseWriter, r *http.Request) {
	page := dto.PaginationRequest{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("invalid limit"))
			return
		}
		page.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("invalid offset"))
			return
		}
		page.Offset = n
	}

	resp, err := h.service.List(r.Context(), page)
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/certificates/{id}. The canonical JSON document is
// returned as is; clients accepting CBOR receive the CBOR encoding.
func (h *CertificateHandler) Get(w http.ResponseWriter, r *http.Request) {
	cert, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondMapped(w, err)
		return
	}

	if acceptsCBOR(r) {
		data, err := canonical.MarshalCBOR(cert.ToJSON(false))
		if err != nil {
			respondMapped(w, err)
			return
		}
		respondBytes(w, http.StatusOK, ContentTypeCBOR, data)
		return
	}

	data, err := cert.MarshalJSON()
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondBytes(w, http.StatusOK, envelope.ContentTypeCertificateJSON, data)
}

// Delete handles DELETE /api/v1/certificates/{id}.
func (h *CertificateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondMapped(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachSignature handles POST /api/v1/certificates/{id}/signatures.
func (h *CertificateHandler) AttachSignature(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	resp, err := h.service.AttachSignature(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Verify handles POST /api/v1/certificates/{id}/verify. An empty body
// verifies with embedded keys only.
func (h *CertificateHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.CertificateVerifyRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	resp, err := h.service.Verify(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Identify handles POST /api/v1/certificates/identify.
func (h *CertificateHandler) Identify(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	resp, err := h.service.Identify(r.Context(), body)
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func acceptsCBOR(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mt == ContentTypeCBOR || mt == envelope.ContentTypeCertificateCBOR {
			return true
		}
	}
	return false
}

// decodeJSON decodes a bounded JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, apierrors.NewBadRequest("request body too large"))
			return nil, false
		}
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("failed to read request body"))
		return nil, false
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("request body is empty"))
		return nil, false
	}
	return body, true
}

func respondMapped(w http.ResponseWriter, err error) {
	status, apiErr := apierrors.MapError(err)
	respondError(w, status, apiErr)
}
