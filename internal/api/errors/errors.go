// Package errors provides error handling and HTTP status code mapping.
package errors

import (
	"errors"
	"net/http"

	"github.com/remiblancher/evpki/internal/api/dto"
	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/certificate"
	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/envelope"
	"github.com/remiblancher/evpki/internal/profile"
	"github.com/remiblancher/evpki/internal/store"
	"github.com/remiblancher/evpki/internal/trust"
	"github.com/remiblancher/evpki/internal/usage"
)

// Error codes for API responses.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION_ERROR"
	CodeCryptoError        = "CRYPTO_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodeCertNotFound       = "CERT_NOT_FOUND"
	CodeProfileNotFound    = "PROFILE_NOT_FOUND"
	CodeIdentifierMismatch = "IDENTIFIER_MISMATCH"
	CodeKeyMismatch        = "KEY_MISMATCH"
	CodeMissingKey         = "MISSING_PUBLIC_KEY"
	CodeSignatureInvalid   = "SIGNATURE_INVALID"
	CodeUnknownProtocol    = "UNKNOWN_PROTOCOL"
)

// ErrProfileNotFound indicates a request for an unknown profile.
var ErrProfileNotFound = errors.New("profile not found")

// ErrSignatureInvalid indicates a signature that failed verification.
var ErrSignatureInvalid = errors.New("signature does not verify")

// MapError maps an internal error to an HTTP status code and APIError.
func MapError(err error) (int, *dto.APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, &dto.APIError{
			Code:    CodeCertNotFound,
			Message: err.Error(),
		}
	case errors.Is(err, ErrProfileNotFound), errors.Is(err, profile.ErrUnknownProfile):
		return http.StatusNotFound, &dto.APIError{
			Code:    CodeProfileNotFound,
			Message: err.Error(),
		}
	case errors.Is(err, certificate.ErrIdentifierMismatch):
		return http.StatusUnprocessableEntity, &dto.APIError{
			Code:    CodeIdentifierMismatch,
			Message: err.Error(),
		}
	case errors.Is(err, certificate.ErrKeyMismatch), errors.Is(err, profile.ErrCurveMismatch):
		return http.StatusUnprocessableEntity, &dto.APIError{
			Code:    CodeKeyMismatch,
			Message: err.Error(),
		}
	case errors.Is(err, certificate.ErrMissingKey):
		return http.StatusUnprocessableEntity, &dto.APIError{
			Code:    CodeMissingKey,
			Message: err.Error(),
		}
	case errors.Is(err, ErrSignatureInvalid), errors.Is(err, envelope.ErrVerificationFailed):
		return http.StatusUnprocessableEntity, &dto.APIError{
			Code:    CodeSignatureInvalid,
			Message: err.Error(),
		}
	case errors.Is(err, trust.ErrUnknownProtocol):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeUnknownProtocol,
			Message: err.Error(),
		}
	case errors.Is(err, crypto.ErrUnsupportedCurve),
		errors.Is(err, crypto.ErrUnsupportedEncoding),
		errors.Is(err, crypto.ErrInvalidPoint),
		errors.Is(err, crypto.ErrMalformedSignature):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeCryptoError,
			Message: err.Error(),
		}
	case errors.Is(err, canonical.ErrMissingField),
		errors.Is(err, canonical.ErrInvalidField),
		errors.Is(err, usage.ErrUnknownUsage),
		errors.Is(err, usage.ErrInvalidPathLength),
		errors.Is(err, certificate.ErrNoPublicKeys),
		errors.Is(err, certificate.ErrMissingOwner),
		errors.Is(err, certificate.ErrMissingSigner),
		errors.Is(err, certificate.ErrInvalidValidity),
		errors.Is(err, certificate.ErrInvalidURL),
		errors.Is(err, certificate.ErrInvalidEMail),
		errors.Is(err, certificate.ErrUnknownEdgeType):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeValidation,
			Message: err.Error(),
		}
	}

	// Certificate errors carry the failing operation
	var certErr *certificate.Error
	if errors.As(err, &certErr) {
		details := map[string]string{"operation": certErr.Op}
		if certErr.ID != "" {
			details["id"] = certErr.ID
		}
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeValidation,
			Message: certErr.Error(),
			Details: details,
		}
	}

	// Default internal error
	return http.StatusInternalServerError, &dto.APIError{
		Code:    CodeInternal,
		Message: "An internal error occurred",
	}
}

// NewBadRequest creates a bad request error.
func NewBadRequest(message string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeInvalidRequest,
		Message: message,
	}
}

// NewNotFound creates a not found error.
func NewNotFound(resource, id string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeNotFound,
		Message: resource + " not found",
		Details: map[string]string{"id": id},
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string, details map[string]string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeValidation,
		Message: message,
		Details: details,
	}
}
