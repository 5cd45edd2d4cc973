package dto

import "encoding/json"

// OwnerInfo identifies a certificate owner.
type OwnerInfo struct {
	Name  string `json:"name"`
	EMail string `json:"email,omitempty"`
	WWW   string `json:"www,omitempty"`
}

// PublicKeyInfo is an EC public key given either as an uncompressed point
// or as separate coordinates.
type PublicKeyInfo struct {
	// Curve is the curve tag, e.g. "secp256r1" or "P-256".
	Curve string `json:"curve,omitempty"`

	// Encoding of Point, X and Y: "hex" (default) or "base64".
	Encoding string `json:"encoding,omitempty"`

	Point string `json:"point,omitempty"`
	X     string `json:"x,omitempty"`
	Y     string `json:"y,omitempty"`

	// Fingerprint is set in responses only.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// CertificateCreateRequest creates a certificate from a profile, or stores
// a complete certificate document when Document is set.
type CertificateCreateRequest struct {
	Profile    string          `json:"profile,omitempty"`
	Owner      OwnerInfo       `json:"owner"`
	PublicKeys []PublicKeyInfo `json:"public_keys,omitempty"`

	// NotBefore is a canonical or RFC 3339 timestamp; now when empty.
	NotBefore string `json:"not_before,omitempty"`

	// Description overrides the profile description.
	Description string `json:"description,omitempty"`

	// Document is a full certificate document to import instead.
	Document json.RawMessage `json:"document,omitempty"`
}

// CertificateResponse carries a certificate in canonical document form.
type CertificateResponse struct {
	ID       string          `json:"id"`
	Document json.RawMessage `json:"document"`
}

// CertificateSummary is a certificate list entry.
type CertificateSummary struct {
	ID         string       `json:"id"`
	Owner      string       `json:"owner"`
	Validity   ValidityInfo `json:"validity"`
	Status     string       `json:"status"` // "valid" or "expired"
	Usages     []string     `json:"usages,omitempty"`
	Signatures int          `json:"signatures"`
}

// CertificateListResponse is the response to a certificate listing.
type CertificateListResponse struct {
	Certificates []CertificateSummary `json:"certificates"`
	Pagination   PaginationResponse   `json:"pagination"`
}

// SignatureAttachResponse reports the outcome of attaching a signature.
type SignatureAttachResponse struct {
	CertificateID string `json:"certificate_id"`
	SignatureID   string `json:"signature_id"`
	Signatures    int    `json:"signatures"`
}

// CertificateVerifyRequest selects the keys used for verification.
// With neither field set, only embedded signature keys are used.
type CertificateVerifyRequest struct {
	// PublicKey is used for signatures without an embedded key.
	PublicKey *PublicKeyInfo `json:"public_key,omitempty"`

	// Protocol selects trust anchors serving an ISO 15118 version; the
	// result then lists which anchors produced a valid signature.
	Protocol string `json:"protocol,omitempty"`

	// At is the evaluation time for anchor validity; now when empty.
	At string `json:"at,omitempty"`
}

// CertificateVerifyResponse is the verification result.
type CertificateVerifyResponse struct {
	CertificateID string   `json:"certificate_id"`
	Valid         bool     `json:"valid"`
	Signatures    []string `json:"signatures"`
	Anchors       []string `json:"anchors,omitempty"`
	InWindow      bool     `json:"in_validity_window"`
	Problems      []string `json:"problems,omitempty"`
}

// IdentifyResponse reports the content-addressed identifier of a document.
type IdentifyResponse struct {
	ID      string `json:"id"`
	Claimed string `json:"claimed,omitempty"`
	Matches bool   `json:"matches"`
}
