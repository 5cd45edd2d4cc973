package certificate

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/remiblancher/evpki/internal/canonical"
)

// idLength is the length of a hex-encoded SHA-256 digest.
const idLength = 64

// CertificateID is the content-addressed identifier of a certificate.
type CertificateID string

// SignatureID is the content-addressed identifier of a signature.
type SignatureID string

func (id CertificateID) String() string { return string(id) }
func (id SignatureID) String() string   { return string(id) }

// ParseCertificateID validates a certificate identifier.
func ParseCertificateID(s string) (CertificateID, error) {
	if err := checkID(s); err != nil {
		return "", err
	}
	return CertificateID(s), nil
}

// ParseSignatureID validates a signature identifier.
func ParseSignatureID(s string) (SignatureID, error) {
	if err := checkID(s); err != nil {
		return "", err
	}
	return SignatureID(s), nil
}

func checkID(s string) error {
	if len(s) != idLength || strings.ToLower(s) != s {
		return fmt.Errorf("%w: identifier must be %d lowercase hex characters", canonical.ErrInvalidField, idLength)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("%w: identifier is not hex: %v", canonical.ErrInvalidField, err)
	}
	return nil
}
