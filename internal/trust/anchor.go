// Package trust describes the roots of trust provisioned into charging
// stations and vehicles. Anchors are passive descriptors: they carry the key
// and validity of a root but perform no verification themselves.
package trust

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/crypto"
)

// ContextTrustAnchor is the JSON-LD context of a trust anchor document.
const ContextTrustAnchor = "https://open.charging.cloud/context/certificates/trustAnchor"

var (
	// ErrUnknownProtocol indicates an unsupported protocol version.
	ErrUnknownProtocol = errors.New("unknown protocol version")

	// ErrInvalidAnchor indicates an anchor missing its name or key.
	ErrInvalidAnchor = errors.New("invalid trust anchor")

	// ErrDuplicateAnchor indicates two anchors with the same name.
	ErrDuplicateAnchor = errors.New("duplicate trust anchor")
)

// Anchor is a root of trust.
type Anchor struct {
	Name      string
	PublicKey *crypto.ECCPublicKey
	NotBefore time.Time
	NotAfter  time.Time
	Comment   string
	Protocols []ProtocolVersion
}

// Curve returns the curve of the anchor key.
func (a *Anchor) Curve() crypto.Curve {
	if a.PublicKey == nil {
		return ""
	}
	return a.PublicKey.Curve()
}

// Validate checks that the anchor has a name, a key and a sane window.
func (a *Anchor) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAnchor)
	}
	if a.PublicKey == nil {
		return fmt.Errorf("%w: %s: public key is required", ErrInvalidAnchor, a.Name)
	}
	if !a.NotAfter.IsZero() && a.NotBefore.After(a.NotAfter) {
		return fmt.Errorf("%w: %s: notBefore is after notAfter", ErrInvalidAnchor, a.Name)
	}
	return nil
}

// IsValidAt reports whether t falls into [NotBefore, NotAfter). A zero
// NotAfter leaves the window open.
func (a *Anchor) IsValidAt(t time.Time) bool {
	if t.Before(a.NotBefore) {
		return false
	}
	return a.NotAfter.IsZero() || t.Before(a.NotAfter)
}

// Serves reports whether the anchor is provisioned for version. An anchor
// without protocol list serves every version.
func (a *Anchor) Serves(version ProtocolVersion) bool {
	if len(a.Protocols) == 0 {
		return true
	}
	for _, p := range a.Protocols {
		if p.Equal(version) {
			return true
		}
	}
	return false
}

// ToJSON renders the anchor descriptor. An anchor without key renders
// without publicKey and curve; Validate rejects it.
func (a *Anchor) ToJSON() canonical.Document {
	doc := canonical.Document{
		"@context":  ContextTrustAnchor,
		"name":      a.Name,
		"notBefore": canonical.FormatTime(a.NotBefore),
	}
	if a.PublicKey != nil {
		doc["publicKey"] = a.PublicKey.ToJSON(crypto.DefaultEncoding, true)
		doc["curve"] = a.Curve().StdName()
	}
	if !a.NotAfter.IsZero() {
		doc["notAfter"] = canonical.FormatTime(a.NotAfter)
	}
	if a.Comment != "" {
		doc["comment"] = a.Comment
	}
	if len(a.Protocols) > 0 {
		protocols := make([]string, len(a.Protocols))
		for i, p := range a.Protocols {
			protocols[i] = p.String()
		}
		doc["protocols"] = protocols
	}
	return doc
}
