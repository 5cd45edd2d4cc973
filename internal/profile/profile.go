// Package profile provides certificate templates for EV charging PKIs.
//
// A profile fixes everything about a certificate that does not depend on the
// subject:
//   - Curve of the subject key
//   - Usages, including the path-length bound of issuing certificates
//   - Validity period
//   - Policy and distribution point URLs
//
// Design principle: 1 Profile = 1 Certificate.
package profile

import (
	"errors"
	"fmt"
	"time"

	"github.com/remiblancher/evpki/internal/certificate"
	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/usage"
)

// ErrCurveMismatch indicates a subject key on a curve the profile does not allow.
var ErrCurveMismatch = errors.New("key curve does not match profile")

// Profile defines a certificate type.
type Profile struct {
	// Name is the unique identifier for this profile.
	Name string

	// Description provides a human-readable description.
	Description string

	// Curve is the required curve of the subject keys.
	Curve crypto.Curve

	// Usages are the capabilities granted to the certificate.
	Usages []usage.Usage

	// Validity is the default certificate validity period.
	Validity time.Duration

	Policy                       string
	DistributionPoints           []string
	RevocationDistributionPoints []string
	DeltaDistributionPoints      []string
}

// Validate checks that the profile configuration is valid.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if !p.Curve.IsValid() {
		return fmt.Errorf("%w: %s", crypto.ErrUnsupportedCurve, p.Curve)
	}
	if p.Validity <= 0 {
		return fmt.Errorf("validity must be positive")
	}
	return nil
}

// IsIssuer reports whether certificates of this profile may sign others.
func (p *Profile) IsIssuer() bool {
	return usage.Contains(p.Usages, usage.TagSignCertificates)
}

// String returns a one-line summary.
func (p *Profile) String() string {
	return fmt.Sprintf("%s (%s, %s, %d usages)", p.Name, p.Curve, p.Validity, len(p.Usages))
}

// Params builds certificate parameters for owner and keys, valid from
// notBefore for the profile's validity period.
func (p *Profile) Params(owner certificate.Owner, keys []*crypto.ECCPublicKey, notBefore time.Time) (certificate.Params, error) {
	for _, k := range keys {
		if k != nil && k.Curve() != p.Curve {
			return certificate.Params{}, fmt.Errorf("%w: %s requires %s, got %s", ErrCurveMismatch, p.Name, p.Curve, k.Curve())
		}
	}
	return certificate.Params{
		Description:                  p.Description,
		PublicKeys:                   keys,
		Usages:                       append([]usage.Usage(nil), p.Usages...),
		NotBefore:                    notBefore,
		NotAfter:                     notBefore.Add(p.Validity),
		Owner:                        owner,
		Policy:                       p.Policy,
		DistributionPoints:           append([]string(nil), p.DistributionPoints...),
		RevocationDistributionPoints: append([]string(nil), p.RevocationDistributionPoints...),
		DeltaDistributionPoints:      append([]string(nil), p.DeltaDistributionPoints...),
	}, nil
}
