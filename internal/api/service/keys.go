// Package service implements the REST API operations on top of the
// certificate store, the trust anchors and the profile catalogue.
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/remiblancher/evpki/internal/api/dto"
	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/crypto"
)

// parsePublicKey decodes a request key given as a point or as coordinates.
func parsePublicKey(info *dto.PublicKeyInfo) (*crypto.ECCPublicKey, error) {
	if info == nil {
		return nil, nil
	}
	curve, err := crypto.ParseCurve(info.Curve)
	if err != nil {
		return nil, err
	}
	enc, err := crypto.ParseEncoding(info.Encoding)
	if err != nil {
		return nil, err
	}
	if info.Point != "" {
		return crypto.NewECCPublicKeyFromPoint(info.Point, enc, curve)
	}
	if info.X == "" || info.Y == "" {
		return nil, fmt.Errorf("%w: public key needs a point or both coordinates", canonical.ErrMissingField)
	}
	return crypto.NewECCPublicKeyFromCoordinates(info.X, info.Y, enc, curve)
}

// publicKeyInfo renders a key for a response.
func publicKeyInfo(k *crypto.ECCPublicKey) dto.PublicKeyInfo {
	return dto.PublicKeyInfo{
		Curve:       string(k.Curve()),
		Encoding:    string(crypto.DefaultEncoding),
		Point:       k.Point(crypto.DefaultEncoding),
		Fingerprint: k.Fingerprint(),
	}
}

// parseInstant parses an optional request timestamp, defaulting to now.
func parseInstant(s string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return canonical.Truncate(now), nil
	}
	t, err := canonical.ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", canonical.ErrInvalidField, err)
	}
	return t, nil
}
