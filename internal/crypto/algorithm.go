// Package crypto provides the elliptic-curve key material and raw ECDSA
// primitives used by certificates and signatures.
// It supports the named curves secp192r1, secp256r1 and secp521r1.
package crypto

import (
	"crypto/elliptic"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for key material and signature primitives.
var (
	// ErrUnsupportedCurve indicates a curve outside the supported named curves.
	ErrUnsupportedCurve = errors.New("unsupported curve")

	// ErrUnsupportedEncoding indicates an unknown byte-text encoding tag.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")

	// ErrInvalidPoint indicates encoded key material is not a point on the curve.
	ErrInvalidPoint = errors.New("invalid curve point")

	// ErrMalformedSignature indicates undecodable R/S signature values.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrInvalidPrivateKey indicates a missing or unusable private key.
	ErrInvalidPrivateKey = errors.New("invalid private key")
)

// Curve identifies a named elliptic curve by its SEC 2 name.
type Curve string

// Supported curves.
const (
	CurveSecp192r1 Curve = "secp192r1"
	CurveSecp256r1 Curve = "secp256r1"
	CurveSecp521r1 Curve = "secp521r1"
)

// DefaultCurve is used when no curve is specified.
const DefaultCurve = CurveSecp256r1

// curveInfo holds metadata about a curve.
type curveInfo struct {
	StdName string
	OID     asn1.ObjectIdentifier
	Curve   func() elliptic.Curve
}

// curves maps Curve to its metadata.
var curves = map[Curve]curveInfo{
	CurveSecp192r1: {
		StdName: "P-192",
		OID:     asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 1},
		Curve:   p192,
	},
	CurveSecp256r1: {
		StdName: "P-256",
		OID:     asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7},
		Curve:   elliptic.P256,
	},
	CurveSecp521r1: {
		StdName: "P-521",
		OID:     asn1.ObjectIdentifier{1, 3, 132, 0, 35},
		Curve:   elliptic.P521,
	},
}

// AllCurves returns the supported curves from smallest to largest.
func AllCurves() []Curve {
	return []Curve{CurveSecp192r1, CurveSecp256r1, CurveSecp521r1}
}

// ParseCurve parses a curve tag. Both SEC 2 names ("secp256r1") and NIST
// names ("P-256") are accepted, case-insensitively. An empty tag selects
// DefaultCurve.
func ParseCurve(s string) (Curve, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultCurve, nil
	}
	for c, info := range curves {
		if strings.EqualFold(s, string(c)) || strings.EqualFold(s, info.StdName) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedCurve, s)
}

// CurveFromElliptic returns the named curve matching c.
func CurveFromElliptic(c elliptic.Curve) (Curve, error) {
	if c == nil {
		return "", fmt.Errorf("%w: nil curve", ErrUnsupportedCurve)
	}
	params := c.Params()
	for name, info := range curves {
		p := info.Curve().Params()
		if p.Name == params.Name && p.P.Cmp(params.P) == 0 && p.N.Cmp(params.N) == 0 {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedCurve, params.Name)
}

// CurveFromOID returns the named curve with the given object identifier.
func CurveFromOID(oid asn1.ObjectIdentifier) (Curve, error) {
	for name, info := range curves {
		if info.OID.Equal(oid) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: OID %s", ErrUnsupportedCurve, oid)
}

// IsValid returns true if c is a supported curve.
func (c Curve) IsValid() bool {
	_, ok := curves[c]
	return ok
}

// String returns the SEC 2 name.
func (c Curve) String() string {
	return string(c)
}

// StdName returns the NIST name, e.g. "P-256".
func (c Curve) StdName() string {
	return curves[c].StdName
}

// OID returns the named-curve object identifier.
func (c Curve) OID() asn1.ObjectIdentifier {
	return curves[c].OID
}

// Elliptic returns the curve implementation, nil for unsupported curves.
func (c Curve) Elliptic() elliptic.Curve {
	info, ok := curves[c]
	if !ok {
		return nil
	}
	return info.Curve()
}

// CoordinateSize returns the byte width of one affine coordinate.
func (c Curve) CoordinateSize() int {
	ec := c.Elliptic()
	if ec == nil {
		return 0
	}
	return (ec.Params().BitSize + 7) / 8
}

// Encoding is the byte-text encoding used for key coordinates and
// signature values.
type Encoding string

// Supported encodings.
const (
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

// DefaultEncoding is used when no encoding is specified.
const DefaultEncoding = EncodingHex

// ParseEncoding parses an encoding tag. An empty tag selects DefaultEncoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultEncoding, nil
	case "hex":
		return EncodingHex, nil
	case "base64":
		return EncodingBase64, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEncoding, s)
	}
}

// IsValid returns true if e is a supported encoding.
func (e Encoding) IsValid() bool {
	return e == EncodingHex || e == EncodingBase64
}

// String returns the encoding tag.
func (e Encoding) String() string {
	return string(e)
}

// Encode renders data in this encoding. Hex output is lowercase.
func (e Encoding) Encode(data []byte) string {
	if e == EncodingBase64 {
		return base64.StdEncoding.EncodeToString(data)
	}
	return hex.EncodeToString(data)
}

// Decode parses text in this encoding.
func (e Encoding) Decode(s string) ([]byte, error) {
	switch e {
	case EncodingHex, "":
		return hex.DecodeString(s)
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(s)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, e)
	}
}
