package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/remiblancher/evpki/internal/canonical"
)

// ContextECCPublicKey is the JSON-LD context of an EC public key document.
const ContextECCPublicKey = "https://open.charging.cloud/context/certificates/eccPublicKey"

// uncompressedMarker prefixes an uncompressed encoded point (SEC 1 section 2.3.3).
const uncompressedMarker = 0x04

// ECCPublicKey is an elliptic-curve public key on one of the supported curves.
// Values are immutable once constructed and safe for concurrent reads.
type ECCPublicKey struct {
	curve Curve
	x, y  *big.Int
}

// NewECCPublicKeyFromCoordinates builds a key from two encoded coordinates.
func NewECCPublicKeyFromCoordinates(x, y string, enc Encoding, curve Curve) (*ECCPublicKey, error) {
	if curve == "" {
		curve = DefaultCurve
	}
	if !curve.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, curve)
	}
	xb, err := enc.Decode(x)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x coordinate: %w", err)
	}
	yb, err := enc.Decode(y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y coordinate: %w", err)
	}
	size := curve.CoordinateSize()
	if len(xb) > size || len(yb) > size {
		return nil, fmt.Errorf("%w: coordinate longer than %d bytes", ErrInvalidPoint, size)
	}
	return newECCPublicKey(curve, new(big.Int).SetBytes(xb), new(big.Int).SetBytes(yb))
}

// NewECCPublicKeyFromPoint builds a key from one encoded uncompressed point.
func NewECCPublicKeyFromPoint(point string, enc Encoding, curve Curve) (*ECCPublicKey, error) {
	raw, err := enc.Decode(point)
	if err != nil {
		return nil, fmt.Errorf("failed to decode point: %w", err)
	}
	return NewECCPublicKeyFromBytes(raw, curve)
}

// NewECCPublicKeyFromBytes builds a key from raw uncompressed point bytes:
// 0x04 || X || Y, each coordinate padded to the curve's width.
func NewECCPublicKeyFromBytes(point []byte, curve Curve) (*ECCPublicKey, error) {
	if curve == "" {
		curve = DefaultCurve
	}
	if !curve.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, curve)
	}
	size := curve.CoordinateSize()
	if len(point) != 1+2*size {
		return nil, fmt.Errorf("%w: expected %d bytes for %s, got %d", ErrInvalidPoint, 1+2*size, curve, len(point))
	}
	if point[0] != uncompressedMarker {
		return nil, fmt.Errorf("%w: unsupported point marker 0x%02x", ErrInvalidPoint, point[0])
	}
	x := new(big.Int).SetBytes(point[1 : 1+size])
	y := new(big.Int).SetBytes(point[1+size:])
	return newECCPublicKey(curve, x, y)
}

// ECCPublicKeyFromECDSA wraps a standard library public key.
func ECCPublicKeyFromECDSA(pub *ecdsa.PublicKey) (*ECCPublicKey, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: nil public key", ErrInvalidPoint)
	}
	curve, err := CurveFromElliptic(pub.Curve)
	if err != nil {
		return nil, err
	}
	return newECCPublicKey(curve, pub.X, pub.Y)
}

func newECCPublicKey(curve Curve, x, y *big.Int) (*ECCPublicKey, error) {
	if x == nil || y == nil {
		return nil, fmt.Errorf("%w: missing coordinate", ErrInvalidPoint)
	}
	ec := curve.Elliptic()
	p := ec.Params().P
	if x.Sign() < 0 || y.Sign() < 0 || x.Cmp(p) >= 0 || y.Cmp(p) >= 0 {
		return nil, fmt.Errorf("%w: coordinate out of range", ErrInvalidPoint)
	}
	if !ec.IsOnCurve(x, y) {
		return nil, fmt.Errorf("%w: point is not on %s", ErrInvalidPoint, curve)
	}
	return &ECCPublicKey{
		curve: curve,
		x:     new(big.Int).Set(x),
		y:     new(big.Int).Set(y),
	}, nil
}

// Curve returns the curve of this key.
func (k *ECCPublicKey) Curve() Curve {
	return k.curve
}

// XBytes returns the X coordinate padded to the curve width.
func (k *ECCPublicKey) XBytes() []byte {
	return k.x.FillBytes(make([]byte, k.curve.CoordinateSize()))
}

// YBytes returns the Y coordinate padded to the curve width.
func (k *ECCPublicKey) YBytes() []byte {
	return k.y.FillBytes(make([]byte, k.curve.CoordinateSize()))
}

// X returns the X coordinate in the given encoding.
func (k *ECCPublicKey) X(enc Encoding) string {
	return enc.Encode(k.XBytes())
}

// Y returns the Y coordinate in the given encoding.
func (k *ECCPublicKey) Y(enc Encoding) string {
	return enc.Encode(k.YBytes())
}

// Bytes returns the uncompressed encoded point.
func (k *ECCPublicKey) Bytes() []byte {
	size := k.curve.CoordinateSize()
	out := make([]byte, 1+2*size)
	out[0] = uncompressedMarker
	k.x.FillBytes(out[1 : 1+size])
	k.y.FillBytes(out[1+size:])
	return out
}

// Point returns the uncompressed encoded point in the given encoding.
func (k *ECCPublicKey) Point(enc Encoding) string {
	return enc.Encode(k.Bytes())
}

// Fingerprint returns the lowercase hex SHA-256 of the encoded point.
func (k *ECCPublicKey) Fingerprint() string {
	sum := sha256.Sum256(k.Bytes())
	return hex.EncodeToString(sum[:])
}

// ECDSA returns the key as a standard library public key.
func (k *ECCPublicKey) ECDSA() *ecdsa.PublicKey {
	return &ecdsa.PublicKey{
		Curve: k.curve.Elliptic(),
		X:     new(big.Int).Set(k.x),
		Y:     new(big.Int).Set(k.y),
	}
}

// Equal reports whether both keys are the same point on the same curve.
func (k *ECCPublicKey) Equal(other *ECCPublicKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.curve == other.curve && k.x.Cmp(other.x) == 0 && k.y.Cmp(other.y) == 0
}

// ToJSON renders the key. Embedded documents omit the JSON-LD context.
func (k *ECCPublicKey) ToJSON(enc Encoding, embedded bool) canonical.Document {
	if !enc.IsValid() {
		enc = DefaultEncoding
	}
	doc := canonical.Document{
		"x":         k.X(enc),
		"y":         k.Y(enc),
		"algorithm": k.curve.String(),
		"encoding":  enc.String(),
	}
	if !embedded {
		doc["@context"] = ContextECCPublicKey
	}
	return doc
}

// ParseECCPublicKey decodes a key document produced by ToJSON.
func ParseECCPublicKey(doc canonical.Document) (*ECCPublicKey, error) {
	if ctx, err := doc.OptString("@context"); err != nil {
		return nil, err
	} else if ctx != "" && ctx != ContextECCPublicKey {
		return nil, fmt.Errorf("%w: unexpected key context %q", canonical.ErrInvalidField, ctx)
	}
	x, err := doc.String("x")
	if err != nil {
		return nil, err
	}
	y, err := doc.String("y")
	if err != nil {
		return nil, err
	}
	alg, err := doc.OptString("algorithm")
	if err != nil {
		return nil, err
	}
	curve, err := ParseCurve(alg)
	if err != nil {
		return nil, err
	}
	encTag, err := doc.OptString("encoding")
	if err != nil {
		return nil, err
	}
	enc, err := ParseEncoding(encTag)
	if err != nil {
		return nil, err
	}
	return NewECCPublicKeyFromCoordinates(x, y, enc, curve)
}

// DistinctKeys removes repeated keys, keeping the first occurrence.
func DistinctKeys(keys []*ECCPublicKey) []*ECCPublicKey {
	out := make([]*ECCPublicKey, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == nil {
			continue
		}
		id := string(k.curve) + ":" + k.Fingerprint()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, k)
	}
	return out
}
