package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// SignDigest computes a raw ECDSA signature over digest. The digest is used
// as the message as is: no further hashing is applied, and digests longer
// than the curve order are truncated to its bit length (SEC 1 section 4.1.3).
func SignDigest(random io.Reader, priv *ecdsa.PrivateKey, digest []byte) (r, s *big.Int, err error) {
	if priv == nil || priv.D == nil {
		return nil, nil, fmt.Errorf("%w: private key is nil", ErrInvalidPrivateKey)
	}
	if _, err := CurveFromElliptic(priv.Curve); err != nil {
		return nil, nil, err
	}
	if len(digest) == 0 {
		return nil, nil, fmt.Errorf("digest is empty")
	}
	r, s, err = ecdsa.Sign(random, priv, digest)
	if err != nil {
		return nil, nil, fmt.Errorf("ECDSA signing failed: %w", err)
	}
	return r, s, nil
}

// VerifyDigest checks a raw ECDSA signature (r, s) over digest.
// A mismatch is reported as false, never as an error.
func VerifyDigest(pub *ECCPublicKey, digest []byte, r, s *big.Int) bool {
	if pub == nil || r == nil || s == nil {
		return false
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return false
	}
	return ecdsa.Verify(pub.ECDSA(), digest, r, s)
}

// ParseSignatureASN1 decodes a DER SEQUENCE { r INTEGER, s INTEGER }.
func ParseSignatureASN1(der []byte) (r, s *big.Int, err error) {
	var inner cryptobyte.String
	input := cryptobyte.String(der)
	r, s = new(big.Int), new(big.Int)

	if !input.ReadASN1(&inner, cbasn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, nil, fmt.Errorf("%w: invalid ASN.1 structure", ErrMalformedSignature)
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: r and s must be positive", ErrMalformedSignature)
	}
	return r, s, nil
}

// MarshalSignatureASN1 encodes (r, s) as a DER SEQUENCE { r INTEGER, s INTEGER }.
func MarshalSignatureASN1(r, s *big.Int) ([]byte, error) {
	if r == nil || s == nil || r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, fmt.Errorf("%w: r and s must be positive", ErrMalformedSignature)
	}
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}
