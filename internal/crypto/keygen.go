package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"os"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// PEM block types for private keys.
const (
	pemTypeECPrivateKey = "EC PRIVATE KEY"
	pemTypePKCS8        = "PRIVATE KEY"
)

// ecPrivKeyVersion is the ECPrivateKey version (RFC 5915 section 3).
const ecPrivKeyVersion = 1

// KeyPair holds a private key and its public key material.
type KeyPair struct {
	Curve      Curve
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ECCPublicKey
}

// GenerateKeyPair generates a new key pair on the given curve.
//
// Example:
//
//	kp, err := crypto.GenerateKeyPair(crypto.CurveSecp256r1)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(kp.PublicKey.Fingerprint())
func GenerateKeyPair(curve Curve) (*KeyPair, error) {
	return GenerateKeyPairWithRand(rand.Reader, curve)
}

// GenerateKeyPairWithRand generates a key pair using the provided random source.
func GenerateKeyPairWithRand(random io.Reader, curve Curve) (*KeyPair, error) {
	if curve == "" {
		curve = DefaultCurve
	}
	if !curve.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, curve)
	}

	priv, err := ecdsa.GenerateKey(curve.Elliptic(), random)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", curve, err)
	}
	return NewKeyPair(priv)
}

// NewKeyPair wraps an existing private key.
func NewKeyPair(priv *ecdsa.PrivateKey) (*KeyPair, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: private key is nil", ErrInvalidPrivateKey)
	}
	pub, err := ECCPublicKeyFromECDSA(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Curve:      pub.Curve(),
		PrivateKey: priv,
		PublicKey:  pub,
	}, nil
}

// MarshalPrivateKeyPEM encodes priv as a SEC 1 "EC PRIVATE KEY" PEM block.
// The standard library cannot name secp192r1 in x509.MarshalECPrivateKey,
// so the structure is built directly.
func MarshalPrivateKeyPEM(priv *ecdsa.PrivateKey) ([]byte, error) {
	kp, err := NewKeyPair(priv)
	if err != nil {
		return nil, err
	}
	size := kp.Curve.CoordinateSize()

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(ecPrivKeyVersion)
		b.AddASN1OctetString(priv.D.FillBytes(make([]byte, size)))
		b.AddASN1(cbasn1.Tag(0).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(kp.Curve.OID())
		})
		b.AddASN1(cbasn1.Tag(1).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
			b.AddASN1BitString(kp.PublicKey.Bytes())
		})
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeECPrivateKey, Bytes: der}), nil
}

// ParsePrivateKeyPEM decodes a SEC 1 or PKCS #8 PEM private key.
func ParsePrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidPrivateKey)
	}

	switch block.Type {
	case pemTypeECPrivateKey:
		return parseECPrivateKey(block.Bytes)
	case pemTypePKCS8:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
		}
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an EC key: %T", ErrInvalidPrivateKey, key)
		}
		if _, err := CurveFromElliptic(priv.Curve); err != nil {
			return nil, err
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidPrivateKey, block.Type)
	}
}

// parseECPrivateKey decodes an RFC 5915 ECPrivateKey structure.
func parseECPrivateKey(der []byte) (*ecdsa.PrivateKey, error) {
	var (
		seq, privOctets, params cryptobyte.String
		version                 int64
		hasParams               bool
		oid                     asn1.ObjectIdentifier
	)
	input := cryptobyte.String(der)
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) ||
		!input.Empty() ||
		!seq.ReadASN1Integer(&version) ||
		!seq.ReadASN1(&privOctets, cbasn1.OCTET_STRING) ||
		!seq.ReadOptionalASN1(&params, &hasParams, cbasn1.Tag(0).Constructed().ContextSpecific()) {
		return nil, fmt.Errorf("%w: malformed ECPrivateKey", ErrInvalidPrivateKey)
	}
	if version != ecPrivKeyVersion {
		return nil, fmt.Errorf("%w: unsupported ECPrivateKey version %d", ErrInvalidPrivateKey, version)
	}
	if !hasParams || !params.ReadASN1ObjectIdentifier(&oid) {
		return nil, fmt.Errorf("%w: missing named curve", ErrInvalidPrivateKey)
	}
	curve, err := CurveFromOID(oid)
	if err != nil {
		return nil, err
	}

	ec := curve.Elliptic()
	d := new(big.Int).SetBytes(privOctets)
	if d.Sign() <= 0 || d.Cmp(ec.Params().N) >= 0 {
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidPrivateKey)
	}

	priv := &ecdsa.PrivateKey{D: d}
	priv.Curve = ec
	priv.X, priv.Y = ec.ScalarBaseMult(d.FillBytes(make([]byte, curve.CoordinateSize())))
	return priv, nil
}

// SavePrivateKey writes priv to path as PEM with owner-only permissions.
func SavePrivateKey(path string, priv *ecdsa.PrivateKey) error {
	data, err := MarshalPrivateKeyPEM(priv)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// LoadPrivateKey reads a PEM private key from path.
func LoadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return ParsePrivateKeyPEM(data)
}
