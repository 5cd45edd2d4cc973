package certificate

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/crypto"
)

// ContextECCSignature is the JSON-LD context of an EC signature document.
const ContextECCSignature = "https://open.charging.cloud/context/certificates/eccSignature"

// HashAlgorithmSHA512 names the digest the signature engine signs.
const HashAlgorithmSHA512 = "SHA512"

// Signature is a raw ECDSA signature over a certificate together with signer
// metadata. It is immutable once constructed: its identifier covers every
// field except the identifier itself, R and S included.
type Signature struct {
	id                  SignatureID
	name                string
	publicKey           *crypto.ECCPublicKey
	eMail               string
	www                 string
	notBefore           *time.Time
	notAfter            *time.Time
	hashAlgorithm       string
	encryptionAlgorithm string
	encoding            crypto.Encoding
	r, s                *big.Int

	// certificate is the signed certificate. The signature does not own it;
	// it is used only to recompute the verification digest.
	certificate *Certificate
}

// SignatureParams describes a signature built from existing R and S values.
type SignatureParams struct {
	Name                string
	PublicKey           *crypto.ECCPublicKey
	EMail               string
	WWW                 string
	NotBefore           *time.Time
	NotAfter            *time.Time
	HashAlgorithm       string
	EncryptionAlgorithm string
	Encoding            crypto.Encoding // encoding of R and S; hex when empty
	R, S                string

	// Certificate is the signed certificate, may be bound later by
	// Certificate.AddSignature.
	Certificate *Certificate
}

// SignOptions carries the signer metadata for Sign.
type SignOptions struct {
	Name                string
	PublicKey           *crypto.ECCPublicKey // embedded in the signature when set
	EMail               string
	WWW                 string
	NotBefore           *time.Time
	NotAfter            *time.Time
	HashAlgorithm       string
	EncryptionAlgorithm string
	Encoding            crypto.Encoding
	Rand                io.Reader // crypto/rand when nil
}

// NewECCSignature builds a signature from two independently encoded values.
func NewECCSignature(p SignatureParams) (*Signature, error) {
	enc, err := signatureEncoding(p.Encoding)
	if err != nil {
		return nil, newError("new", "", err)
	}
	r, err := decodeScalar("r", p.R, enc)
	if err != nil {
		return nil, newError("new", "", err)
	}
	s, err := decodeScalar("s", p.S, enc)
	if err != nil {
		return nil, newError("new", "", err)
	}
	return newSignature(p, enc, r, s)
}

// NewECCSignatureFromASN1 builds a signature from a DER SEQUENCE(INTEGER,
// INTEGER). The R and S fields of p are ignored.
func NewECCSignatureFromASN1(p SignatureParams, der []byte) (*Signature, error) {
	enc, err := signatureEncoding(p.Encoding)
	if err != nil {
		return nil, newError("new", "", err)
	}
	r, s, err := crypto.ParseSignatureASN1(der)
	if err != nil {
		return nil, newError("new", "", err)
	}
	return newSignature(p, enc, r, s)
}

// Sign canonicalizes cert without its signature list, hashes it with SHA-512
// and signs the 64-byte digest with priv. The returned signature references
// cert but is not appended to it; see Certificate.Sign.
//
// Sign does not check that the signer is authorized to sign certificates.
// Callers that need trust-chain enforcement must check the signer's usages.
func Sign(cert *Certificate, priv *ecdsa.PrivateKey, opts SignOptions) (*Signature, error) {
	if cert == nil {
		return nil, newError("sign", "", ErrNoSignedCertificate)
	}
	if strings.TrimSpace(opts.Name) == "" {
		return nil, newError("sign", cert.id.String(), ErrMissingSigner)
	}
	if priv == nil {
		return nil, newError("sign", cert.id.String(), crypto.ErrInvalidPrivateKey)
	}
	if opts.PublicKey != nil {
		own, err := crypto.ECCPublicKeyFromECDSA(&priv.PublicKey)
		if err != nil {
			return nil, newError("sign", cert.id.String(), err)
		}
		if !own.Equal(opts.PublicKey) {
			return nil, newError("sign", cert.id.String(), ErrKeyMismatch)
		}
	}
	enc, err := signatureEncoding(opts.Encoding)
	if err != nil {
		return nil, newError("sign", cert.id.String(), err)
	}

	digest, err := cert.signingDigest()
	if err != nil {
		return nil, newError("sign", cert.id.String(), err)
	}
	random := opts.Rand
	if random == nil {
		random = rand.Reader
	}
	r, s, err := crypto.SignDigest(random, priv, digest)
	if err != nil {
		return nil, newError("sign", cert.id.String(), err)
	}

	return newSignature(SignatureParams{
		Name:                opts.Name,
		PublicKey:           opts.PublicKey,
		EMail:               opts.EMail,
		WWW:                 opts.WWW,
		NotBefore:           opts.NotBefore,
		NotAfter:            opts.NotAfter,
		HashAlgorithm:       opts.HashAlgorithm,
		EncryptionAlgorithm: opts.EncryptionAlgorithm,
		Certificate:         cert,
	}, enc, r, s)
}

// VerifySignature checks sig against cert. The key embedded in the signature
// is used when present; a caller-supplied key must then be the same key.
// Without either, ErrMissingKey is returned. A cryptographic mismatch is
// reported as false with a nil error.
func VerifySignature(sig *Signature, cert *Certificate, pub *crypto.ECCPublicKey) (bool, error) {
	if sig == nil {
		return false, newError("verify", "", fmt.Errorf("signature is nil"))
	}
	if cert == nil {
		return false, newError("verify", sig.id.String(), ErrNoSignedCertificate)
	}

	key := sig.publicKey
	switch {
	case key == nil && pub == nil:
		return false, newError("verify", sig.id.String(), ErrMissingKey)
	case key == nil:
		key = pub
	case pub != nil && !key.Equal(pub):
		return false, nil
	}

	digest, err := cert.signingDigest()
	if err != nil {
		return false, newError("verify", sig.id.String(), err)
	}
	return crypto.VerifyDigest(key, digest, sig.r, sig.s), nil
}

func newSignature(p SignatureParams, enc crypto.Encoding, r, s *big.Int) (*Signature, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, newError("new", "", ErrMissingSigner)
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, newError("new", "", fmt.Errorf("%w: r and s must be positive", crypto.ErrMalformedSignature))
	}

	sig := &Signature{
		name:                p.Name,
		publicKey:           p.PublicKey,
		eMail:               p.EMail,
		www:                 p.WWW,
		notBefore:           truncatePtr(p.NotBefore),
		notAfter:            truncatePtr(p.NotAfter),
		hashAlgorithm:       p.HashAlgorithm,
		encryptionAlgorithm: p.EncryptionAlgorithm,
		encoding:            enc,
		r:                   new(big.Int).Set(r),
		s:                   new(big.Int).Set(s),
		certificate:         p.Certificate,
	}

	id, err := canonical.Identifier(sig.ToJSON(false, enc), "@id")
	if err != nil {
		return nil, newError("new", "", err)
	}
	sig.id = SignatureID(id)
	return sig, nil
}

// ID returns the content-addressed identifier.
func (s *Signature) ID() SignatureID { return s.id }

// Name returns the signer display name.
func (s *Signature) Name() string { return s.name }

// PublicKey returns the embedded signer key, nil when absent.
func (s *Signature) PublicKey() *crypto.ECCPublicKey { return s.publicKey }

// EMail returns the signer contact address.
func (s *Signature) EMail() string { return s.eMail }

// WWW returns the signer contact URL.
func (s *Signature) WWW() string { return s.www }

// NotBefore returns the start of the signature validity window, if any.
func (s *Signature) NotBefore() *time.Time { return copyTime(s.notBefore) }

// NotAfter returns the end of the signature validity window, if any.
func (s *Signature) NotAfter() *time.Time { return copyTime(s.notAfter) }

// HashAlgorithm returns the hashing algorithm tag.
func (s *Signature) HashAlgorithm() string { return s.hashAlgorithm }

// EncryptionAlgorithm returns the encryption algorithm tag.
func (s *Signature) EncryptionAlgorithm() string { return s.encryptionAlgorithm }

// Encoding returns the encoding of R and S.
func (s *Signature) Encoding() crypto.Encoding { return s.encoding }

// R returns a copy of the R value.
func (s *Signature) R() *big.Int { return new(big.Int).Set(s.r) }

// S returns a copy of the S value.
func (s *Signature) S() *big.Int { return new(big.Int).Set(s.s) }

// Certificate returns the signed certificate, nil when unbound.
func (s *Signature) Certificate() *Certificate { return s.certificate }

// ASN1 returns R and S as a DER SEQUENCE(INTEGER, INTEGER).
func (s *Signature) ASN1() ([]byte, error) {
	return crypto.MarshalSignatureASN1(s.r, s.s)
}

// Verify checks the signature against the certificate it references.
// See VerifySignature for key selection.
func (s *Signature) Verify(pub *crypto.ECCPublicKey) (bool, error) {
	if s.certificate == nil {
		return false, newError("verify", s.id.String(), ErrNoSignedCertificate)
	}
	return VerifySignature(s, s.certificate, pub)
}

// Equal reports whether both signatures have the same identifier.
func (s *Signature) Equal(other *Signature) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.id == other.id
}

// Compare orders signatures by identifier. Nil sorts first.
func (s *Signature) Compare(other *Signature) int {
	switch {
	case s == nil && other == nil:
		return 0
	case s == nil:
		return -1
	case other == nil:
		return 1
	}
	return strings.Compare(string(s.id), string(other.id))
}

// IsValidAt reports whether t falls into the signature's validity window.
// Open ends are unbounded.
func (s *Signature) IsValidAt(t time.Time) bool {
	if s.notBefore != nil && t.Before(*s.notBefore) {
		return false
	}
	if s.notAfter != nil && !t.Before(*s.notAfter) {
		return false
	}
	return true
}

// ToJSON renders the signature. R, S and an embedded key are rendered in enc,
// or in the signature's own encoding when enc is empty. Embedded documents
// omit the JSON-LD context.
//
// The identifier covers the encoding tag, so @id is only rendered in the
// signature's own encoding. A document in another encoding parses into a
// signature with its own identifier.
func (s *Signature) ToJSON(embedded bool, enc crypto.Encoding) canonical.Document {
	if !enc.IsValid() {
		enc = s.encoding
	}
	doc := canonical.Document{
		"name":     s.name,
		"r":        enc.Encode(s.r.Bytes()),
		"s":        enc.Encode(s.s.Bytes()),
		"encoding": enc.String(),
	}
	if enc == s.encoding && s.id != "" {
		doc["@id"] = s.id.String()
	}
	if !embedded {
		doc["@context"] = ContextECCSignature
	}
	if s.publicKey != nil {
		doc["publicKey"] = s.publicKey.ToJSON(enc, true)
	}
	if s.eMail != "" {
		doc["eMail"] = s.eMail
	}
	if s.www != "" {
		doc["www"] = s.www
	}
	if s.notBefore != nil {
		doc["notBefore"] = canonical.FormatTime(*s.notBefore)
	}
	if s.notAfter != nil {
		doc["notAfter"] = canonical.FormatTime(*s.notAfter)
	}
	if s.hashAlgorithm != "" {
		doc["hashingAlgorithm"] = s.hashAlgorithm
	}
	if s.encryptionAlgorithm != "" {
		doc["encryptionAlgorithm"] = s.encryptionAlgorithm
	}
	return doc
}

// ParseSignature decodes a signature document and binds it to cert (which
// may be nil). When the document carries an @id it must match the content.
func ParseSignature(doc canonical.Document, cert *Certificate) (*Signature, error) {
	sig, err := parseSignature(doc, cert)
	if err != nil {
		return nil, newError("parse", "", err)
	}
	return sig, nil
}

func parseSignature(doc canonical.Document, cert *Certificate) (*Signature, error) {
	if ctx, err := doc.OptString("@context"); err != nil {
		return nil, err
	} else if ctx != "" && ctx != ContextECCSignature {
		return nil, fmt.Errorf("%w: unexpected signature context %q", canonical.ErrInvalidField, ctx)
	}

	var (
		p   SignatureParams
		err error
	)
	p.Certificate = cert
	if p.Name, err = doc.String("name"); err != nil {
		return nil, err
	}
	encTag, err := doc.OptString("encoding")
	if err != nil {
		return nil, err
	}
	if p.Encoding, err = crypto.ParseEncoding(encTag); err != nil {
		return nil, err
	}
	if p.R, err = doc.String("r"); err != nil {
		return nil, err
	}
	if p.S, err = doc.String("s"); err != nil {
		return nil, err
	}
	if doc.Has("publicKey") {
		keyDoc, err := doc.Object("publicKey")
		if err != nil {
			return nil, err
		}
		if p.PublicKey, err = crypto.ParseECCPublicKey(keyDoc); err != nil {
			return nil, fmt.Errorf("publicKey: %w", err)
		}
	}
	if p.EMail, err = doc.OptString("eMail"); err != nil {
		return nil, err
	}
	if p.WWW, err = doc.OptString("www"); err != nil {
		return nil, err
	}
	if p.NotBefore, err = doc.OptTime("notBefore"); err != nil {
		return nil, err
	}
	if p.NotAfter, err = doc.OptTime("notAfter"); err != nil {
		return nil, err
	}
	if p.HashAlgorithm, err = doc.OptString("hashingAlgorithm"); err != nil {
		return nil, err
	}
	if p.EncryptionAlgorithm, err = doc.OptString("encryptionAlgorithm"); err != nil {
		return nil, err
	}

	sig, err := NewECCSignature(p)
	if err != nil {
		return nil, err
	}
	if claimed, err := doc.OptString("@id"); err != nil {
		return nil, err
	} else if claimed != "" && claimed != sig.id.String() {
		return nil, fmt.Errorf("%w: signature claims %s, content hashes to %s", ErrIdentifierMismatch, claimed, sig.id)
	}
	return sig, nil
}

// bind returns a copy of s referencing cert.
func (s *Signature) bind(cert *Certificate) *Signature {
	c := *s
	c.certificate = cert
	return &c
}

func signatureEncoding(enc crypto.Encoding) (crypto.Encoding, error) {
	return crypto.ParseEncoding(string(enc))
}

func decodeScalar(name, value string, enc crypto.Encoding) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: %s is empty", crypto.ErrMalformedSignature, name)
	}
	raw, err := enc.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", crypto.ErrMalformedSignature, name, err)
	}
	n := new(big.Int).SetBytes(raw)
	if n.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s is zero", crypto.ErrMalformedSignature, name)
	}
	return n, nil
}

func truncatePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := canonical.Truncate(*t)
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
