// Package envelope wraps exported documents in COSE_Sign1 messages
// (RFC 9052) so they can be transported with an authenticity proof.
//
// Supported algorithms follow the key curve:
//   - secp256r1: ES256
//   - secp521r1: ES512
//
// secp192r1 has no registered COSE algorithm and is rejected.
package envelope

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	gocose "github.com/veraison/go-cose"

	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/certificate"
	"github.com/remiblancher/evpki/internal/crypto"
)

// Content types of sealed payloads.
const (
	ContentTypeCertificateCBOR = "application/vnd.evpki.certificate+cbor"
	ContentTypeCertificateJSON = "application/vnd.evpki.certificate+json"
)

var (
	// ErrUnsupportedAlgorithm indicates a key or message algorithm outside ES256/ES512.
	ErrUnsupportedAlgorithm = errors.New("unsupported COSE algorithm")

	// ErrVerificationFailed indicates the envelope signature does not verify.
	ErrVerificationFailed = errors.New("envelope signature verification failed")

	// ErrUnexpectedContentType indicates a payload of another type than requested.
	ErrUnexpectedContentType = errors.New("unexpected content type")
)

// Envelope is a decoded COSE_Sign1 message.
type Envelope struct {
	Algorithm   gocose.Algorithm
	ContentType string
	KeyID       []byte
	Payload     []byte
}

// AlgorithmForCurve returns the COSE algorithm used with keys on curve.
func AlgorithmForCurve(curve crypto.Curve) (gocose.Algorithm, error) {
	switch curve {
	case crypto.CurveSecp256r1:
		return gocose.AlgorithmES256, nil
	case crypto.CurveSecp521r1:
		return gocose.AlgorithmES512, nil
	default:
		return 0, fmt.Errorf("%w: no algorithm for curve %s", ErrUnsupportedAlgorithm, curve)
	}
}

// KeyID returns the key identifier placed in sealed messages, the SHA-256
// of the uncompressed public point.
func KeyID(pub *crypto.ECCPublicKey) []byte {
	kid, _ := hex.DecodeString(pub.Fingerprint())
	return kid
}

// Seal signs payload with priv and returns the tagged COSE_Sign1 encoding.
func Seal(payload []byte, contentType string, priv *ecdsa.PrivateKey) ([]byte, error) {
	kp, err := crypto.NewKeyPair(priv)
	if err != nil {
		return nil, err
	}
	alg, err := AlgorithmForCurve(kp.PublicKey.Curve())
	if err != nil {
		return nil, err
	}

	signer, err := gocose.NewSigner(alg, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to create COSE signer: %w", err)
	}

	protected := gocose.ProtectedHeader{
		gocose.HeaderLabelAlgorithm: alg,
		gocose.HeaderLabelKeyID:     KeyID(kp.PublicKey),
	}
	if contentType != "" {
		protected[gocose.HeaderLabelContentType] = contentType
	}

	msg := gocose.NewSign1Message()
	msg.Headers = gocose.Headers{Protected: protected}
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	return msg.MarshalCBOR()
}

// Inspect decodes a COSE_Sign1 message without verifying it.
func Inspect(data []byte) (*Envelope, error) {
	_, env, err := parse(data)
	return env, err
}

// Open verifies a COSE_Sign1 message against pub and returns its content.
func Open(data []byte, pub *crypto.ECCPublicKey) (*Envelope, error) {
	if pub == nil {
		return nil, certificate.ErrMissingKey
	}
	msg, env, err := parse(data)
	if err != nil {
		return nil, err
	}

	want, err := AlgorithmForCurve(pub.Curve())
	if err != nil {
		return nil, err
	}
	if env.Algorithm != want {
		return nil, fmt.Errorf("%w: message uses %s, key requires %s", ErrVerificationFailed, env.Algorithm, want)
	}

	verifier, err := gocose.NewVerifier(want, pub.ECDSA())
	if err != nil {
		return nil, fmt.Errorf("failed to create COSE verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return env, nil
}

func parse(data []byte) (*gocose.Sign1Message, *Envelope, error) {
	var msg gocose.Sign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		return nil, nil, fmt.Errorf("failed to parse Sign1 message: %w", err)
	}

	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)
	}
	if alg != gocose.AlgorithmES256 && alg != gocose.AlgorithmES512 {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}

	env := &Envelope{Algorithm: alg, Payload: msg.Payload}
	if ct, ok := msg.Headers.Protected[gocose.HeaderLabelContentType].(string); ok {
		env.ContentType = ct
	}
	if kid, ok := msg.Headers.Protected[gocose.HeaderLabelKeyID].([]byte); ok {
		env.KeyID = kid
	}
	return &msg, env, nil
}

// SealCertificate seals the deterministic CBOR form of cert.
func SealCertificate(cert *certificate.Certificate, priv *ecdsa.PrivateKey) ([]byte, error) {
	payload, err := canonical.MarshalCBOR(cert.ToJSON(false))
	if err != nil {
		return nil, err
	}
	return Seal(payload, ContentTypeCertificateCBOR, priv)
}

// OpenCertificate verifies a sealed certificate against pub and decodes it.
// The certificate's own signatures are not verified.
func OpenCertificate(data []byte, pub *crypto.ECCPublicKey) (*certificate.Certificate, error) {
	env, err := Open(data, pub)
	if err != nil {
		return nil, err
	}
	switch env.ContentType {
	case ContentTypeCertificateCBOR:
		doc, err := canonical.UnmarshalCBOR(env.Payload)
		if err != nil {
			return nil, err
		}
		return certificate.Parse(doc)
	case ContentTypeCertificateJSON:
		return certificate.ParseJSON(env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedContentType, env.ContentType)
	}
}
