package certificate

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/usage"
)

// fixedScalar is the private scalar of the known P-256 test key.
const fixedScalar = "c9afa9d845ba75166b5c215767b1d6934e50c3db36e89b127b8a622b120f6721"

var (
	scenarioNotBefore = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	scenarioNotAfter  = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

// knownKeyPair returns the deterministic P-256 test key pair.
func knownKeyPair(t *testing.T) *crypto.KeyPair {
	t.Helper()
	d, ok := new(big.Int).SetString(fixedScalar, 16)
	if !ok {
		t.Fatal("invalid test scalar")
	}
	ec := crypto.CurveSecp256r1.Elliptic()
	priv := &ecdsa.PrivateKey{D: d}
	priv.Curve = ec
	priv.X, priv.Y = ec.ScalarBaseMult(d.Bytes())

	kp, err := crypto.NewKeyPair(priv)
	if err != nil {
		t.Fatalf("NewKeyPair() error = %v", err)
	}
	return kp
}

// generateKeyPair returns a fresh key pair on curve.
func generateKeyPair(t *testing.T, curve crypto.Curve) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair(curve)
	if err != nil {
		t.Fatalf("GenerateKeyPair(%s) error = %v", curve, err)
	}
	return kp
}

// scenarioParams returns the parameters of a one-year SignData certificate.
func scenarioParams(pub *crypto.ECCPublicKey) Params {
	return Params{
		Description: "EVSE contract certificate",
		PublicKeys:  []*crypto.ECCPublicKey{pub},
		Usages:      []usage.Usage{usage.SignData{}},
		NotBefore:   scenarioNotBefore,
		NotAfter:    scenarioNotAfter,
		Owner: Owner{
			Name:  "Charging Operator GmbH",
			EMail: "pki@charging-operator.de",
			WWW:   "https://www.charging-operator.de",
		},
	}
}

// newTestCertificate builds the scenario certificate for pub.
func newTestCertificate(t *testing.T, pub *crypto.ECCPublicKey) *Certificate {
	t.Helper()
	c, err := New(scenarioParams(pub))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// signWith signs c with kp, embedding the public key when embed is true.
func signWith(t *testing.T, c *Certificate, kp *crypto.KeyPair, name string, embed bool) *Signature {
	t.Helper()
	opts := SignOptions{Name: name, HashAlgorithm: HashAlgorithmSHA512}
	if embed {
		opts.PublicKey = kp.PublicKey
	}
	sig, err := Sign(c, kp.PrivateKey, opts)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return sig
}
