package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/certificate"
	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/envelope"
)

// Certificate file formats.
const (
	formatAuto = "auto"
	formatJSON = "json"
	formatCBOR = "cbor"
	formatCOSE = "cose"
)

// coseSign1Tag is the leading byte of a tagged COSE_Sign1 message (tag 18).
const coseSign1Tag = 0xd2

// detectFormat guesses the encoding of a certificate file.
func detectFormat(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '{':
		return formatJSON
	case len(data) > 0 && data[0] == coseSign1Tag:
		return formatCOSE
	default:
		return formatCBOR
	}
}

// decodeCertificate parses a certificate in the given format. COSE input is
// verified with pub when set, and only inspected otherwise.
func decodeCertificate(data []byte, format string, pub *crypto.ECCPublicKey) (*certificate.Certificate, error) {
	if format == "" || format == formatAuto {
		format = detectFormat(data)
	}
	switch format {
	case formatJSON:
		return certificate.ParseJSON(data)
	case formatCBOR:
		doc, err := canonical.UnmarshalCBOR(data)
		if err != nil {
			return nil, err
		}
		return certificate.Parse(doc)
	case formatCOSE:
		if pub != nil {
			return envelope.OpenCertificate(data, pub)
		}
		env, err := envelope.Inspect(data)
		if err != nil {
			return nil, err
		}
		if env.ContentType == envelope.ContentTypeCertificateJSON {
			return certificate.ParseJSON(env.Payload)
		}
		return decodeCertificate(env.Payload, formatCBOR, nil)
	default:
		return nil, fmt.Errorf("unsupported format: %s (use json, cbor or cose)", format)
	}
}

// loadCertificate reads a JSON or CBOR certificate file.
func loadCertificate(path string) (*certificate.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	cert, err := decodeCertificate(data, formatAuto, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cert, nil
}

// saveCertificate writes the canonical JSON document of cert.
func saveCertificate(w io.Writer, path string, cert *certificate.Certificate) error {
	data, err := cert.MarshalJSON()
	if err != nil {
		return err
	}
	return writeOutput(w, path, data, 0644)
}

// writeOutput writes data to path, or to w when path is empty or "-".
func writeOutput(w io.Writer, path string, data []byte, perm os.FileMode) error {
	if path == "" || path == "-" {
		_, err := w.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// loadPublicKey reads a public key document, or derives the public key of
// a PEM private key file.
func loadPublicKey(path string) (*crypto.ECCPublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	if bytes.Contains(data, []byte("-----BEGIN")) {
		priv, err := crypto.ParsePrivateKeyPEM(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		kp, err := crypto.NewKeyPair(priv)
		if err != nil {
			return nil, err
		}
		return kp.PublicKey, nil
	}
	doc, err := canonical.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return crypto.ParseECCPublicKey(doc)
}

// loadPublicKeys resolves every key file in paths.
func loadPublicKeys(paths []string) ([]*crypto.ECCPublicKey, error) {
	keys := make([]*crypto.ECCPublicKey, 0, len(paths))
	for _, p := range paths {
		k, err := loadPublicKey(p)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// loadKeyPair reads a PEM private key file.
func loadKeyPair(path string) (*crypto.KeyPair, error) {
	priv, err := crypto.LoadPrivateKey(path)
	if err != nil {
		return nil, err
	}
	return crypto.NewKeyPair(priv)
}

// parseOptionalTime parses a canonical or RFC 3339 timestamp; empty means nil.
func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := canonical.ParseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
