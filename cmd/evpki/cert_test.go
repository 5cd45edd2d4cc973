package main

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/certificate"
	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/usage"
)

// createCert creates a certificate file from a profile for the given key.
func (tc *testContext) createCert(name, profileName, owner, keyFlag, keyPath string) string {
	tc.t.Helper()
	out := tc.path(name + ".json")
	tc.run("cert", "create",
		"--profile", profileName,
		"--owner", owner,
		keyFlag, keyPath,
		"--not-before", "2024-01-01T00:00:00.000Z",
		"--out", out,
	)
	return out
}

// =============================================================================
// Cert Create Tests
// =============================================================================

func TestCertCreate_Contract(t *testing.T) {
	tc := newTestContext(t)
	_, pubPath := tc.genKey("emaid", crypto.CurveSecp256r1)

	path := tc.createCert("contract", "contract", "Mobility Operator AG", "--public-key", pubPath)
	cert := tc.readCertificate(path)

	if cert.Owner().Name != "Mobility Operator AG" {
		t.Errorf("owner = %q, want Mobility Operator AG", cert.Owner().Name)
	}
	if got, want := cert.NotAfter(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(730*24*time.Hour); !got.Equal(want) {
		t.Errorf("notAfter = %v, want %v", got, want)
	}
	if !cert.HasUsage(usage.TagSignData) || !cert.HasUsage(usage.TagTLSClient) {
		t.Errorf("usages = %v, want signData and tlsClient", cert.Usages())
	}
	if len(cert.Signatures()) != 0 {
		t.Errorf("signatures = %d, want 0", len(cert.Signatures()))
	}
}

func TestCertCreate_Deterministic(t *testing.T) {
	tc := newTestContext(t)
	keyPath, _ := tc.genKey("root", crypto.CurveSecp256r1)

	a := tc.readCertificate(tc.createCert("a", "root-ca", "V2G Root", "--key", keyPath))
	b := tc.readCertificate(tc.createCert("b", "root-ca", "V2G Root", "--key", keyPath))
	if a.ID() != b.ID() {
		t.Errorf("IDs differ: %s != %s", a.ID(), b.ID())
	}
}

func TestCertCreate_ToStore(t *testing.T) {
	tc := newTestContext(t)
	keyPath, _ := tc.genKey("root", crypto.CurveSecp256r1)
	storeDir := tc.path("store")

	out := tc.run("cert", "create", "--profile", "root-ca", "--owner", "V2G Root",
		"--key", keyPath, "--store", storeDir)
	assertContains(t, out, "stored in")

	list := tc.run("cert", "list", "--store", storeDir)
	assertContains(t, list, "V2G Root")
}

func TestCertCreate_Errors(t *testing.T) {
	tc := newTestContext(t)
	_, pub256 := tc.genKey("k256", crypto.CurveSecp256r1)
	_, pub192 := tc.genKey("k192", crypto.CurveSecp192r1)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown profile", []string{"--profile", "nope", "--owner", "X", "--public-key", pub256}},
		{"curve mismatch", []string{"--profile", "contract", "--owner", "X", "--public-key", pub192}},
		{"no key", []string{"--profile", "contract", "--owner", "X"}},
		{"invalid not-before", []string{"--profile", "contract", "--owner", "X", "--public-key", pub256, "--not-before", "yesterday"}},
		{"invalid email", []string{"--profile", "contract", "--owner", "X", "--email", "not-an-address", "--public-key", pub256}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"cert", "create", "--out", tc.path("out.json")}, tt.args...)
			if _, err := tc.runErr(args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// =============================================================================
// Cert Sign / Verify Tests
// =============================================================================

func TestCertSignVerify(t *testing.T) {
	tc := newTestContext(t)
	rootKey, rootPub := tc.genKey("root", crypto.CurveSecp256r1)
	subKey, _ := tc.genKey("sub", crypto.CurveSecp256r1)

	path := tc.createCert("sub-ca", "sub-ca", "Charge Point Operator", "--key", subKey)
	before := tc.readCertificate(path)

	tc.run("cert", "sign", path, "--key", rootKey, "--name", "V2G Root")
	after := tc.readCertificate(path)

	if after.ID() != before.ID() {
		t.Errorf("ID changed by signing: %s -> %s", before.ID(), after.ID())
	}
	if len(after.Signatures()) != 1 {
		t.Fatalf("signatures = %d, want 1", len(after.Signatures()))
	}

	out := tc.run("cert", "verify", path)
	assertContains(t, out, "VALID")
	tc.run("cert", "verify", path, "--public-key", rootPub)

	_, otherPub := tc.genKey("other", crypto.CurveSecp256r1)
	out, err := tc.runErr("cert", "verify", path, "--public-key", otherPub)
	if err == nil {
		t.Error("expected verification failure with a foreign key")
	}
	assertContains(t, out, "INVALID")
}

func TestCertSign_WithoutEmbeddedKey(t *testing.T) {
	tc := newTestContext(t)
	rootKey, rootPub := tc.genKey("root", crypto.CurveSecp256r1)
	subKey, _ := tc.genKey("sub", crypto.CurveSecp256r1)

	path := tc.createCert("sub-ca", "sub-ca", "CPO", "--key", subKey)
	signed := tc.path("signed.json")
	tc.run("cert", "sign", path, "--key", rootKey, "--name", "V2G Root", "--no-embed-key", "--out", signed)

	cert := tc.readCertificate(signed)
	if len(cert.Signatures()) != 1 || cert.Signatures()[0].PublicKey() != nil {
		t.Fatalf("want one keyless signature, got %d", len(cert.Signatures()))
	}

	if _, err := tc.runErr("cert", "verify", signed); err == nil {
		t.Error("expected failure without a verification key")
	}
	tc.run("cert", "verify", signed, "--public-key", rootPub)
}

func TestCertSign_Options(t *testing.T) {
	tc := newTestContext(t)
	rootKey, _ := tc.genKey("root", crypto.CurveSecp256r1)
	path := tc.createCert("root", "root-ca", "V2G Root", "--key", rootKey)

	tc.run("cert", "sign", path, "--key", rootKey, "--name", "V2G Root",
		"--email", "pki@example.com", "--encoding", "base64",
		"--not-before", "2024-01-01T00:00:00.000Z", "--not-after", "2030-01-01T00:00:00.000Z")

	sig := tc.readCertificate(path).Signatures()[0]
	if sig.EMail() != "pki@example.com" {
		t.Errorf("eMail = %q", sig.EMail())
	}
	if sig.Encoding() != crypto.EncodingBase64 {
		t.Errorf("encoding = %s, want base64", sig.Encoding())
	}
	if sig.NotAfter() == nil || sig.NotAfter().Year() != 2030 {
		t.Errorf("notAfter = %v, want 2030", sig.NotAfter())
	}
}

func TestCertSign_Errors(t *testing.T) {
	tc := newTestContext(t)
	rootKey, _ := tc.genKey("root", crypto.CurveSecp256r1)
	path := tc.createCert("root", "root-ca", "V2G Root", "--key", rootKey)

	if _, err := tc.runErr("cert", "sign", tc.path("missing.json"), "--key", rootKey, "--name", "X"); err == nil {
		t.Error("expected error for missing certificate")
	}
	if _, err := tc.runErr("cert", "sign", path, "--key", tc.path("missing.pem"), "--name", "X"); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := tc.runErr("cert", "sign", path, "--key", rootKey, "--name", "X", "--not-after", "soon"); err == nil {
		t.Error("expected error for invalid --not-after")
	}
}

func TestCertVerify_Anchors(t *testing.T) {
	tc := newTestContext(t)
	rootKey, rootPub := tc.genKey("root", crypto.CurveSecp256r1)
	subKey, _ := tc.genKey("sub", crypto.CurveSecp256r1)
	anchors := tc.path("anchors.yaml")

	tc.run("anchor", "add", "--anchors", anchors, "--name", "V2G Root",
		"--public-key", rootPub, "--not-before", "2024-01-01T00:00:00.000Z",
		"--protocol", "ISO 15118-20")

	path := tc.createCert("sub-ca", "sub-ca", "CPO", "--key", subKey)
	tc.run("cert", "sign", path, "--key", rootKey, "--name", "V2G Root")

	at := "2025-01-01T00:00:00.000Z"
	out := tc.run("cert", "verify", path, "--anchors", anchors, "--protocol", "iso15118-20", "--at", at)
	assertContains(t, out, `anchor "V2G Root"`)

	if _, err := tc.runErr("cert", "verify", path, "--anchors", anchors, "--protocol", "ISO 15118-2", "--at", at); err == nil {
		t.Error("expected failure for a protocol the anchor does not serve")
	}
	if _, err := tc.runErr("cert", "verify", path, "--anchors", anchors, "--protocol", "DIN 70121", "--at", at); err == nil {
		t.Error("expected error for unknown protocol")
	}
	if _, err := tc.runErr("cert", "verify", path, "--anchors", anchors); err == nil {
		t.Error("expected error for --anchors without --protocol")
	}
}

func TestCertVerify_Unsigned(t *testing.T) {
	tc := newTestContext(t)
	keyPath, _ := tc.genKey("root", crypto.CurveSecp256r1)
	path := tc.createCert("root", "root-ca", "V2G Root", "--key", keyPath)

	out, err := tc.runErr("cert", "verify", path)
	if err == nil {
		t.Fatal("expected error for unsigned certificate")
	}
	assertContains(t, out, "no signatures")
}

// =============================================================================
// Cert Show / ID Tests
// =============================================================================

func TestCertShow(t *testing.T) {
	tc := newTestContext(t)
	keyPath, _ := tc.genKey("root", crypto.CurveSecp256r1)
	path := tc.createCert("root", "root-ca", "V2G Root", "--key", keyPath)
	tc.run("cert", "sign", path, "--key", keyPath, "--name", "V2G Root")

	out := tc.run("cert", "show", path)
	for _, want := range []string{"V2G Root", "P-256", "signCertificates (maxPathLength=2)", "Signature:"} {
		assertContains(t, out, want)
	}
}

func TestCertID(t *testing.T) {
	tc := newTestContext(t)
	keyPath, _ := tc.genKey("root", crypto.CurveSecp256r1)
	path := tc.createCert("root", "root-ca", "V2G Root", "--key", keyPath)
	cert := tc.readCertificate(path)

	out := tc.run("cert", "id", path)
	if strings.TrimSpace(out) != cert.ID().String() {
		t.Errorf("id = %q, want %s", strings.TrimSpace(out), cert.ID())
	}

	doc := tc.readDocument(path)
	doc["@id"] = strings.Repeat("0", 64)
	data, err := canonical.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	tampered := tc.path("tampered.json")
	if err := os.WriteFile(tampered, data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := tc.runErr("cert", "id", tampered); err == nil {
		t.Error("expected identifier mismatch")
	}
	if _, err := certificate.ParseJSON(data); err == nil {
		t.Error("ParseJSON() accepted a mismatching @id")
	}
}
