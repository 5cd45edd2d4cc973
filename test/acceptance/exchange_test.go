//go:build acceptance

package acceptance

import (
	"path/filepath"
	"testing"
)

// =============================================================================
// Certificate Exchange Tests (TestA_Exchange_*)
// =============================================================================

func TestA_Exchange_CBORAndCOSE(t *testing.T) {
	dir := t.TempDir()
	storeDir := filepath.Join(dir, "store")
	root := newParty(t, dir, "root", "root-ca", "secp256r1", "V2G Root")
	evse := newParty(t, dir, "evse", "evse-leaf", "secp256r1", "Charging Station 42")
	signBy(t, evse, root, "V2G Root")

	cbor := filepath.Join(dir, "evse.cbor")
	cose := filepath.Join(dir, "evse.cose")
	runEVPKI(t, "cert", "export", evse.Cert, "--format", "cbor", "--out", cbor)
	runEVPKI(t, "cert", "export", evse.Cert, "--format", "cose", "--key", root.Key, "--out", cose)

	runEVPKI(t, "cert", "import", cbor, "--store", storeDir)
	runEVPKIExpectError(t, "cert", "import", cose, "--public-key", evse.PubKey, "--store", storeDir)
	runEVPKI(t, "cert", "import", cose, "--public-key", root.PubKey, "--store", storeDir)

	output := runEVPKI(t, "cert", "list", "--store", storeDir)
	assertOutputContains(t, output, "Charging Station 42")
}

func TestA_Exchange_AuditTrail(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")
	key := filepath.Join(dir, "root.pem")
	cert := filepath.Join(dir, "root.json")

	runEVPKI(t, "--audit-log", logPath, "key", "gen", "--out", key)
	runEVPKI(t, "--audit-log", logPath, "cert", "create", "--profile", "root-ca",
		"--owner", "V2G Root", "--key", key, "--out", cert)
	runEVPKI(t, "--audit-log", logPath, "cert", "sign", cert, "--key", key, "--name", "V2G Root")

	output := runEVPKI(t, "audit", "verify", "--log", logPath)
	assertOutputContains(t, output, "VERIFICATION PASSED")
	output = runEVPKI(t, "audit", "tail", "--log", logPath)
	assertOutputContains(t, output, "CERT_SIGNED")
}
