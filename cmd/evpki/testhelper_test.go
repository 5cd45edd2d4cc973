package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/certificate"
	"github.com/remiblancher/evpki/internal/crypto"
)

// executeCommand executes a Cobra command with the given args and returns output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err = root.Execute()
	return buf.String(), err
}

// testContext holds test resources.
type testContext struct {
	t       *testing.T
	tempDir string
}

// newTestContext creates a new test context with a temp directory and
// resets every command flag.
func newTestContext(t *testing.T) *testContext {
	t.Helper()
	resetAllFlags()
	return &testContext{t: t, tempDir: t.TempDir()}
}

// path returns a path within the temp directory.
func (tc *testContext) path(name string) string {
	return filepath.Join(tc.tempDir, name)
}

// writeFile writes content to a file in the temp directory.
func (tc *testContext) writeFile(name, content string) string {
	tc.t.Helper()
	path := tc.path(name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		tc.t.Fatalf("Failed to write file %s: %v", name, err)
	}
	return path
}

// run executes the root command and fails the test on error.
func (tc *testContext) run(args ...string) string {
	tc.t.Helper()
	resetAllFlags()
	out, err := executeCommand(rootCmd, args...)
	if err != nil {
		tc.t.Fatalf("evpki %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// runErr executes the root command and returns its error.
func (tc *testContext) runErr(args ...string) (string, error) {
	tc.t.Helper()
	resetAllFlags()
	return executeCommand(rootCmd, args...)
}

// genKey generates a key pair file and its public key document.
func (tc *testContext) genKey(name string, curve crypto.Curve) (keyPath, pubPath string) {
	tc.t.Helper()
	keyPath = tc.path(name + ".pem")
	pubPath = tc.path(name + ".pub.json")
	tc.run("key", "gen", "--curve", string(curve), "--out", keyPath)
	tc.run("key", "pub", keyPath, "--out", pubPath)
	return keyPath, pubPath
}

// readCertificate parses a certificate JSON file.
func (tc *testContext) readCertificate(path string) *certificate.Certificate {
	tc.t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		tc.t.Fatalf("Failed to read %s: %v", path, err)
	}
	cert, err := certificate.ParseJSON(data)
	if err != nil {
		tc.t.Fatalf("Failed to parse %s: %v", path, err)
	}
	return cert
}

// readDocument parses a JSON file into a document.
func (tc *testContext) readDocument(path string) canonical.Document {
	tc.t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		tc.t.Fatalf("Failed to read %s: %v", path, err)
	}
	doc, err := canonical.ParseJSON(data)
	if err != nil {
		tc.t.Fatalf("Failed to parse %s: %v", path, err)
	}
	return doc
}

// resetAllFlags restores the package-level flag variables. Slice flags must
// be nil so that the next parse does not append to previous values.
func resetAllFlags() {
	auditLogPath = ""
	resetKeyFlags()
	resetCertFlags()
	resetTransferFlags()
	resetAnchorFlags()
	resetProfileFlags()
	resetAuditFlags()
	resetServeFlags()
}

func resetKeyFlags() {
	keyGenCurve = string(crypto.CurveSecp256r1)
	keyGenOutput = ""
	keyPubEncoding = string(crypto.DefaultEncoding)
	keyPubOutput = ""
}

func resetCertFlags() {
	certCreateProfile = ""
	certCreateProfilesDir = ""
	certCreateOwner = ""
	certCreateEMail = ""
	certCreateWWW = ""
	certCreateDescription = ""
	certCreateKeys = nil
	certCreatePublicKeys = nil
	certCreateNotBefore = ""
	certCreateOutput = ""
	certCreateStore = ""

	certSignKey = ""
	certSignName = ""
	certSignEMail = ""
	certSignWWW = ""
	certSignNoEmbed = false
	certSignNotBefore = ""
	certSignNotAfter = ""
	certSignEncoding = ""
	certSignOutput = ""

	certVerifyPublicKey = ""
	certVerifyAnchors = ""
	certVerifyProtocol = ""
	certVerifyAt = ""
}

func resetTransferFlags() {
	certExportFormat = formatJSON
	certExportKey = ""
	certExportStore = ""
	certExportOutput = ""

	certImportFormat = formatAuto
	certImportPublicKey = ""
	certImportStore = ""

	certListStore = ""
}

func resetAnchorFlags() {
	anchorFile = ""
	anchorListProtocol = ""
	anchorListAt = ""
	anchorAddName = ""
	anchorAddPublicKey = ""
	anchorAddNotBefore = ""
	anchorAddNotAfter = ""
	anchorAddComment = ""
	anchorAddProtocols = nil
}

func resetProfileFlags() {
	profileDir = ""
	profileOverwrite = false
}

func resetAuditFlags() {
	auditLogFile = ""
	auditTailNum = 10
	auditShowJSON = false
}

func resetServeFlags() {
	serveConfig = ""
	serveHost = ""
	servePort = 0
	serveDataDir = ""
	serveAnchors = ""
	serveProfiles = ""
	serveTLSCert = ""
	serveTLSKey = ""
	serveLogLevel = "info"
}

// assertFileExists checks that a file exists.
func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Expected file to exist: %s", path)
	}
}

// assertFileNotEmpty checks that a file exists and is not empty.
func assertFileNotEmpty(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Errorf("Failed to stat file %s: %v", path, err)
		return
	}
	if info.Size() == 0 {
		t.Errorf("Expected file to be non-empty: %s", path)
	}
}

// assertContains checks that output contains want.
func assertContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Errorf("output does not contain %q:\n%s", want, output)
	}
}
