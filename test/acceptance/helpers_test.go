//go:build acceptance

// Package acceptance contains black-box CLI acceptance tests (TestA_*).
// Run with: go test -tags=acceptance ./test/acceptance/...
package acceptance

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// evpkiBinary is the path to the evpki binary.
// Set via EVPKI_BINARY env var or default to ./bin/evpki in the repo root.
var evpkiBinary string

func init() {
	if bin := os.Getenv("EVPKI_BINARY"); bin != "" {
		evpkiBinary = bin
	} else {
		evpkiBinary = "../../bin/evpki"
	}
}

// runEVPKI executes the evpki CLI with the given arguments and returns stdout.
// Fails the test if the command returns a non-zero exit code.
func runEVPKI(t *testing.T, args ...string) string {
	t.Helper()
	cmd := exec.Command(evpkiBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("evpki %s failed: %v\nstderr: %s\nstdout: %s",
			strings.Join(args, " "), err, stderr.String(), stdout.String())
	}
	return stdout.String()
}

// runEVPKIExpectError executes evpki and expects it to fail.
// Returns the combined output (stdout + stderr).
func runEVPKIExpectError(t *testing.T, args ...string) string {
	t.Helper()
	cmd := exec.Command(evpkiBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err == nil {
		t.Fatalf("evpki %s expected to fail but succeeded\nstdout: %s",
			strings.Join(args, " "), stdout.String())
	}
	return stdout.String() + stderr.String()
}

// runEVPKIBackground runs evpki until ctx is cancelled.
func runEVPKIBackground(ctx context.Context, args ...string) error {
	return exec.CommandContext(ctx, evpkiBinary, args...).Run()
}

// party is a key holder of the charging trust infrastructure.
type party struct {
	Key    string // PEM private key
	PubKey string // public key document
	Cert   string // certificate document
}

// newParty generates a key pair and creates an unsigned certificate for it.
func newParty(t *testing.T, dir, name, profile, curve, owner string) party {
	t.Helper()
	p := party{
		Key:    filepath.Join(dir, name+".pem"),
		PubKey: filepath.Join(dir, name+".pub.json"),
		Cert:   filepath.Join(dir, name+".json"),
	}
	runEVPKI(t, "key", "gen", "--curve", curve, "--out", p.Key)
	runEVPKI(t, "key", "pub", p.Key, "--out", p.PubKey)
	runEVPKI(t, "cert", "create",
		"--profile", profile,
		"--owner", owner,
		"--public-key", p.PubKey,
		"--not-before", "2024-01-01T00:00:00.000Z",
		"--out", p.Cert,
	)
	assertFileExists(t, p.Cert)
	return p
}

// signBy appends a signature of signer to the certificate of p.
func signBy(t *testing.T, p party, signer party, name string) {
	t.Helper()
	runEVPKI(t, "cert", "sign", p.Cert, "--key", signer.Key, "--name", name)
}

// assertFileExists fails the test if the file does not exist.
func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("expected file to exist: %s", path)
	}
}

// assertOutputContains fails if the output does not contain the expected substring.
func assertOutputContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got: %s", expected, output)
	}
}
