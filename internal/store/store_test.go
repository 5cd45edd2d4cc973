package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/remiblancher/evpki/internal/certificate"
	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/usage"
)

// =============================================================================
// Store Unit Tests
// =============================================================================

func TestU_Store_Init(t *testing.T) {
	tmpDir := t.TempDir()
	s := NewStore(tmpDir)

	if s.Exists() {
		t.Error("Exists() = true before Init()")
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if !s.Exists() {
		t.Error("Exists() = false after Init()")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "certs")); err != nil {
		t.Errorf("certs directory missing: %v", err)
	}
	if s.BasePath() != tmpDir {
		t.Errorf("BasePath() = %s, want %s", s.BasePath(), tmpDir)
	}
}

func TestU_Store_SaveLoad(t *testing.T) {
	s := newTestStore(t)
	cert, kp := newTestCertificate(t, "Charging Operator GmbH")

	if err := s.Save(cert); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !s.Has(cert.ID()) {
		t.Error("Has() = false after Save()")
	}

	loaded, err := s.Load(cert.ID())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ID() != cert.ID() {
		t.Errorf("Load() ID = %s, want %s", loaded.ID(), cert.ID())
	}
	valid, err := loaded.Verify(kp.PublicKey)
	if err != nil {
		t.Fatalf("Verify() after Load() error = %v", err)
	}
	if len(valid) != 1 {
		t.Errorf("Verify() after Load() = %v, want one signature", valid)
	}
}

func TestU_Store_SaveAgainKeepsSingleIndexEntry(t *testing.T) {
	s := newTestStore(t)
	cert, _ := newTestCertificate(t, "CPO")
	if err := s.Save(cert); err != nil {
		t.Fatal(err)
	}

	second, err := crypto.GenerateKeyPair(crypto.CurveSecp256r1)
	if err != nil {
		t.Fatal(err)
	}
	cert, err = cert.Sign(second.PrivateKey, certificate.SignOptions{Name: "Second", PublicKey: second.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(cert); err != nil {
		t.Fatalf("Save() again error = %v", err)
	}

	entries, err := s.ReadIndex()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("len(ReadIndex()) = %d, want 1", len(entries))
	}

	loaded, err := s.Load(cert.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got := len(loaded.Signatures()); got != 2 {
		t.Errorf("len(Signatures()) = %d, want 2", got)
	}
}

func TestU_Store_Load_Errors(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name    string
		id      certificate.CertificateID
		wantErr error
	}{
		{"[Unit] Load: not found", certificate.CertificateID(strings.Repeat("a", 64)), ErrNotFound},
		{"[Unit] Load: path traversal", certificate.CertificateID("../../etc/passwd"), nil},
		{"[Unit] Load: uppercase", certificate.CertificateID(strings.Repeat("A", 64)), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Load(tt.id)
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestU_Store_Load_TamperedDocument(t *testing.T) {
	s := newTestStore(t)
	cert, _ := newTestCertificate(t, "CPO")
	if err := s.Save(cert); err != nil {
		t.Fatal(err)
	}

	// Store a different certificate's document under the first identifier.
	other, _ := newTestCertificate(t, "Other Operator")
	data, err := other.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.CertPath(cert.ID()), data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(cert.ID()); !errors.Is(err, certificate.ErrIdentifierMismatch) {
		t.Errorf("Load() error = %v, want ErrIdentifierMismatch", err)
	}
}

func TestU_Store_ListDelete(t *testing.T) {
	s := newTestStore(t)

	var ids []certificate.CertificateID
	for _, owner := range []string{"A", "B", "C"} {
		cert, _ := newTestCertificate(t, owner)
		if err := s.Save(cert); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, cert.ID())
	}
	if err := os.WriteFile(filepath.Join(s.BasePath(), "certs", "README.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	listed, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i-1] >= listed[i] {
			t.Fatalf("List() not sorted: %v", listed)
		}
	}

	if err := s.Delete(ids[1]); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if s.Has(ids[1]) {
		t.Error("Has() = true after Delete()")
	}
	if err := s.Delete(ids[1]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrNotFound", err)
	}

	entries, err := s.ReadIndex()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(ReadIndex()) = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.ID == ids[1] {
			t.Error("deleted certificate still indexed")
		}
	}
}

func TestU_Store_List_Uninitialized(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"))
	ids, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("List() = %v, want empty", ids)
	}
}

func TestU_IndexEntry_Status(t *testing.T) {
	e := IndexEntry{
		NotBefore: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), "E"},
		{time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), "V"},
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "E"},
	}
	for _, tt := range tests {
		if got := e.Status(tt.at); got != tt.want {
			t.Errorf("Status(%v) = %s, want %s", tt.at, got, tt.want)
		}
	}
}

func TestU_ParseIndexLine(t *testing.T) {
	id := strings.Repeat("b", 64)
	entry, err := parseIndexLine(id + "\t2024-01-01T00:00:00.000Z\t2025-01-01T00:00:00.000Z\tOwner\twith tab")
	if err != nil {
		t.Fatalf("parseIndexLine() error = %v", err)
	}
	if entry.Owner != "Owner\twith tab" {
		t.Errorf("Owner = %q", entry.Owner)
	}

	for _, bad := range []string{"", "x\ty", id + "\tnope\t2025-01-01T00:00:00Z\to"} {
		if _, err := parseIndexLine(bad); err == nil {
			t.Errorf("parseIndexLine(%q) should fail", bad)
		}
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestF_Store_ConcurrentSave(t *testing.T) {
	s := newTestStore(t)
	cert, _ := newTestCertificate(t, "CPO")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Save(cert.Snapshot()); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}()
	}
	wg.Wait()

	entries, err := s.ReadIndex()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("len(ReadIndex()) = %d, want 1", len(entries))
	}
}

// =============================================================================
// Helpers
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir())
	if err := s.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return s
}

func newTestCertificate(t *testing.T, owner string) (*certificate.Certificate, *crypto.KeyPair) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair(crypto.CurveSecp256r1)
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	cert, err := certificate.New(certificate.Params{
		PublicKeys: []*crypto.ECCPublicKey{kp.PublicKey},
		Usages:     []usage.Usage{usage.SignData{}},
		NotBefore:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Owner:      certificate.Owner{Name: owner},
	})
	if err != nil {
		t.Fatalf("certificate.New() error = %v", err)
	}
	cert, err = cert.Sign(kp.PrivateKey, certificate.SignOptions{Name: owner, PublicKey: kp.PublicKey})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return cert, kp
}
