// Package store keeps certificates on the filesystem, one canonical JSON
// document per certificate identifier.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/certificate"
)

// ErrNotFound indicates no certificate is stored under the identifier.
var ErrNotFound = errors.New("certificate not found")

// Store manages certificate storage on the filesystem.
// Directory structure:
//
//	{base}/
//	  ├── certs/           # Certificates
//	  │   └── {id}.json
//	  └── index.txt        # Certificate index
//
// A certificate is rewritten in place whenever signatures are added; its
// identifier, and therefore its file name, never changes.
type Store struct {
	mu       sync.RWMutex
	basePath string
}

// NewStore creates a new certificate store at the given path.
func NewStore(basePath string) *Store {
	return &Store{basePath: basePath}
}

// Init initializes the store directory structure.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(s.basePath, "certs"), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.basePath, err)
	}

	indexPath := s.indexPath()
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		if err := os.WriteFile(indexPath, []byte(""), 0644); err != nil {
			return fmt.Errorf("failed to create index file: %w", err)
		}
	}

	return nil
}

// Exists checks if the store is already initialized.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.indexPath())
	return err == nil
}

// BasePath returns the base path of the store.
func (s *Store) BasePath() string {
	return s.basePath
}

// CertPath returns the path for a certificate with the given identifier.
func (s *Store) CertPath(id certificate.CertificateID) string {
	return filepath.Join(s.basePath, "certs", id.String()+".json")
}

// Save writes cert to the store. A certificate stored for the first time is
// appended to the index; saving it again replaces the document, which is how
// new signatures are persisted.
func (s *Store) Save(cert *certificate.Certificate) error {
	data, err := cert.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode certificate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.CertPath(cert.ID())
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	if err := writeFileAtomic(path, data, 0644); err != nil {
		return err
	}
	if isNew {
		return s.appendIndex(cert)
	}
	return nil
}

// Load reads the certificate stored under id. The document is re-parsed and
// its recomputed identifier must equal id.
func (s *Store) Load(id certificate.CertificateID) (*certificate.Certificate, error) {
	if _, err := certificate.ParseCertificateID(id.String()); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(s.CertPath(id))
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	cert, err := certificate.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate %s: %w", id, err)
	}
	if cert.ID() != id {
		return nil, fmt.Errorf("%w: %s holds %s", certificate.ErrIdentifierMismatch, id, cert.ID())
	}
	return cert, nil
}

// Has reports whether a certificate is stored under id.
func (s *Store) Has(id certificate.CertificateID) bool {
	if _, err := certificate.ParseCertificateID(id.String()); err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.CertPath(id))
	return err == nil
}

// List returns the identifiers of all stored certificates, sorted.
func (s *Store) List() ([]certificate.CertificateID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.basePath, "certs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read certificates directory: %w", err)
	}

	var ids []certificate.CertificateID
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id, err := certificate.ParseCertificateID(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue // Not one of ours
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Delete removes the certificate stored under id and its index entry.
func (s *Store) Delete(id certificate.CertificateID) error {
	if _, err := certificate.ParseCertificateID(id.String()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.CertPath(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete certificate: %w", err)
	}

	entries, err := s.readIndex()
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, e := range entries {
		if e.ID != id {
			b.WriteString(e.line())
		}
	}
	return writeFileAtomic(s.indexPath(), []byte(b.String()), 0644)
}

func (s *Store) indexPath() string {
	return filepath.Join(s.basePath, "index.txt")
}

// IndexEntry represents an entry in the certificate index.
type IndexEntry struct {
	ID        certificate.CertificateID
	NotBefore time.Time
	NotAfter  time.Time
	Owner     string
}

// Status returns "V" for a certificate inside its validity window at t and
// "E" otherwise.
func (e IndexEntry) Status(t time.Time) string {
	if t.Before(e.NotBefore) || !t.Before(e.NotAfter) {
		return "E"
	}
	return "V"
}

// Format: {id}\t{notBefore}\t{notAfter}\t{owner}
func (e IndexEntry) line() string {
	return fmt.Sprintf("%s\t%s\t%s\t%s\n",
		e.ID,
		canonical.FormatTime(e.NotBefore),
		canonical.FormatTime(e.NotAfter),
		strings.NewReplacer("\t", " ", "\n", " ").Replace(e.Owner),
	)
}

// appendIndex appends a certificate entry to the index file.
func (s *Store) appendIndex(cert *certificate.Certificate) error {
	f, err := os.OpenFile(s.indexPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entry := IndexEntry{
		ID:        cert.ID(),
		NotBefore: cert.NotBefore(),
		NotAfter:  cert.NotAfter(),
		Owner:     cert.Owner().Name,
	}
	if _, err := f.WriteString(entry.line()); err != nil {
		return fmt.Errorf("failed to write index entry: %w", err)
	}

	return nil
}

// ReadIndex reads all entries from the index file.
func (s *Store) ReadIndex() ([]IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readIndex()
}

func (s *Store) readIndex() ([]IndexEntry, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}

	var entries []IndexEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		entry, err := parseIndexLine(line)
		if err != nil {
			continue // Skip malformed entries
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// parseIndexLine parses a single index line.
func parseIndexLine(line string) (IndexEntry, error) {
	var entry IndexEntry
	parts := strings.SplitN(line, "\t", 4)
	if len(parts) < 4 {
		return entry, fmt.Errorf("malformed index line")
	}

	id, err := certificate.ParseCertificateID(parts[0])
	if err != nil {
		return entry, err
	}
	entry.ID = id

	if entry.NotBefore, err = canonical.ParseTime(parts[1]); err != nil {
		return entry, fmt.Errorf("invalid notBefore: %w", err)
	}
	if entry.NotAfter, err = canonical.ParseTime(parts[2]); err != nil {
		return entry, fmt.Errorf("invalid notAfter: %w", err)
	}
	entry.Owner = parts[3]

	return entry, nil
}

// writeFileAtomic writes data to a temporary file and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
