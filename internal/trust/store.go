package trust

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/crypto"
)

// storeYAML is the file representation of a trust store.
type storeYAML struct {
	Anchors []anchorYAML `yaml:"anchors"`
}

// anchorYAML describes one anchor. The key is either an uncompressed point
// or a pair of coordinates, in the given encoding.
type anchorYAML struct {
	Name      string   `yaml:"name"`
	Curve     string   `yaml:"curve,omitempty"`
	Encoding  string   `yaml:"encoding,omitempty"`
	Point     string   `yaml:"point,omitempty"`
	X         string   `yaml:"x,omitempty"`
	Y         string   `yaml:"y,omitempty"`
	NotBefore string   `yaml:"notBefore"`
	NotAfter  string   `yaml:"notAfter,omitempty"`
	Comment   string   `yaml:"comment,omitempty"`
	Protocols []string `yaml:"protocols,omitempty"`
}

// Store is an immutable set of trust anchors keyed by name.
type Store struct {
	anchors []*Anchor
	byName  map[string]*Anchor
}

// NewStore builds a store. Anchor names must be unique.
func NewStore(anchors ...*Anchor) (*Store, error) {
	s := &Store{byName: make(map[string]*Anchor, len(anchors))}
	for _, a := range anchors {
		if a == nil {
			continue
		}
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, exists := s.byName[a.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAnchor, a.Name)
		}
		s.byName[a.Name] = a
		s.anchors = append(s.anchors, a)
	}
	sort.Slice(s.anchors, func(i, j int) bool { return s.anchors[i].Name < s.anchors[j].Name })
	return s, nil
}

// LoadStore reads a YAML trust store from path.
func LoadStore(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust store: %w", err)
	}
	return ParseStore(data)
}

// ParseStore decodes a YAML trust store.
func ParseStore(data []byte) (*Store, error) {
	var sy storeYAML
	if err := yaml.Unmarshal(data, &sy); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	anchors := make([]*Anchor, 0, len(sy.Anchors))
	for i := range sy.Anchors {
		a, err := sy.Anchors[i].toAnchor()
		if err != nil {
			return nil, fmt.Errorf("anchor %d: %w", i, err)
		}
		anchors = append(anchors, a)
	}
	return NewStore(anchors...)
}

// Save writes the store to path as YAML.
func (s *Store) Save(path string) error {
	sy := storeYAML{Anchors: make([]anchorYAML, 0, len(s.anchors))}
	for _, a := range s.anchors {
		sy.Anchors = append(sy.Anchors, fromAnchor(a))
	}
	data, err := yaml.Marshal(sy)
	if err != nil {
		return fmt.Errorf("failed to marshal trust store: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trust store: %w", err)
	}
	return nil
}

// All returns the anchors sorted by name.
func (s *Store) All() []*Anchor {
	return append([]*Anchor(nil), s.anchors...)
}

// Len returns the number of anchors.
func (s *Store) Len() int {
	return len(s.anchors)
}

// Get returns the anchor with the given name.
func (s *Store) Get(name string) (*Anchor, bool) {
	a, ok := s.byName[name]
	return a, ok
}

// For returns the anchors serving version that are valid at t.
func (s *Store) For(version ProtocolVersion, at time.Time) []*Anchor {
	var out []*Anchor
	for _, a := range s.anchors {
		if a.Serves(version) && a.IsValidAt(at) {
			out = append(out, a)
		}
	}
	return out
}

// Find returns the anchor holding key, if any.
func (s *Store) Find(key *crypto.ECCPublicKey) (*Anchor, bool) {
	for _, a := range s.anchors {
		if a.PublicKey.Equal(key) {
			return a, true
		}
	}
	return nil, false
}

func (ay *anchorYAML) toAnchor() (*Anchor, error) {
	curve, err := crypto.ParseCurve(ay.Curve)
	if err != nil {
		return nil, err
	}
	enc, err := crypto.ParseEncoding(ay.Encoding)
	if err != nil {
		return nil, err
	}

	var key *crypto.ECCPublicKey
	switch {
	case ay.Point != "":
		key, err = crypto.NewECCPublicKeyFromPoint(ay.Point, enc, curve)
	case ay.X != "" && ay.Y != "":
		key, err = crypto.NewECCPublicKeyFromCoordinates(ay.X, ay.Y, enc, curve)
	default:
		return nil, fmt.Errorf("%w: %s: point or x/y required", ErrInvalidAnchor, ay.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ay.Name, err)
	}

	a := &Anchor{
		Name:      ay.Name,
		PublicKey: key,
		Comment:   ay.Comment,
	}
	if a.NotBefore, err = canonical.ParseTime(ay.NotBefore); err != nil {
		return nil, fmt.Errorf("%s: notBefore: %w", ay.Name, err)
	}
	if ay.NotAfter != "" {
		if a.NotAfter, err = canonical.ParseTime(ay.NotAfter); err != nil {
			return nil, fmt.Errorf("%s: notAfter: %w", ay.Name, err)
		}
	}
	for _, p := range ay.Protocols {
		v, err := ParseProtocolVersion(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ay.Name, err)
		}
		a.Protocols = append(a.Protocols, v)
	}
	return a, nil
}

func fromAnchor(a *Anchor) anchorYAML {
	ay := anchorYAML{
		Name:      a.Name,
		Curve:     a.Curve().String(),
		Encoding:  crypto.EncodingHex.String(),
		Point:     a.PublicKey.Point(crypto.EncodingHex),
		NotBefore: canonical.FormatTime(a.NotBefore),
		Comment:   a.Comment,
	}
	if !a.NotAfter.IsZero() {
		ay.NotAfter = canonical.FormatTime(a.NotAfter)
	}
	for _, p := range a.Protocols {
		ay.Protocols = append(ay.Protocols, p.String())
	}
	return ay
}
