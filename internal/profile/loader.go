package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/usage"
)

// profileYAML is the YAML representation of a Profile.
type profileYAML struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Curve       string   `yaml:"curve,omitempty"`
	Usages      []string `yaml:"usages,omitempty"`

	// MaxPathLength bounds the signCertificates usage, if listed.
	MaxPathLength *int `yaml:"maxPathLength,omitempty"`

	Validity string `yaml:"validity"` // Duration string like "8760h", "365d" or "10y"

	Policy                       string   `yaml:"policy,omitempty"`
	DistributionPoints           []string `yaml:"distributionPoints,omitempty"`
	RevocationDistributionPoints []string `yaml:"revocationDistributionPoints,omitempty"`
	DeltaDistributionPoints      []string `yaml:"deltaDistributionPoints,omitempty"`
}

// LoadProfileFromFile loads a profile from a YAML file.
func LoadProfileFromFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	return LoadProfileFromBytes(data)
}

// LoadProfileFromBytes loads a profile from YAML bytes.
func LoadProfileFromBytes(data []byte) (*Profile, error) {
	var py profileYAML
	if err := yaml.Unmarshal(data, &py); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return profileYAMLToProfile(&py)
}

// profileYAMLToProfile converts the YAML representation to a Profile.
func profileYAMLToProfile(py *profileYAML) (*Profile, error) {
	curve, err := crypto.ParseCurve(py.Curve)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		Name:                         py.Name,
		Description:                  py.Description,
		Curve:                        curve,
		Policy:                       py.Policy,
		DistributionPoints:           py.DistributionPoints,
		RevocationDistributionPoints: py.RevocationDistributionPoints,
		DeltaDistributionPoints:      py.DeltaDistributionPoints,
	}

	for _, name := range py.Usages {
		u, err := usage.FromName(name)
		if err != nil {
			return nil, fmt.Errorf("usages: %w", err)
		}
		if _, ok := u.(usage.SignCertificates); ok && py.MaxPathLength != nil {
			if u, err = usage.NewSignCertificates(*py.MaxPathLength); err != nil {
				return nil, fmt.Errorf("usages: %w", err)
			}
		}
		p.Usages = append(p.Usages, u)
	}
	p.Usages = usage.Distinct(p.Usages)
	if py.MaxPathLength != nil && !p.IsIssuer() {
		return nil, fmt.Errorf("maxPathLength requires the signCertificates usage")
	}

	// Parse validity duration
	validity, err := parseDuration(py.Validity)
	if err != nil {
		return nil, fmt.Errorf("invalid validity: %w", err)
	}
	p.Validity = validity

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile validation failed: %w", err)
	}

	return p, nil
}

// parseDuration parses a duration string with support for days (d) and years (y).
// Examples: "365d", "1y", "8760h", "1y30d", "30d12h".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration is empty")
	}

	// Try standard Go duration first
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var total time.Duration
	remaining := s

	if idx := strings.IndexByte(remaining, 'y'); idx >= 0 {
		years, err := parseInt(remaining[:idx])
		if err != nil {
			return 0, fmt.Errorf("invalid years: %w", err)
		}
		total += time.Duration(years) * 365 * 24 * time.Hour
		remaining = remaining[idx+1:]
	}

	if idx := strings.IndexByte(remaining, 'd'); idx >= 0 {
		days, err := parseInt(remaining[:idx])
		if err != nil {
			return 0, fmt.Errorf("invalid days: %w", err)
		}
		total += time.Duration(days) * 24 * time.Hour
		remaining = remaining[idx+1:]
	}

	// Parse remaining as standard duration
	if remaining != "" {
		d, err := time.ParseDuration(remaining)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %w", err)
		}
		total += d
	}

	return total, nil
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("missing number")
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid number: %s", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// LoadProfilesFromDirectory loads all profiles from a directory.
// Returns a map of profile name to Profile.
func LoadProfilesFromDirectory(dir string) (map[string]*Profile, error) {
	profiles := make(map[string]*Profile)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return profiles, nil // Empty directory is OK
		}
		return nil, fmt.Errorf("failed to read profiles directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) != ".yaml" && filepath.Ext(name) != ".yml" {
			continue
		}

		profile, err := LoadProfileFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load profile from %s: %w", name, err)
		}

		if _, exists := profiles[profile.Name]; exists {
			return nil, fmt.Errorf("duplicate profile name: %s", profile.Name)
		}

		profiles[profile.Name] = profile
	}

	return profiles, nil
}

// MarshalProfileYAML renders p in the profile file format.
func MarshalProfileYAML(p *Profile) ([]byte, error) {
	data, err := yaml.Marshal(profileToYAML(p))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}
	return data, nil
}

// SaveProfileToFile saves a profile to a YAML file.
func SaveProfileToFile(p *Profile, path string) error {
	data, err := MarshalProfileYAML(p)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}

	return nil
}

// profileToYAML converts a Profile to its YAML representation.
func profileToYAML(p *Profile) *profileYAML {
	py := &profileYAML{
		Name:                         p.Name,
		Description:                  p.Description,
		Curve:                        p.Curve.String(),
		Policy:                       p.Policy,
		DistributionPoints:           p.DistributionPoints,
		RevocationDistributionPoints: p.RevocationDistributionPoints,
		DeltaDistributionPoints:      p.DeltaDistributionPoints,
	}

	for _, u := range p.Usages {
		py.Usages = append(py.Usages, strings.TrimPrefix(u.Tag(), usage.TagPrefix))
		if sc, ok := u.(usage.SignCertificates); ok && sc.MaxPathLength != nil {
			n := *sc.MaxPathLength
			py.MaxPathLength = &n
		}
	}

	// Format validity as hours or days
	hours := int(p.Validity.Hours())
	if hours%24 == 0 && hours >= 24 && time.Duration(hours)*time.Hour == p.Validity {
		py.Validity = fmt.Sprintf("%dd", hours/24)
	} else {
		py.Validity = p.Validity.String()
	}

	return py
}

// ProfileStore provides access to the builtin and custom profiles.
type ProfileStore struct {
	basePath string
	profiles map[string]*Profile
}

// NewProfileStore creates a new ProfileStore for custom profiles under dir.
func NewProfileStore(dir string) *ProfileStore {
	return &ProfileStore{
		basePath: dir,
		profiles: make(map[string]*Profile),
	}
}

// Load loads the builtin profiles, then the custom profiles directory.
// Custom profiles override builtin profiles with the same name.
func (ps *ProfileStore) Load() error {
	builtins, err := BuiltinProfiles()
	if err != nil {
		return fmt.Errorf("failed to load builtin profiles: %w", err)
	}
	for name, p := range builtins {
		ps.profiles[name] = p
	}

	if ps.basePath == "" {
		return nil
	}
	customProfiles, err := LoadProfilesFromDirectory(ps.basePath)
	if err != nil {
		return err
	}
	for name, p := range customProfiles {
		ps.profiles[name] = p
	}

	return nil
}

// Get returns a profile by name.
func (ps *ProfileStore) Get(name string) (*Profile, bool) {
	p, ok := ps.profiles[name]
	return p, ok
}

// List returns all loaded profile names, sorted.
func (ps *ProfileStore) List() []string {
	names := make([]string, 0, len(ps.profiles))
	for name := range ps.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save saves a profile to the custom profiles directory.
func (ps *ProfileStore) Save(p *Profile) error {
	if ps.basePath == "" {
		return fmt.Errorf("profile store has no directory")
	}
	if err := os.MkdirAll(ps.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create profiles directory: %w", err)
	}

	path := filepath.Join(ps.basePath, p.Name+".yaml")
	if err := SaveProfileToFile(p, path); err != nil {
		return err
	}

	ps.profiles[p.Name] = p
	return nil
}

// BasePath returns the custom profiles directory path.
func (ps *ProfileStore) BasePath() string {
	return ps.basePath
}
