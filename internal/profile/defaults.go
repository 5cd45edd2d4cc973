package profile

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
)

//go:embed builtin/*.yaml
var builtinProfilesFS embed.FS

// ErrUnknownProfile indicates a profile name that is neither builtin nor
// installed.
var ErrUnknownProfile = errors.New("unknown profile")

// builtinFile is an embedded profile with the bytes it was parsed from.
type builtinFile struct {
	data    []byte
	profile *Profile
}

// readBuiltins parses and validates every embedded profile. Two files
// declaring the same name are rejected, as in a profiles directory.
func readBuiltins() ([]builtinFile, error) {
	paths, err := fs.Glob(builtinProfilesFS, "builtin/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded builtin profiles: %w", err)
	}

	files := make([]builtinFile, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := builtinProfilesFS.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		prof, err := LoadProfileFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("builtin profile %s: %w", path.Base(p), err)
		}
		if prev, dup := seen[prof.Name]; dup {
			return nil, fmt.Errorf("builtin profiles %s and %s both declare %q", prev, path.Base(p), prof.Name)
		}
		seen[prof.Name] = path.Base(p)
		files = append(files, builtinFile{data: data, profile: prof})
	}
	return files, nil
}

// BuiltinProfiles returns the profiles compiled into the binary, by name.
func BuiltinProfiles() (map[string]*Profile, error) {
	files, err := readBuiltins()
	if err != nil {
		return nil, err
	}
	profiles := make(map[string]*Profile, len(files))
	for _, f := range files {
		profiles[f.profile.Name] = f.profile
	}
	return profiles, nil
}

// GetBuiltinProfile returns a specific builtin profile by name.
func GetBuiltinProfile(name string) (*Profile, error) {
	profiles, err := BuiltinProfiles()
	if err != nil {
		return nil, err
	}
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: no builtin profile %s", ErrUnknownProfile, name)
	}
	return p, nil
}

// InstallBuiltinProfiles writes the builtin profiles into dir and returns
// the names written, sorted. A profile is matched against the directory by
// the name it declares, not by file name: a name already defined in dir is
// kept unless overwrite is set, in which case the defining file is replaced.
// This keeps dir free of duplicate names, which LoadProfilesFromDirectory
// rejects.
func InstallBuiltinProfiles(dir string, overwrite bool) ([]string, error) {
	files, err := readBuiltins()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profiles directory: %w", err)
	}
	existing, err := profilePaths(dir)
	if err != nil {
		return nil, err
	}

	var installed []string
	for _, f := range files {
		name := f.profile.Name
		dest := filepath.Join(dir, name+".yaml")
		if current, ok := existing[name]; ok {
			if !overwrite {
				continue
			}
			dest = current
		}
		if err := os.WriteFile(dest, f.data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", dest, err)
		}
		installed = append(installed, name)
	}
	sort.Strings(installed)
	return installed, nil
}

// profilePaths maps each profile name defined in dir to its file.
func profilePaths(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles directory: %w", err)
	}
	paths := make(map[string]string)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		p := filepath.Join(dir, entry.Name())
		prof, err := LoadProfileFromFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile from %s: %w", entry.Name(), err)
		}
		paths[prof.Name] = p
	}
	return paths, nil
}
