package service

import (
	"context"
	"fmt"

	"github.com/remiblancher/evpki/internal/api/dto"
	apierrors "github.com/remiblancher/evpki/internal/api/errors"
	"github.com/remiblancher/evpki/internal/profile"
	"github.com/remiblancher/evpki/internal/usage"
)

// ProfileService exposes the certificate profile catalogue.
type ProfileService struct {
	profiles *profile.ProfileStore
}

// NewProfileService creates a new ProfileService over a loaded store.
func NewProfileService(profiles *profile.ProfileStore) *ProfileService {
	return &ProfileService{profiles: profiles}
}

// List returns all profiles sorted by name.
func (s *ProfileService) List(ctx context.Context) (*dto.ProfileListResponse, error) {
	names := s.profiles.List()
	resp := &dto.ProfileListResponse{Profiles: make([]dto.ProfileInfo, 0, len(names))}
	for _, name := range names {
		p, ok := s.profiles.Get(name)
		if !ok {
			continue
		}
		resp.Profiles = append(resp.Profiles, profileInfo(p))
	}
	return resp, nil
}

// Get returns a single profile.
func (s *ProfileService) Get(ctx context.Context, name string) (*dto.ProfileInfo, error) {
	p, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	info := profileInfo(p)
	return &info, nil
}

func (s *ProfileService) lookup(name string) (*profile.Profile, error) {
	p, ok := s.profiles.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apierrors.ErrProfileNotFound, name)
	}
	return p, nil
}

func profileInfo(p *profile.Profile) dto.ProfileInfo {
	info := dto.ProfileInfo{
		Name:        p.Name,
		Description: p.Description,
		Curve:       string(p.Curve),
		Validity:    p.Validity.String(),
		IsIssuer:    p.IsIssuer(),
		Policy:      p.Policy,
	}
	for _, u := range p.Usages {
		info.Usages = append(info.Usages, u.Tag())
		if sc, ok := u.(usage.SignCertificates); ok && sc.MaxPathLength != nil {
			n := *sc.MaxPathLength
			info.MaxPathLength = &n
		}
	}
	return info
}
