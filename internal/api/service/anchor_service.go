package service

import (
	"context"
	"time"

	"github.com/remiblancher/evpki/internal/api/dto"
	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/trust"
)

// AnchorService exposes the configured trust anchors.
type AnchorService struct {
	anchors *trust.Store
	now     func() time.Time
}

// NewAnchorService creates a new AnchorService. A nil store lists nothing.
func NewAnchorService(anchors *trust.Store) *AnchorService {
	return &AnchorService{anchors: anchors, now: time.Now}
}

// List returns the anchors, optionally restricted to those serving protocol
// at the current time.
func (s *AnchorService) List(ctx context.Context, protocol string) (*dto.AnchorListResponse, error) {
	resp := &dto.AnchorListResponse{Anchors: []dto.AnchorInfo{}}
	if s.anchors == nil {
		return resp, nil
	}

	now := s.now().UTC()
	list := s.anchors.All()
	if protocol != "" {
		version, err := trust.ParseProtocolVersion(protocol)
		if err != nil {
			return nil, err
		}
		list = s.anchors.For(version, now)
	}

	for _, a := range list {
		resp.Anchors = append(resp.Anchors, anchorInfo(a, now))
	}
	return resp, nil
}

func anchorInfo(a *trust.Anchor, now time.Time) dto.AnchorInfo {
	info := dto.AnchorInfo{
		Name:      a.Name,
		PublicKey: publicKeyInfo(a.PublicKey),
		NotBefore: canonical.FormatTime(a.NotBefore),
		Comment:   a.Comment,
		Active:    a.IsValidAt(now),
	}
	if !a.NotAfter.IsZero() {
		info.NotAfter = canonical.FormatTime(a.NotAfter)
	}
	for _, p := range a.Protocols {
		info.Protocols = append(info.Protocols, p.String())
	}
	return info
}
