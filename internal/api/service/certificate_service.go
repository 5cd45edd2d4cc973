package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/remiblancher/evpki/internal/api/dto"
	apierrors "github.com/remiblancher/evpki/internal/api/errors"
	"github.com/remiblancher/evpki/internal/api/metrics"
	"github.com/remiblancher/evpki/internal/audit"
	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/certificate"
	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/profile"
	"github.com/remiblancher/evpki/internal/store"
	"github.com/remiblancher/evpki/internal/trust"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// CertificateService handles certificate operations.
type CertificateService struct {
	store    *store.Store
	anchors  *trust.Store
	profiles *ProfileService
	metrics  *metrics.Metrics
	now      func() time.Time

	// mu serializes read-modify-write cycles on stored certificates.
	mu sync.Mutex
}

// NewCertificateService creates a new CertificateService. anchors and m may
// be nil.
func NewCertificateService(st *store.Store, anchors *trust.Store, profiles *profile.ProfileStore, m *metrics.Metrics) *CertificateService {
	return &CertificateService{
		store:    st,
		anchors:  anchors,
		profiles: NewProfileService(profiles),
		metrics:  m,
		now:      time.Now,
	}
}

// Create builds a certificate from a profile, or imports a complete
// certificate document, and stores it.
func (s *CertificateService) Create(ctx context.Context, req *dto.CertificateCreateRequest) (*certificate.Certificate, error) {
	if len(req.Document) > 0 {
		return s.importDocument(req.Document)
	}

	p, err := s.profiles.lookup(req.Profile)
	if err != nil {
		return nil, err
	}
	if len(req.PublicKeys) == 0 {
		return nil, certificate.ErrNoPublicKeys
	}
	keys := make([]*crypto.ECCPublicKey, 0, len(req.PublicKeys))
	for i := range req.PublicKeys {
		k, err := parsePublicKey(&req.PublicKeys[i])
		if err != nil {
			return nil, fmt.Errorf("public_keys[%d]: %w", i, err)
		}
		keys = append(keys, k)
	}
	notBefore, err := parseInstant(req.NotBefore, s.now())
	if err != nil {
		return nil, err
	}

	owner := certificate.Owner{
		Name:  req.Owner.Name,
		EMail: req.Owner.EMail,
		WWW:   req.Owner.WWW,
	}
	params, err := p.Params(owner, keys, notBefore)
	if err != nil {
		return nil, err
	}
	if req.Description != "" {
		params.Description = req.Description
	}

	cert, err := certificate.New(params)
	if err != nil {
		_ = audit.LogCertCreated("", owner.Name, p.Name, false)
		return nil, err
	}
	if err := cert.Validate(); err != nil {
		_ = audit.LogCertCreated(cert.ID().String(), owner.Name, p.Name, false)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(cert); err != nil {
		return nil, err
	}
	if err := audit.LogCertCreated(cert.ID().String(), owner.Name, p.Name, true); err != nil {
		return nil, err
	}
	s.metrics.CertificateStored("created")
	return cert, nil
}

// importDocument stores a parsed certificate document. Signatures that do
// not verify with their embedded key are rejected.
func (s *CertificateService) importDocument(data []byte) (*certificate.Certificate, error) {
	cert, err := certificate.ParseJSON(data)
	if err != nil {
		return nil, err
	}
	for _, sig := range cert.Signatures() {
		ok, err := certificate.VerifySignature(sig, cert, nil)
		if err != nil && !errors.Is(err, certificate.ErrMissingKey) {
			return nil, err
		}
		if err == nil && !ok {
			return nil, fmt.Errorf("%w: %s", apierrors.ErrSignatureInvalid, sig.ID())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(cert); err != nil {
		return nil, err
	}
	if err := audit.LogCertTransfer(audit.EventCertImported, cert.ID().String(), "", "json", true); err != nil {
		return nil, err
	}
	s.metrics.CertificateStored("imported")
	return cert, nil
}

// Get loads a certificate by identifier.
func (s *CertificateService) Get(ctx context.Context, id string) (*certificate.Certificate, error) {
	certID, err := certificate.ParseCertificateID(id)
	if err != nil {
		return nil, err
	}
	return s.store.Load(certID)
}

// List returns a page of certificate summaries in identifier order.
func (s *CertificateService) List(ctx context.Context, page dto.PaginationRequest) (*dto.CertificateListResponse, error) {
	ids, err := s.store.List()
	if err != nil {
		return nil, err
	}

	limit := page.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(page.Offset, 0)
	start := min(offset, len(ids))
	end := min(start+limit, len(ids))

	now := s.now().UTC()
	resp := &dto.CertificateListResponse{
		Certificates: make([]dto.CertificateSummary, 0, end-start),
		Pagination: dto.PaginationResponse{
			Total:   len(ids),
			Limit:   limit,
			Offset:  offset,
			HasMore: end < len(ids),
		},
	}
	for _, id := range ids[start:end] {
		cert, err := s.store.Load(id)
		if err != nil {
			return nil, err
		}
		resp.Certificates = append(resp.Certificates, summary(cert, now))
	}
	return resp, nil
}

// Delete removes a certificate from the store.
func (s *CertificateService) Delete(ctx context.Context, id string) error {
	certID, err := certificate.ParseCertificateID(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(certID); err != nil {
		return err
	}
	return audit.MustLog(audit.NewEvent(audit.EventCertDeleted, audit.ResultSuccess).
		WithObject(audit.Object{Type: "certificate", ID: id}))
}

// AttachSignature parses a signature document, checks it against the
// stored certificate and appends it. Only signatures carrying a public key
// that verifies are accepted.
func (s *CertificateService) AttachSignature(ctx context.Context, id string, body []byte) (*dto.SignatureAttachResponse, error) {
	certID, err := certificate.ParseCertificateID(id)
	if err != nil {
		return nil, err
	}
	doc, err := canonical.ParseJSON(body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cert, err := s.store.Load(certID)
	if err != nil {
		return nil, err
	}
	sig, err := certificate.ParseSignature(doc, cert)
	if err != nil {
		return nil, err
	}

	ok, err := certificate.VerifySignature(sig, cert, nil)
	if err != nil {
		s.rejectSignature(cert, sig, err.Error())
		return nil, err
	}
	if !ok {
		s.rejectSignature(cert, sig, "signature does not verify")
		return nil, fmt.Errorf("%w: %s", apierrors.ErrSignatureInvalid, sig.ID())
	}

	cert.AddSignature(sig)
	if err := s.store.Save(cert); err != nil {
		return nil, err
	}
	if err := audit.LogSignatureAttached(id, sig.ID().String(), sig.Name(), true, ""); err != nil {
		return nil, err
	}
	s.metrics.SignatureAttached(true)

	return &dto.SignatureAttachResponse{
		CertificateID: id,
		SignatureID:   sig.ID().String(),
		Signatures:    len(cert.Signatures()),
	}, nil
}

func (s *CertificateService) rejectSignature(cert *certificate.Certificate, sig *certificate.Signature, reason string) {
	s.metrics.SignatureAttached(false)
	_ = audit.LogSignatureAttached(cert.ID().String(), sig.ID().String(), sig.Name(), false, reason)
}

// Verify checks the signatures of a stored certificate. With a protocol,
// each signature is tried against the anchors serving that protocol at the
// evaluation time. Otherwise signatures verify with their embedded key or
// the supplied one; a signature without any key is reported as a problem.
func (s *CertificateService) Verify(ctx context.Context, id string, req *dto.CertificateVerifyRequest) (*dto.CertificateVerifyResponse, error) {
	cert, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	at, err := parseInstant(req.At, s.now())
	if err != nil {
		return nil, err
	}
	pub, err := parsePublicKey(req.PublicKey)
	if err != nil {
		return nil, err
	}

	resp := &dto.CertificateVerifyResponse{
		CertificateID: id,
		Signatures:    []string{},
		InWindow:      cert.IsValidAt(at),
	}
	if len(cert.Signatures()) == 0 {
		resp.Problems = append(resp.Problems, "certificate carries no signatures")
	}

	if req.Protocol != "" {
		if err := s.verifyWithAnchors(cert, req.Protocol, at, resp); err != nil {
			return nil, err
		}
		resp.Valid = len(resp.Anchors) > 0
	} else {
		for _, sig := range cert.Signatures() {
			ok, err := certificate.VerifySignature(sig, cert, pub)
			switch {
			case errors.Is(err, certificate.ErrMissingKey):
				resp.Problems = append(resp.Problems, fmt.Sprintf("signature %s: no public key", sig.ID()))
			case err != nil:
				return nil, err
			case ok:
				resp.Signatures = append(resp.Signatures, sig.ID().String())
			default:
				resp.Problems = append(resp.Problems, fmt.Sprintf("signature %s: does not verify", sig.ID()))
			}
		}
		resp.Valid = len(resp.Signatures) > 0
	}

	if !resp.InWindow {
		resp.Problems = append(resp.Problems, "evaluation time is outside the certificate validity window")
	}

	reason := ""
	if len(resp.Problems) > 0 {
		reason = resp.Problems[0]
	}
	count := len(resp.Signatures)
	if !resp.Valid {
		count = 0
	}
	if err := audit.LogVerification(id, count, reason); err != nil {
		return nil, err
	}
	s.metrics.Verified(resp.Valid)
	return resp, nil
}

func (s *CertificateService) verifyWithAnchors(cert *certificate.Certificate, protocol string, at time.Time, resp *dto.CertificateVerifyResponse) error {
	version, err := trust.ParseProtocolVersion(protocol)
	if err != nil {
		return err
	}
	var anchors []*trust.Anchor
	if s.anchors != nil {
		anchors = s.anchors.For(version, at)
	}
	if len(anchors) == 0 {
		resp.Problems = append(resp.Problems, fmt.Sprintf("no trust anchor serves %s at %s", version, canonical.FormatTime(at)))
		return nil
	}

	seen := make(map[string]bool)
	for _, sig := range cert.Signatures() {
		if !sig.IsValidAt(at) {
			resp.Problems = append(resp.Problems, fmt.Sprintf("signature %s: outside its validity window", sig.ID()))
			continue
		}
		for _, a := range anchors {
			ok, err := certificate.VerifySignature(sig, cert, a.PublicKey)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			resp.Signatures = append(resp.Signatures, sig.ID().String())
			if !seen[a.Name] {
				seen[a.Name] = true
				resp.Anchors = append(resp.Anchors, a.Name)
			}
			break
		}
	}
	return nil
}

// Identify computes the identifier of a certificate document and compares
// it with the @id the document claims.
func (s *CertificateService) Identify(ctx context.Context, body []byte) (*dto.IdentifyResponse, error) {
	doc, err := canonical.ParseJSON(body)
	if err != nil {
		return nil, err
	}
	claimed, err := doc.OptString("@id")
	if err != nil {
		return nil, err
	}
	cert, err := certificate.Parse(canonical.Without(doc, "@id"))
	if err != nil {
		return nil, err
	}
	id := cert.ID().String()
	return &dto.IdentifyResponse{
		ID:      id,
		Claimed: claimed,
		Matches: claimed == "" || claimed == id,
	}, nil
}

// Document renders a certificate as its canonical JSON document.
func Document(cert *certificate.Certificate) (*dto.CertificateResponse, error) {
	data, err := cert.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return &dto.CertificateResponse{
		ID:       cert.ID().String(),
		Document: json.RawMessage(data),
	}, nil
}

func summary(cert *certificate.Certificate, now time.Time) dto.CertificateSummary {
	status := "valid"
	if !cert.IsValidAt(now) {
		status = "expired"
	}
	sum := dto.CertificateSummary{
		ID:    cert.ID().String(),
		Owner: cert.Owner().Name,
		Validity: dto.ValidityInfo{
			NotBefore: canonical.FormatTime(cert.NotBefore()),
			NotAfter:  canonical.FormatTime(cert.NotAfter()),
		},
		Status:     status,
		Signatures: len(cert.Signatures()),
	}
	for _, u := range cert.Usages() {
		sum.Usages = append(sum.Usages, u.Tag())
	}
	return sum
}
