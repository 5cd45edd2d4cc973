// Package certificate implements the content-addressed EV charging
// certificate and its ECDSA signatures.
//
// A certificate's identifier is the SHA-256 of its canonical JSON form
// without the "@id" and "signatures" fields. It is computed once by New and
// never changes, however many signatures are appended later.
//
// Signing canonicalizes the certificate without "signatures" but with the
// fixed "@id", hashes the result with SHA-512 and signs the 64-byte digest
// with raw ECDSA. Each signature derives its own identifier from its
// canonical form without "@id".
//
// Concurrency: a Certificate has a single writer while it is being signed.
// Sign and AddSignature append to the signature list without locking. Call
// Snapshot to obtain an immutable copy that may be shared between goroutines.
package certificate

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/usage"
)

// ContextCertificate is the default JSON-LD context of a certificate document.
const ContextCertificate = "https://open.charging.cloud/context/evCertificate"

// Certificate binds key material, usages, a validity window and an owner to
// a content-addressed identifier, and collects signatures over them.
type Certificate struct {
	id                           CertificateID
	context                      string
	description                  string
	publicKeys                   []*crypto.ECCPublicKey
	usages                       []usage.Usage
	notBefore                    time.Time
	notAfter                     time.Time
	owner                        Owner
	policy                       string
	distributionPoints           []string
	revocationDistributionPoints []string
	deltaDistributionPoints      []string
	edges                        []Edge

	// signatures is append-only and owned by this certificate.
	signatures []*Signature
}

// Params describes a certificate to construct.
type Params struct {
	Description                  string
	PublicKeys                   []*crypto.ECCPublicKey
	Usages                       []usage.Usage
	NotBefore                    time.Time
	NotAfter                     time.Time
	Owner                        Owner
	Signatures                   []*Signature
	Policy                       string
	DistributionPoints           []string
	RevocationDistributionPoints []string
	DeltaDistributionPoints      []string
	Edges                        []Edge
	Context                      string // ContextCertificate when empty
}

// New builds a certificate and fixes its identifier. Collections are
// deduplicated in encounter order; usages compare by value. Signatures in
// p are attached after the identifier is fixed, under the AddSignature
// rules: keyless ones are dropped and duplicates are skipped.
//
// New does not check NotBefore <= NotAfter; see Validate.
func New(p Params) (*Certificate, error) {
	keys := crypto.DistinctKeys(p.PublicKeys)
	if len(keys) == 0 {
		return nil, newError("new", "", ErrNoPublicKeys)
	}
	if p.Owner.isZero() {
		return nil, newError("new", "", ErrMissingOwner)
	}

	ctx := p.Context
	if ctx == "" {
		ctx = ContextCertificate
	}

	c := &Certificate{
		context:                      ctx,
		description:                  p.Description,
		publicKeys:                   keys,
		usages:                       usage.Distinct(p.Usages),
		notBefore:                    canonical.Truncate(p.NotBefore),
		notAfter:                     canonical.Truncate(p.NotAfter),
		owner:                        p.Owner,
		policy:                       p.Policy,
		distributionPoints:           distinctStrings(p.DistributionPoints),
		revocationDistributionPoints: distinctStrings(p.RevocationDistributionPoints),
		deltaDistributionPoints:      distinctStrings(p.DeltaDistributionPoints),
		edges:                        distinctEdges(p.Edges),
	}

	id, err := canonical.Identifier(c.ToJSON(false), "@id", "signatures")
	if err != nil {
		return nil, newError("new", "", err)
	}
	c.id = CertificateID(id)

	for _, sig := range p.Signatures {
		c.AddSignature(sig)
	}
	return c, nil
}

// ID returns the content-addressed identifier.
func (c *Certificate) ID() CertificateID { return c.id }

// Context returns the schema context tag.
func (c *Certificate) Context() string { return c.context }

// Description returns the description text.
func (c *Certificate) Description() string { return c.description }

// PublicKeys returns the key material.
func (c *Certificate) PublicKeys() []*crypto.ECCPublicKey {
	return append([]*crypto.ECCPublicKey(nil), c.publicKeys...)
}

// Usages returns copies of the declared usages.
func (c *Certificate) Usages() []usage.Usage {
	return usage.CloneAll(c.usages)
}

// NotBefore returns the inclusive start of the validity window.
func (c *Certificate) NotBefore() time.Time { return c.notBefore }

// NotAfter returns the exclusive end of the validity window.
func (c *Certificate) NotAfter() time.Time { return c.notAfter }

// Owner returns the owner record.
func (c *Certificate) Owner() Owner { return c.owner }

// Policy returns the policy URL.
func (c *Certificate) Policy() string { return c.policy }

// DistributionPoints returns the distribution point URLs.
func (c *Certificate) DistributionPoints() []string {
	return append([]string(nil), c.distributionPoints...)
}

// RevocationDistributionPoints returns the revocation list URLs.
func (c *Certificate) RevocationDistributionPoints() []string {
	return append([]string(nil), c.revocationDistributionPoints...)
}

// DeltaDistributionPoints returns the delta revocation list URLs.
func (c *Certificate) DeltaDistributionPoints() []string {
	return append([]string(nil), c.deltaDistributionPoints...)
}

// Edges returns the trust-graph edges.
func (c *Certificate) Edges() []Edge {
	return append([]Edge(nil), c.edges...)
}

// Signatures returns a copy of the signature list in append order.
func (c *Certificate) Signatures() []*Signature {
	return append([]*Signature(nil), c.signatures...)
}

// Signature returns the signature with the given identifier.
func (c *Certificate) Signature(id SignatureID) (*Signature, bool) {
	for _, sig := range c.signatures {
		if sig.id == id {
			return sig, true
		}
	}
	return nil, false
}

// HasUsage reports whether the certificate declares a usage with tag.
func (c *Certificate) HasUsage(tag string) bool {
	return usage.Contains(c.usages, tag)
}

// SignCertificatesUsage returns the SignCertificates usage, if declared.
func (c *Certificate) SignCertificatesUsage() (usage.SignCertificates, bool) {
	for _, u := range c.usages {
		if sc, ok := u.(usage.SignCertificates); ok {
			return usage.Clone(sc).(usage.SignCertificates), true
		}
	}
	return usage.SignCertificates{}, false
}

// IsValidAt reports whether t falls into [NotBefore, NotAfter).
func (c *Certificate) IsValidAt(t time.Time) bool {
	return !t.Before(c.notBefore) && t.Before(c.notAfter)
}

// Sign signs the certificate with priv and appends the signature. It returns
// the certificate itself; the identifier is unchanged.
//
// Sign does not check that the signer holds a SignCertificates usage.
func (c *Certificate) Sign(priv *ecdsa.PrivateKey, opts SignOptions) (*Certificate, error) {
	sig, err := Sign(c, priv, opts)
	if err != nil {
		return nil, err
	}
	c.signatures = append(c.signatures, sig)
	return c, nil
}

// AddSignature appends a pre-built signature. Signatures without an
// embedded public key are dropped and false is returned. The appended
// signature references this certificate.
func (c *Certificate) AddSignature(sig *Signature) bool {
	if sig == nil || sig.publicKey == nil {
		return false
	}
	if _, dup := c.Signature(sig.id); dup {
		return true
	}
	c.signatures = append(c.signatures, sig.bind(c))
	return true
}

// Verify checks every signature, using each signature's embedded key or pub.
// It returns the identifiers of the signatures that verified.
func (c *Certificate) Verify(pub *crypto.ECCPublicKey) ([]SignatureID, error) {
	var valid []SignatureID
	for _, sig := range c.signatures {
		ok, err := VerifySignature(sig, c, pub)
		if err != nil {
			return nil, err
		}
		if ok {
			valid = append(valid, sig.id)
		}
	}
	return valid, nil
}

// Snapshot returns an independent copy that is safe for concurrent reads.
func (c *Certificate) Snapshot() *Certificate {
	cp := *c
	cp.publicKeys = c.PublicKeys()
	cp.usages = c.Usages()
	cp.distributionPoints = c.DistributionPoints()
	cp.revocationDistributionPoints = c.RevocationDistributionPoints()
	cp.deltaDistributionPoints = c.DeltaDistributionPoints()
	cp.edges = c.Edges()
	cp.signatures = make([]*Signature, len(c.signatures))
	for i, sig := range c.signatures {
		cp.signatures[i] = sig.bind(&cp)
	}
	return &cp
}

// ToJSON renders the certificate. Embedded documents omit the JSON-LD
// context. Keys and signatures are always rendered embedded.
func (c *Certificate) ToJSON(embedded bool) canonical.Document {
	keys := make([]canonical.Document, len(c.publicKeys))
	for i, k := range c.publicKeys {
		keys[i] = k.ToJSON(crypto.DefaultEncoding, true)
	}

	doc := canonical.Document{
		"@id":        c.id.String(),
		"publicKeys": keys,
		"notBefore":  canonical.FormatTime(c.notBefore),
		"notAfter":   canonical.FormatTime(c.notAfter),
		"owner":      c.owner.ToJSON(),
	}
	if !embedded {
		doc["@context"] = c.context
	}
	if c.description != "" {
		doc["description"] = c.description
	}
	if len(c.usages) > 0 {
		usages := make([]canonical.Document, len(c.usages))
		for i, u := range c.usages {
			usages[i] = u.ToJSON()
		}
		doc["usages"] = usages
	}
	if c.policy != "" {
		doc["policy"] = c.policy
	}
	if len(c.distributionPoints) > 0 {
		doc["distributionPoints"] = c.DistributionPoints()
	}
	if len(c.revocationDistributionPoints) > 0 {
		doc["revocationDistributionPoints"] = c.RevocationDistributionPoints()
	}
	if len(c.deltaDistributionPoints) > 0 {
		doc["deltaDistributionPoints"] = c.DeltaDistributionPoints()
	}
	if len(c.edges) > 0 {
		edges := make([]canonical.Document, len(c.edges))
		for i, e := range c.edges {
			edges[i] = e.ToJSON()
		}
		doc["edges"] = edges
	}
	if len(c.signatures) > 0 {
		sigs := make([]canonical.Document, len(c.signatures))
		for i, sig := range c.signatures {
			sigs[i] = sig.ToJSON(true, "")
		}
		doc["signatures"] = sigs
	}
	return doc
}

// MarshalJSON renders the canonical, non-embedded document.
func (c *Certificate) MarshalJSON() ([]byte, error) {
	return canonical.Marshal(c.ToJSON(false))
}

// signingDigest is the SHA-512 of the canonical document without signatures.
func (c *Certificate) signingDigest() ([]byte, error) {
	return canonical.Digest(c.ToJSON(false), "signatures")
}

// ParseJSON decodes a certificate from JSON. See Parse.
func ParseJSON(data []byte) (*Certificate, error) {
	doc, err := canonical.ParseJSON(data)
	if err != nil {
		return nil, newError("parse", "", err)
	}
	return Parse(doc)
}

// Parse decodes a certificate document. The identifier is recomputed from
// the content; a document whose @id disagrees is rejected, as is any
// signature whose @id disagrees with its content.
func Parse(doc canonical.Document) (*Certificate, error) {
	p, err := parseParams(doc)
	if err != nil {
		return nil, newError("parse", "", err)
	}
	c, err := New(p)
	if err != nil {
		return nil, err
	}

	if claimed, err := doc.OptString("@id"); err != nil {
		return nil, newError("parse", "", err)
	} else if claimed != "" && claimed != c.id.String() {
		return nil, newError("parse", claimed, fmt.Errorf("%w: content hashes to %s", ErrIdentifierMismatch, c.id))
	}

	sigDocs, err := doc.Objects("signatures")
	if err != nil {
		return nil, newError("parse", c.id.String(), err)
	}
	for i, sd := range sigDocs {
		sig, err := parseSignature(sd, c)
		if err != nil {
			return nil, newError("parse", c.id.String(), fmt.Errorf("signature %d: %w", i, err))
		}
		if _, dup := c.Signature(sig.id); dup {
			continue
		}
		c.signatures = append(c.signatures, sig)
	}
	return c, nil
}

func parseParams(doc canonical.Document) (Params, error) {
	var (
		p   Params
		err error
	)
	if p.Context, err = doc.OptString("@context"); err != nil {
		return p, err
	}
	if p.Description, err = doc.OptString("description"); err != nil {
		return p, err
	}

	keyDocs, err := doc.Objects("publicKeys")
	if err != nil {
		return p, err
	}
	for i, kd := range keyDocs {
		k, err := crypto.ParseECCPublicKey(kd)
		if err != nil {
			return p, fmt.Errorf("publicKeys[%d]: %w", i, err)
		}
		p.PublicKeys = append(p.PublicKeys, k)
	}

	usageDocs, err := doc.Objects("usages")
	if err != nil {
		return p, err
	}
	if p.Usages, err = usage.ParseAll(usageDocs); err != nil {
		return p, err
	}

	if p.NotBefore, err = doc.Time("notBefore"); err != nil {
		return p, err
	}
	if p.NotAfter, err = doc.Time("notAfter"); err != nil {
		return p, err
	}

	ownerDoc, err := doc.Object("owner")
	if err != nil {
		return p, err
	}
	if p.Owner, err = ParseOwner(ownerDoc); err != nil {
		return p, err
	}

	if p.Policy, err = doc.OptString("policy"); err != nil {
		return p, err
	}
	if p.DistributionPoints, err = doc.Strings("distributionPoints"); err != nil {
		return p, err
	}
	if p.RevocationDistributionPoints, err = doc.Strings("revocationDistributionPoints"); err != nil {
		return p, err
	}
	if p.DeltaDistributionPoints, err = doc.Strings("deltaDistributionPoints"); err != nil {
		return p, err
	}

	edgeDocs, err := doc.Objects("edges")
	if err != nil {
		return p, err
	}
	for i, ed := range edgeDocs {
		e, err := ParseEdge(ed)
		if err != nil {
			return p, fmt.Errorf("edges[%d]: %w", i, err)
		}
		p.Edges = append(p.Edges, e)
	}
	return p, nil
}
