// Package usage defines the capability tokens a certificate declares for its
// key material.
//
// Usages are a closed set. Decoding is exhaustive: a document carrying an
// unknown tag is an error, never silently ignored.
//
// A SignCertificates usage may carry a maximum path length. This package
// stores the bound and offers PermitsDepth as a predicate; enforcing it while
// validating a trust chain is the responsibility of the chain validator.
package usage

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/remiblancher/evpki/internal/canonical"
)

// TagPrefix is the common prefix of all usage tag URIs.
const TagPrefix = "https://open.charging.cloud/context/certificates/usages/"

// Usage tags.
const (
	TagSignData           = TagPrefix + "signData"
	TagEncryptData        = TagPrefix + "encryptData"
	TagSignCertificates   = TagPrefix + "signCertificates"
	TagRevokeCertificates = TagPrefix + "revokeCertificates"
	TagTLSServer          = TagPrefix + "tlsServer"
	TagTLSClient          = TagPrefix + "tlsClient"
	TagEMailSignature     = TagPrefix + "eMailSignature"
	TagEMailEncryption    = TagPrefix + "eMailEncryption"
)

var (
	// ErrUnknownUsage indicates a usage tag outside the closed set.
	ErrUnknownUsage = errors.New("unknown usage")

	// ErrInvalidPathLength indicates a negative maximum path length.
	ErrInvalidPathLength = errors.New("invalid maximum path length")
)

// Usage is a capability token. The set of implementations is closed.
type Usage interface {
	// Tag returns the fixed tag URI.
	Tag() string

	// Key returns a value identity covering the tag and any parameters.
	Key() string

	// ToJSON renders the usage document.
	ToJSON() canonical.Document

	sealed()
}

type (
	// SignData allows signing arbitrary data.
	SignData struct{}

	// EncryptData allows encrypting data.
	EncryptData struct{}

	// RevokeCertificates allows issuing revocations.
	RevokeCertificates struct{}

	// TLSServer allows TLS server authentication.
	TLSServer struct{}

	// TLSClient allows TLS client authentication.
	TLSClient struct{}

	// EMailSignature allows signing e-mail.
	EMailSignature struct{}

	// EMailEncryption allows encrypting e-mail.
	EMailEncryption struct{}
)

// SignCertificates allows signing subordinate certificates. MaxPathLength,
// when set, bounds how many further issuance hops may follow beneath a
// certificate bearing this usage.
type SignCertificates struct {
	MaxPathLength *int
}

// NewSignCertificates returns a SignCertificates usage bounded to maxPathLength.
func NewSignCertificates(maxPathLength int) (SignCertificates, error) {
	if maxPathLength < 0 {
		return SignCertificates{}, fmt.Errorf("%w: %d", ErrInvalidPathLength, maxPathLength)
	}
	n := maxPathLength
	return SignCertificates{MaxPathLength: &n}, nil
}

func (SignData) Tag() string           { return TagSignData }
func (EncryptData) Tag() string        { return TagEncryptData }
func (SignCertificates) Tag() string   { return TagSignCertificates }
func (RevokeCertificates) Tag() string { return TagRevokeCertificates }
func (TLSServer) Tag() string          { return TagTLSServer }
func (TLSClient) Tag() string          { return TagTLSClient }
func (EMailSignature) Tag() string     { return TagEMailSignature }
func (EMailEncryption) Tag() string    { return TagEMailEncryption }

func (u SignData) Key() string           { return u.Tag() }
func (u EncryptData) Key() string        { return u.Tag() }
func (u RevokeCertificates) Key() string { return u.Tag() }
func (u TLSServer) Key() string          { return u.Tag() }
func (u TLSClient) Key() string          { return u.Tag() }
func (u EMailSignature) Key() string     { return u.Tag() }
func (u EMailEncryption) Key() string    { return u.Tag() }

func (u SignCertificates) Key() string {
	if u.MaxPathLength == nil {
		return u.Tag()
	}
	return u.Tag() + "#" + strconv.Itoa(*u.MaxPathLength)
}

func (u SignData) ToJSON() canonical.Document           { return tagDocument(u) }
func (u EncryptData) ToJSON() canonical.Document        { return tagDocument(u) }
func (u RevokeCertificates) ToJSON() canonical.Document { return tagDocument(u) }
func (u TLSServer) ToJSON() canonical.Document          { return tagDocument(u) }
func (u TLSClient) ToJSON() canonical.Document          { return tagDocument(u) }
func (u EMailSignature) ToJSON() canonical.Document     { return tagDocument(u) }
func (u EMailEncryption) ToJSON() canonical.Document    { return tagDocument(u) }

func (u SignCertificates) ToJSON() canonical.Document {
	doc := tagDocument(u)
	if u.MaxPathLength != nil {
		doc["maxPathLength"] = *u.MaxPathLength
	}
	return doc
}

func (SignData) sealed()           {}
func (EncryptData) sealed()        {}
func (SignCertificates) sealed()   {}
func (RevokeCertificates) sealed() {}
func (TLSServer) sealed()          {}
func (TLSClient) sealed()          {}
func (EMailSignature) sealed()     {}
func (EMailEncryption) sealed()    {}

func tagDocument(u Usage) canonical.Document {
	return canonical.Document{"@id": u.Tag()}
}

// Parse decodes a usage document.
func Parse(doc canonical.Document) (Usage, error) {
	tag, err := doc.String("@id")
	if err != nil {
		return nil, err
	}

	switch tag {
	case TagSignData:
		return SignData{}, nil
	case TagEncryptData:
		return EncryptData{}, nil
	case TagSignCertificates:
		n, err := doc.OptInt("maxPathLength")
		if err != nil {
			return nil, err
		}
		if n == nil {
			return SignCertificates{}, nil
		}
		return NewSignCertificates(*n)
	case TagRevokeCertificates:
		return RevokeCertificates{}, nil
	case TagTLSServer:
		return TLSServer{}, nil
	case TagTLSClient:
		return TLSClient{}, nil
	case TagEMailSignature:
		return EMailSignature{}, nil
	case TagEMailEncryption:
		return EMailEncryption{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownUsage, tag)
	}
}

// ParseAll decodes a list of usage documents.
func ParseAll(docs []canonical.Document) ([]Usage, error) {
	out := make([]Usage, 0, len(docs))
	for i, doc := range docs {
		u, err := Parse(doc)
		if err != nil {
			return nil, fmt.Errorf("usage %d: %w", i, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// Clone returns a copy of u sharing no memory with it.
func Clone(u Usage) Usage {
	if sc, ok := u.(SignCertificates); ok {
		return sc.clone()
	}
	return u
}

// CloneAll returns element-wise clones of usages.
func CloneAll(usages []Usage) []Usage {
	if usages == nil {
		return nil
	}
	out := make([]Usage, len(usages))
	for i, u := range usages {
		out[i] = Clone(u)
	}
	return out
}

func (u SignCertificates) clone() SignCertificates {
	if u.MaxPathLength == nil {
		return u
	}
	n := *u.MaxPathLength
	return SignCertificates{MaxPathLength: &n}
}

// Distinct removes usages equal in tag and parameters, keeping the first
// occurrence. Nil entries are dropped. The result holds clones, so later
// changes to a caller's MaxPathLength do not reach it.
func Distinct(usages []Usage) []Usage {
	out := make([]Usage, 0, len(usages))
	seen := make(map[string]struct{}, len(usages))
	for _, u := range usages {
		if u == nil {
			continue
		}
		k := u.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, Clone(u))
	}
	return out
}

// Equal reports whether a and b are the same usage by value.
func Equal(a, b Usage) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Key() == b.Key()
}

// Contains reports whether usages holds a usage with the given tag.
func Contains(usages []Usage, tag string) bool {
	for _, u := range usages {
		if u != nil && u.Tag() == tag {
			return true
		}
	}
	return false
}

// PermitsDepth reports whether a SignCertificates usage allows issuing a
// certificate depth hops below its holder, where depth 0 is a direct
// subordinate. An unbounded usage permits any depth.
func PermitsDepth(u SignCertificates, depth int) bool {
	if depth < 0 {
		return false
	}
	if u.MaxPathLength == nil {
		return true
	}
	return depth <= *u.MaxPathLength
}

// FromName maps a short usage name, as used in templates and on the command
// line, to a usage. SignCertificates is returned unbounded.
func FromName(name string) (Usage, error) {
	switch name {
	case "signData":
		return SignData{}, nil
	case "encryptData":
		return EncryptData{}, nil
	case "signCertificates":
		return SignCertificates{}, nil
	case "revokeCertificates":
		return RevokeCertificates{}, nil
	case "tlsServer":
		return TLSServer{}, nil
	case "tlsClient":
		return TLSClient{}, nil
	case "eMailSignature":
		return EMailSignature{}, nil
	case "eMailEncryption":
		return EMailEncryption{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownUsage, name)
	}
}
