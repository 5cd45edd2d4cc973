package certificate

import (
	"fmt"

	"github.com/remiblancher/evpki/internal/canonical"
)

// EdgeType is the kind of a trust-graph link between certificates.
type EdgeType string

// Edge types.
const (
	EdgeTrusts      EdgeType = "trusts"
	EdgeDistrusts   EdgeType = "distrusts"
	EdgeCrossSigned EdgeType = "crossSigned"
)

// ParseEdgeType parses an edge type tag.
func ParseEdgeType(s string) (EdgeType, error) {
	switch t := EdgeType(s); t {
	case EdgeTrusts, EdgeDistrusts, EdgeCrossSigned:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownEdgeType, s)
	}
}

// Edge links a certificate to another certificate by identifier.
type Edge struct {
	Type   EdgeType
	Target CertificateID
}

// ToJSON renders the edge.
func (e Edge) ToJSON() canonical.Document {
	return canonical.Document{
		"type":   string(e.Type),
		"target": e.Target.String(),
	}
}

// ParseEdge decodes an edge document.
func ParseEdge(doc canonical.Document) (Edge, error) {
	typ, err := doc.String("type")
	if err != nil {
		return Edge{}, err
	}
	t, err := ParseEdgeType(typ)
	if err != nil {
		return Edge{}, err
	}
	target, err := doc.String("target")
	if err != nil {
		return Edge{}, err
	}
	id, err := ParseCertificateID(target)
	if err != nil {
		return Edge{}, err
	}
	return Edge{Type: t, Target: id}, nil
}

func distinctEdges(edges []Edge) []Edge {
	out := make([]Edge, 0, len(edges))
	seen := make(map[Edge]struct{}, len(edges))
	for _, e := range edges {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

func distinctStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, s := range items {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
