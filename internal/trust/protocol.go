package trust

import (
	"fmt"
	"strings"
)

// ProtocolVersion names a charging communication protocol revision that a
// trust anchor is provisioned for.
type ProtocolVersion string

// Known protocol versions.
const (
	ISO15118_2  ProtocolVersion = "ISO 15118-2"
	ISO15118_20 ProtocolVersion = "ISO 15118-20"
)

// KnownProtocolVersions returns the supported protocol versions.
func KnownProtocolVersions() []ProtocolVersion {
	return []ProtocolVersion{ISO15118_2, ISO15118_20}
}

// ParseProtocolVersion parses a protocol version case-insensitively.
// "iso15118-20" and "ISO 15118-20" are the same version.
func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	key := normalizeVersion(s)
	for _, v := range KnownProtocolVersions() {
		if normalizeVersion(string(v)) == key {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
}

// String returns the canonical spelling.
func (v ProtocolVersion) String() string {
	return string(v)
}

// Equal reports whether both versions are the same, ignoring case and spacing.
func (v ProtocolVersion) Equal(other ProtocolVersion) bool {
	return normalizeVersion(string(v)) == normalizeVersion(string(other))
}

// Compare orders versions case-insensitively.
func (v ProtocolVersion) Compare(other ProtocolVersion) int {
	return strings.Compare(normalizeVersion(string(v)), normalizeVersion(string(other)))
}

func normalizeVersion(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}
