package canonical

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
)

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA512 returns the 64-byte SHA-512 digest of data.
func SHA512(data []byte) []byte {
	sum := sha512.Sum512(data)
	return sum[:]
}

// Identifier canonicalizes doc without the excluded keys and returns the
// lowercase hex SHA-256 digest of the result.
func Identifier(doc Document, exclude ...string) (string, error) {
	data, err := Marshal(Without(doc, exclude...))
	if err != nil {
		return "", err
	}
	return SHA256Hex(data), nil
}

// Digest canonicalizes doc without the excluded keys and returns the SHA-512
// digest that is handed to a signer.
func Digest(doc Document, exclude ...string) ([]byte, error) {
	data, err := Marshal(Without(doc, exclude...))
	if err != nil {
		return nil, err
	}
	return SHA512(data), nil
}
