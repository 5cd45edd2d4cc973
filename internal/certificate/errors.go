package certificate

import (
	"errors"
	"fmt"
)

// Error represents a certificate or signature operation error with structured
// context. It supports errors.Is() and errors.As().
type Error struct {
	Op  string // Operation: "new", "parse", "sign", "verify", "validate"
	ID  string // Certificate or signature identifier (if known)
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("certificate %s [%s]: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("certificate %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Err }

func newError(op, id string, err error) *Error {
	return &Error{Op: op, ID: id, Err: err}
}

// Sentinel errors. Use errors.Is() to check for these through the chain.
var (
	// ErrMissingKey indicates neither the signature nor the caller supplied
	// a public key for verification.
	ErrMissingKey = errors.New("no public key available for verification")

	// ErrNoSignedCertificate indicates a signature is not bound to a certificate.
	ErrNoSignedCertificate = errors.New("signature is not bound to a certificate")

	// ErrNoPublicKeys indicates a certificate without key material.
	ErrNoPublicKeys = errors.New("certificate requires at least one public key")

	// ErrMissingOwner indicates a certificate without an owner name.
	ErrMissingOwner = errors.New("certificate owner name is required")

	// ErrMissingSigner indicates a signature without a signer name.
	ErrMissingSigner = errors.New("signer name is required")

	// ErrIdentifierMismatch indicates a document whose @id does not match its content.
	ErrIdentifierMismatch = errors.New("identifier does not match content")

	// ErrKeyMismatch indicates the embedded public key does not belong to the signing key.
	ErrKeyMismatch = errors.New("public key does not match private key")

	// ErrInvalidValidity indicates NotBefore is after NotAfter.
	ErrInvalidValidity = errors.New("notBefore is after notAfter")

	// ErrInvalidURL indicates an unusable policy, distribution point or contact URL.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrInvalidEMail indicates an unusable contact address.
	ErrInvalidEMail = errors.New("invalid e-mail address")

	// ErrUnknownEdgeType indicates a trust-graph edge outside the known types.
	ErrUnknownEdgeType = errors.New("unknown edge type")
)
