// Package service implements the token, role-resolution, and audit-signing
// services used by the authorize protocol.
package service

import (
	"github.com/allisson/authgate/internal/authz/domain"
)

// TokenCodec encodes and decodes capability tokens in their compact signed
// wire format.
type TokenCodec interface {
	// DecodeUnverified parses the token payload WITHOUT verifying its
	// signature. It exists solely to learn the claimed issuer before the
	// issuer's keys are known; nothing it returns may be trusted until
	// Verify succeeds.
	DecodeUnverified(token string) (*domain.Claims, error)

	// Verify checks the token signature against each key in order, accepting
	// the HMAC SHA-256 and SHA-384 variants. It returns ErrTokenExpired for a
	// well-signed but expired token and ErrSignatureMismatch when no key
	// verifies.
	Verify(token string, keys [][]byte) error

	// Sign serializes the claims into a compact token signed with HMAC-SHA256.
	Sign(claims *domain.Claims, key []byte) (string, error)
}

// RoleResolver decides whether a subject reaches a resource prefix at a
// minimum role, via the admin-gated transitive closure over role grants.
type RoleResolver interface {
	Reachable(grants []domain.RoleGrant, subject string, minRole domain.Role, resource string) bool
}

// AuditSigner signs and verifies authorization audit events so downstream
// collectors can detect tampering.
type AuditSigner interface {
	Sign(key []byte, event *domain.AuditEvent) ([]byte, error)
	Verify(key []byte, event *domain.AuditEvent) error
}
