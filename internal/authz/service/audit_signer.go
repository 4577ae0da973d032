package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/allisson/authgate/internal/authz/domain"
	apperrors "github.com/allisson/authgate/internal/errors"
)

// ErrAuditSignatureInvalid indicates an audit event signature does not match
// its content.
var ErrAuditSignatureInvalid = apperrors.New("audit event signature is invalid")

type auditSigner struct{}

// NewAuditSigner creates a new HMAC-based audit event signer using
// HKDF-SHA256 for key derivation and HMAC-SHA256 for signature generation.
func NewAuditSigner() AuditSigner {
	return &auditSigner{}
}

// deriveSigningKey uses HKDF-SHA256 to derive a 32-byte signing key from the
// serving data plane's signing key, separating token-signing key usage from
// audit-signing key usage. Info is versioned for future algorithm changes.
func (a *auditSigner) deriveSigningKey(key []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, key, nil, []byte("authz-audit-signing-v1"))

	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(reader, signingKey); err != nil {
		return nil, err
	}
	return signingKey, nil
}

// canonicalize converts an audit event to its canonical byte representation.
// Variable-length fields are length-prefixed to prevent ambiguity.
func (a *auditSigner) canonicalize(event *domain.AuditEvent) []byte {
	buf := make([]byte, 0, 256)

	buf = append(buf, event.ID[:]...)
	buf = appendLengthPrefixed(buf, []byte(event.Shard))
	buf = appendLengthPrefixed(buf, []byte(event.Resource))
	buf = appendLengthPrefixed(buf, []byte(event.Role))
	buf = appendLengthPrefixed(buf, []byte(event.Outcome))
	buf = appendLengthPrefixed(buf, []byte(event.Reason))

	timeBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(timeBytes, uint64(event.CreatedAt.UnixNano()))
	buf = append(buf, timeBytes...)

	return buf
}

// appendLengthPrefixed adds a 4-byte big-endian length prefix followed by data.
func appendLengthPrefixed(buf []byte, data []byte) []byte {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))
	buf = append(buf, length...)
	buf = append(buf, data...)
	return buf
}

// Sign generates the HMAC-SHA256 signature for the audit event.
func (a *auditSigner) Sign(key []byte, event *domain.AuditEvent) ([]byte, error) {
	signingKey, err := a.deriveSigningKey(key)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to derive audit signing key")
	}

	mac := hmac.New(sha256.New, signingKey)
	mac.Write(a.canonicalize(event))
	return mac.Sum(nil), nil
}

// Verify checks the audit event signature against its content.
func (a *auditSigner) Verify(key []byte, event *domain.AuditEvent) error {
	expected, err := a.Sign(key, event)
	if err != nil {
		return err
	}
	if !hmac.Equal(expected, event.Signature) {
		return ErrAuditSignatureInvalid
	}
	return nil
}
