package service

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/allisson/authgate/internal/authz/domain"
	apperrors "github.com/allisson/authgate/internal/errors"
)

// acceptedMethods are the signature algorithms accepted on inbound tokens.
// Outbound tokens always use HS256.
var acceptedMethods = []string{"HS256", "HS384"}

// tokenCodec implements TokenCodec with JWT compact serialization.
type tokenCodec struct{}

// NewTokenCodec creates a new JWT-based token codec.
func NewTokenCodec() TokenCodec {
	return &tokenCodec{}
}

// DecodeUnverified parses the claims without signature validation. The
// claimed issuer must be read before the verifying keys can be chosen, so
// this pass trusts nothing.
func (t *tokenCodec) DecodeUnverified(token string) (*domain.Claims, error) {
	var claims domain.Claims

	parser := jwt.NewParser(jwt.WithValidMethods(acceptedMethods))
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, apperrors.Wrap(domain.ErrInvalidClaims, err.Error())
	}
	return &claims, nil
}

// Verify tries each registered key of the claimed issuer against the token
// signature. Expiry is checked here as well: a well-signed but expired token
// fails with ErrTokenExpired rather than ErrSignatureMismatch.
func (t *tokenCodec) Verify(token string, keys [][]byte) error {
	for _, key := range keys {
		key := key
		_, err := jwt.ParseWithClaims(token, &domain.Claims{}, func(*jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods(acceptedMethods))

		if err == nil {
			return nil
		}
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			// The signature verified under this key; the token is simply stale.
			return apperrors.Wrap(domain.ErrTokenExpired, err.Error())
		}
	}
	return apperrors.Wrap(domain.ErrSignatureMismatch,
		"no registered key verified the token signature")
}

// Sign serializes and signs the claims with HMAC-SHA256.
func (t *tokenCodec) Sign(claims *domain.Claims, key []byte) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to sign claims")
	}
	return token, nil
}
