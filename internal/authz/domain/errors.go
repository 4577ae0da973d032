package domain

import (
	apperrors "github.com/allisson/authgate/internal/errors"
)

// Typed authorization errors. Every failure exit of the authorize protocol
// carries exactly one of these sentinels; the HTTP boundary maps them to
// response statuses. None of them is ever swallowed, and a store failure is
// always a denial, never an implicit grant.
var (
	// ErrInvalidClaims indicates the token payload or its selector could not
	// be parsed or failed validation.
	ErrInvalidClaims = apperrors.New("invalid claims")

	// ErrUnknownIssuer indicates the claimed issuer is not in the key registry.
	ErrUnknownIssuer = apperrors.New("unknown issuer")

	// ErrSignatureMismatch indicates no registered key of the claimed issuer
	// verified the token signature.
	ErrSignatureMismatch = apperrors.New("signature mismatch")

	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = apperrors.New("token expired")

	// ErrUnsupportedCapability indicates the requested capability combination
	// is not one of the recognized authorizable combinations.
	ErrUnsupportedCapability = apperrors.New("unsupported capability")

	// ErrAccessDenied indicates both the role-grant closure and the ops
	// self-access fallback declined the request.
	ErrAccessDenied = apperrors.New("access denied")

	// ErrStoreUnavailable indicates the external grant/catalog store or the
	// key registry failed; the request fails closed.
	ErrStoreUnavailable = apperrors.New("store unavailable")

	// ErrTaskNotKnown indicates the subject shard matched no cataloged task.
	ErrTaskNotKnown = apperrors.New("task is not known")

	// ErrCollectionNotKnown indicates the requested resource name or prefix
	// matched no cataloged collection.
	ErrCollectionNotKnown = apperrors.New("collection is not known")
)
