package domain

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/authgate/internal/labels"
)

func validClaims() *Claims {
	now := time.Now().UTC()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "issuer.example",
			Subject:   "capture/acmeCo/source-db/shard-0000",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Capability: CapabilityAuthorize | CapabilityRead,
		Selector: labels.Selector{
			Include: labels.MustSet("name", "acmeCo/collection/data"),
		},
	}
}

func TestClaimsValidate(t *testing.T) {
	require.NoError(t, validClaims().Validate())

	t.Run("MissingIssuer", func(t *testing.T) {
		claims := validClaims()
		claims.Issuer = ""
		assert.ErrorIs(t, claims.Validate(), ErrInvalidClaims)
	})

	t.Run("MissingSubject", func(t *testing.T) {
		claims := validClaims()
		claims.Subject = ""
		assert.ErrorIs(t, claims.Validate(), ErrInvalidClaims)
	})

	t.Run("ZeroCapability", func(t *testing.T) {
		claims := validClaims()
		claims.Capability = 0
		assert.ErrorIs(t, claims.Validate(), ErrInvalidClaims)
	})
}

func TestClaimsSplitSubject(t *testing.T) {
	claims := validClaims()

	taskType, taskShard, err := claims.SplitSubject()
	require.NoError(t, err)
	assert.Equal(t, "capture", taskType)
	assert.Equal(t, "acmeCo/source-db/shard-0000", taskShard)

	for _, subject := range []string{"", "no-separator", "/shard", "type/"} {
		claims.Subject = subject
		_, _, err := claims.SplitSubject()
		assert.ErrorIs(t, err, ErrInvalidClaims, "subject %q", subject)
	}
}
