package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/allisson/authgate/internal/app"
	"github.com/allisson/authgate/internal/authz/domain"
	"github.com/allisson/authgate/internal/config"
	"github.com/allisson/authgate/internal/labels"
)

// RunSignToken signs a capability token with a registered issuer's primary
// key and writes the compact token to the output. Intended for provisioning
// and debugging of peer data planes.
func RunSignToken(
	ctx context.Context,
	io IOTuple,
	issuerName string,
	subject string,
	capabilityNames string,
	name string,
	ttl time.Duration,
) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	reg, err := container.Registry(ctx)
	if err != nil {
		return err
	}

	issuer, ok := reg.Lookup(issuerName)
	if !ok {
		return fmt.Errorf("issuer %q is not registered", issuerName)
	}

	capability, err := domain.ParseCapability(capabilityNames)
	if err != nil {
		return err
	}

	now := time.Now()
	claims := &domain.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Capability: capability,
		Selector: labels.Selector{
			Include: labels.MustSet("name", name),
		},
	}
	if err := claims.Validate(); err != nil {
		return err
	}

	token, err := container.TokenCodec().Sign(claims, issuer.SigningKey())
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	fmt.Fprintln(io.Writer, token)
	return nil
}
