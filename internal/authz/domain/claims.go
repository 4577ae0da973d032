// Package domain defines the capability, claims, and role-grant model of the
// authorization gateway.
package domain

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/authgate/internal/errors"
	"github.com/allisson/authgate/internal/labels"
)

// Claims is the payload of a capability token. It extends the registered JWT
// claims with the requested capability bits and the label selector naming the
// target resources. Claims are constructed from an inbound token, mutated in
// place during downgrade, and serialized into the outbound token; they are
// never persisted.
type Claims struct {
	jwt.RegisteredClaims
	Capability Capability      `json:"cap"`
	Selector   labels.Selector `json:"sel"`
}

// Validate checks that the claims carry the fields the authorize protocol
// requires before any of them is trusted.
func (c *Claims) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.Subject, validation.Required),
		validation.Field(&c.Capability, validation.Required),
	)
	if err != nil {
		return apperrors.Wrap(ErrInvalidClaims, err.Error())
	}
	if err := c.Selector.Validate(); err != nil {
		return apperrors.Wrap(ErrInvalidClaims, err.Error())
	}
	return nil
}

// SplitSubject splits the composite subject "<task_type>/<task_shard>" on its
// first separator.
func (c *Claims) SplitSubject() (taskType, taskShard string, err error) {
	taskType, taskShard, ok := strings.Cut(c.Subject, "/")
	if !ok || taskType == "" || taskShard == "" {
		return "", "", apperrors.Wrapf(ErrInvalidClaims,
			"subject %q must have the form <task_type>/<task_shard>", c.Subject)
	}
	return taskType, taskShard, nil
}
