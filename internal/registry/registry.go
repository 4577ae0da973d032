// Package registry provides the read-only key/issuer registry. The registry
// is loaded once at process start and never mutated afterward; it is passed
// by reference into the services that need it rather than held as a global.
package registry

import (
	"encoding/base64"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/authgate/internal/errors"
	appvalidation "github.com/allisson/authgate/internal/validation"
)

// Issuer holds the verification material and operational collections of a
// registered data plane. Keys are ordered: the first key signs, and every key
// verifies.
type Issuer struct {
	Name            string
	Keys            [][]byte
	LogsCollection  string
	StatsCollection string
}

// SigningKey returns the issuer's primary (signing) key.
func (i Issuer) SigningKey() []byte {
	return i.Keys[0]
}

// Registry maps issuer ids to their registered data planes. Exactly one
// issuer is the serving data plane, on whose behalf response tokens are
// signed.
type Registry struct {
	servingIssuer string
	issuers       map[string]Issuer
}

// Lookup returns the issuer registered under the given id.
func (r *Registry) Lookup(name string) (Issuer, bool) {
	issuer, ok := r.issuers[name]
	return issuer, ok
}

// Serving returns the serving data plane's issuer entry.
func (r *Registry) Serving() Issuer {
	return r.issuers[r.servingIssuer]
}

// ServingIssuer returns the serving data plane's issuer id.
func (r *Registry) ServingIssuer() string {
	return r.servingIssuer
}

// Len returns the number of registered issuers.
func (r *Registry) Len() int {
	return len(r.issuers)
}

// Document is the JSON shape of a registry file.
type Document struct {
	ServingIssuer string                    `json:"serving_issuer"`
	Issuers       map[string]IssuerDocument `json:"issuers"`
}

// IssuerDocument is the JSON shape of a registered issuer. Keys are
// base64-encoded symmetric secrets, first key signs.
type IssuerDocument struct {
	Keys            []string `json:"keys"`
	LogsCollection  string   `json:"logs_collection"`
	StatsCollection string   `json:"stats_collection"`
}

// Validate checks structural requirements of the registry document.
func (d *Document) Validate() error {
	err := validation.ValidateStruct(d,
		validation.Field(&d.ServingIssuer, validation.Required, appvalidation.NoWhitespace),
		validation.Field(&d.Issuers, validation.Required),
	)
	if err != nil {
		return appvalidation.WrapValidationError(err)
	}

	if _, ok := d.Issuers[d.ServingIssuer]; !ok {
		return apperrors.Wrapf(apperrors.ErrInvalidInput,
			"serving issuer %q is not among registered issuers", d.ServingIssuer)
	}

	for name, issuer := range d.Issuers {
		err := validation.ValidateStruct(&issuer,
			validation.Field(&issuer.Keys,
				validation.Required,
				validation.Length(1, 0),
				validation.Each(validation.Required, appvalidation.Base64)),
			validation.Field(&issuer.LogsCollection, validation.Required, appvalidation.NotBlank),
			validation.Field(&issuer.StatsCollection, validation.Required, appvalidation.NotBlank),
		)
		if err != nil {
			return apperrors.Wrapf(apperrors.ErrInvalidInput, "issuer %q: %s", name, err.Error())
		}
	}
	return nil
}

// New builds an immutable Registry from a validated document, decoding its
// base64 key material.
func New(doc *Document) (*Registry, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	issuers := make(map[string]Issuer, len(doc.Issuers))
	for name, entry := range doc.Issuers {
		keys := make([][]byte, 0, len(entry.Keys))
		for i, encoded := range entry.Keys {
			key, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, apperrors.Wrapf(apperrors.ErrInvalidInput,
					"issuer %q key %d is not valid base64", name, i)
			}
			keys = append(keys, key)
		}
		issuers[name] = Issuer{
			Name:            name,
			Keys:            keys,
			LogsCollection:  entry.LogsCollection,
			StatsCollection: entry.StatsCollection,
		}
	}

	return &Registry{
		servingIssuer: doc.ServingIssuer,
		issuers:       issuers,
	}, nil
}
