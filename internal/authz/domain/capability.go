package domain

import (
	"strings"

	apperrors "github.com/allisson/authgate/internal/errors"
)

// Capability is a bit-flag set describing operations a token bearer may
// perform on the resources matched by its selector. Values combine with
// bitwise OR. A capability is read both as what the bearer holds and, when
// combined with CapabilityAuthorize, as a request for an
// authorization-narrowed sub-token.
type Capability uint32

// Capability bits. The low bits are broker operations; the high bits are
// platform extensions.
const (
	CapabilityList      Capability = 1 << 1
	CapabilityApply     Capability = 1 << 2
	CapabilityRead      Capability = 1 << 3
	CapabilityAppend    Capability = 1 << 4
	CapabilityReplicate Capability = 1 << 5

	CapabilityAuthorize    Capability = 1 << 16
	CapabilityShuffle      Capability = 1 << 17
	CapabilityNetworkProxy Capability = 1 << 18
)

// capabilityNames maps single bits to their display names, ordered low to high.
var capabilityNames = []struct {
	bit  Capability
	name string
}{
	{CapabilityList, "LIST"},
	{CapabilityApply, "APPLY"},
	{CapabilityRead, "READ"},
	{CapabilityAppend, "APPEND"},
	{CapabilityReplicate, "REPLICATE"},
	{CapabilityAuthorize, "AUTHORIZE"},
	{CapabilityShuffle, "SHUFFLE"},
	{CapabilityNetworkProxy, "NETWORK_PROXY"},
}

// String renders the capability as a pipe-joined list of bit names.
func (c Capability) String() string {
	var names []string
	var rest = c
	for _, entry := range capabilityNames {
		if c&entry.bit != 0 {
			names = append(names, entry.name)
			rest &^= entry.bit
		}
	}
	if rest != 0 || len(names) == 0 {
		names = append(names, "UNKNOWN")
	}
	return strings.Join(names, "|")
}

// ParseCapability parses a pipe-joined list of capability bit names, the
// inverse of String.
func ParseCapability(s string) (Capability, error) {
	var c Capability
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		matched := false
		for _, entry := range capabilityNames {
			if entry.name == part {
				c |= entry.bit
				matched = true
				break
			}
		}
		if !matched {
			return 0, apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown capability %q", part)
		}
	}
	return c, nil
}

// RequiredRole classifies a requested capability combination into the role it
// requires. The table is exhaustive and exactly matched: the claims are
// passed through after authorization, so merely *containing* an allowed bit
// is not enough. APPLY and APPEND are never granted together, as those two
// bits authorize wildly different operations and no caller needs both in one
// token. Unlisted combinations fail with ErrUnsupportedCapability.
func RequiredRole(c Capability) (Role, error) {
	switch c {
	case CapabilityAuthorize | CapabilityList:
		return RoleRead, nil
	case CapabilityAuthorize | CapabilityRead:
		return RoleRead, nil
	case CapabilityAuthorize | CapabilityApply:
		return RoleWrite, nil
	case CapabilityAuthorize | CapabilityAppend:
		return RoleWrite, nil
	default:
		return 0, apperrors.Wrapf(ErrUnsupportedCapability,
			"capability %s cannot be authorized by this service", c)
	}
}

// Downgrade strips the AUTHORIZE bit, narrowing the capability before the
// token is re-signed for the serving data plane. All other bits pass through.
func (c Capability) Downgrade() Capability {
	return c &^ CapabilityAuthorize
}

// Role is the coarse access classification derived from a capability
// combination and carried by role grants. Roles are totally ordered:
// RoleAdmin satisfies RoleWrite satisfies RoleRead.
type Role uint8

const (
	RoleRead Role = iota + 1
	RoleWrite
	RoleAdmin
)

// Satisfies reports whether the role meets or exceeds the minimum role.
func (r Role) Satisfies(min Role) bool {
	return r >= min
}

// String returns the role's storage and display name.
func (r Role) String() string {
	switch r {
	case RoleRead:
		return "read"
	case RoleWrite:
		return "write"
	case RoleAdmin:
		return "admin"
	default:
		return "invalid"
	}
}

// ParseRole maps a storage name to its Role.
func ParseRole(name string) (Role, error) {
	switch name {
	case "read":
		return RoleRead, nil
	case "write":
		return RoleWrite, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown role %q", name)
	}
}
