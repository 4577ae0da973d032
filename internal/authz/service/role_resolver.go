package service

import (
	"strings"

	"github.com/allisson/authgate/internal/authz/domain"
)

// roleResolver implements the admin-gated transitive closure over role-grant
// edges as an in-process worklist fixpoint.
type roleResolver struct{}

// NewRoleResolver creates a new role resolver.
func NewRoleResolver() RoleResolver {
	return &roleResolver{}
}

// closureMember is a reached role prefix, tagged with the capability of the
// edge that introduced it. The tag decides whether the member may expand
// further: only admin members are pass-through nodes.
type closureMember struct {
	objectRole string
	capability domain.Role
}

// Reachable computes whether `resource` is reachable from `subject` at
// `minRole` under the grant set.
//
// Base edges are grants whose subject_role prefixes the subject and whose
// capability satisfies minRole. The closure then extends ONLY through members
// whose own inbound capability is admin: an admin of a prefix may take on any
// grant whose subject_role prefixes it. A write-only or read-only edge grants
// direct access but never forwards delegation; generalizing this to plain
// reachability would materially broaden authorized access.
//
// The visited set is keyed on (object_role, capability), bounding the
// fixpoint even over malformed or cyclic grant edges.
func (r *roleResolver) Reachable(
	grants []domain.RoleGrant,
	subject string,
	minRole domain.Role,
	resource string,
) bool {
	var (
		visited  = make(map[closureMember]struct{})
		worklist []closureMember
	)
	var add = func(m closureMember) {
		if _, ok := visited[m]; ok {
			return
		}
		visited[m] = struct{}{}
		worklist = append(worklist, m)
	}

	for _, grant := range grants {
		if strings.HasPrefix(subject, grant.SubjectRole) && grant.Capability.Satisfies(minRole) {
			add(closureMember{grant.ObjectRole, grant.Capability})
		}
	}

	for len(worklist) != 0 {
		member := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if strings.HasPrefix(resource, member.objectRole) {
			return true
		}
		if member.capability != domain.RoleAdmin {
			continue // Non-admin members are closure leaves.
		}
		for _, grant := range grants {
			if strings.HasPrefix(member.objectRole, grant.SubjectRole) &&
				grant.Capability.Satisfies(minRole) {
				add(closureMember{grant.ObjectRole, grant.Capability})
			}
		}
	}
	return false
}
