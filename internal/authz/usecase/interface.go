// Package usecase implements the authorize protocol orchestration.
package usecase

import (
	"context"

	"github.com/allisson/authgate/internal/authz/domain"
)

// GrantRepository defines the catalog and role-grant store operations the
// authorize protocol reads. Implementations never write.
type GrantRepository interface {
	// ListRoleGrants retrieves all role grants ordered by subject role.
	ListRoleGrants(ctx context.Context) ([]domain.RoleGrant, error)

	// GetTaskByShard retrieves the task whose shard template prefixes the
	// given shard ID, or domain.ErrTaskNotKnown.
	GetTaskByShard(ctx context.Context, shardID string) (*domain.Task, error)

	// GetCollectionByJournal retrieves the collection whose journal template
	// prefixes the given journal name, or domain.ErrCollectionNotKnown.
	GetCollectionByJournal(ctx context.Context, journalName string) (*domain.Collection, error)
}

// AuthorizeUseCase evaluates a capability token and re-signs it for the
// serving data plane when access is granted.
type AuthorizeUseCase interface {
	Authorize(ctx context.Context, rawToken string) (string, error)
}
