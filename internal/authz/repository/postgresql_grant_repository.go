package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/authgate/internal/authz/domain"
	"github.com/allisson/authgate/internal/database"
	apperrors "github.com/allisson/authgate/internal/errors"
)

// PostgreSQLGrantRepository implements authorization catalog lookups for
// PostgreSQL. Uses transaction support via database.GetTx().
type PostgreSQLGrantRepository struct {
	db *sql.DB
}

// NewPostgreSQLGrantRepository creates a new PostgreSQL grant repository.
func NewPostgreSQLGrantRepository(db *sql.DB) *PostgreSQLGrantRepository {
	return &PostgreSQLGrantRepository{db: db}
}

// ListRoleGrants retrieves all role grants ordered by subject role.
func (p *PostgreSQLGrantRepository) ListRoleGrants(ctx context.Context) ([]domain.RoleGrant, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT subject_role, object_role, capability FROM role_grants
			  ORDER BY subject_role, object_role`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list role grants")
	}
	defer rows.Close()

	var grants []domain.RoleGrant
	for rows.Next() {
		var grant domain.RoleGrant
		var capability string

		if err := rows.Scan(&grant.SubjectRole, &grant.ObjectRole, &capability); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan role grant")
		}
		if grant.Capability, err = domain.ParseRole(capability); err != nil {
			return nil, apperrors.Wrap(err, "failed to parse role grant capability")
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate role grants")
	}

	return grants, nil
}

// GetTaskByShard retrieves the task whose shard template prefixes the given
// shard ID. The longest matching template wins. Templates may contain literal
// '%' and '_' (percent-encoded partition values), so the comparison must be a
// plain prefix match rather than a LIKE pattern.
func (p *PostgreSQLGrantRepository) GetTaskByShard(ctx context.Context, shardID string) (*domain.Task, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT name, task_type, shard_template_id FROM tasks
			  WHERE left($1, length(shard_template_id)) = shard_template_id
			  ORDER BY length(shard_template_id) DESC
			  LIMIT 1`

	var task domain.Task
	err := querier.QueryRowContext(ctx, query, shardID).Scan(
		&task.Name,
		&task.Type,
		&task.ShardTemplateID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotKnown
		}
		return nil, apperrors.Wrap(err, "failed to get task by shard")
	}

	return &task, nil
}

// GetCollectionByJournal retrieves the collection whose journal template
// prefixes the given journal name. The longest matching template wins.
// Journal templates carry percent-encoded partition values, so '%' occurs
// literally and the comparison must be a plain prefix match.
func (p *PostgreSQLGrantRepository) GetCollectionByJournal(ctx context.Context, journalName string) (*domain.Collection, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT name, journal_template_name FROM collections
			  WHERE left($1, length(journal_template_name)) = journal_template_name
			  ORDER BY length(journal_template_name) DESC
			  LIMIT 1`

	var collection domain.Collection
	err := querier.QueryRowContext(ctx, query, journalName).Scan(
		&collection.Name,
		&collection.JournalTemplateName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCollectionNotKnown
		}
		return nil, apperrors.Wrap(err, "failed to get collection by journal")
	}

	return &collection, nil
}
