package usecase

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/allisson/authgate/internal/authz/domain"
	authzService "github.com/allisson/authgate/internal/authz/service"
	"github.com/allisson/authgate/internal/config"
	"github.com/allisson/authgate/internal/database"
	apperrors "github.com/allisson/authgate/internal/errors"
	"github.com/allisson/authgate/internal/labels"
	"github.com/allisson/authgate/internal/registry"
)

// authorizeUseCase implements AuthorizeUseCase.
type authorizeUseCase struct {
	config       *config.Config
	registry     *registry.Registry
	grantRepo    GrantRepository
	txManager    database.TxManager
	tokenCodec   authzService.TokenCodec
	roleResolver authzService.RoleResolver
	auditSigner  authzService.AuditSigner
	logger       *slog.Logger
}

// NewAuthorizeUseCase creates a new AuthorizeUseCase with the provided dependencies.
func NewAuthorizeUseCase(
	cfg *config.Config,
	reg *registry.Registry,
	grantRepo GrantRepository,
	txManager database.TxManager,
	tokenCodec authzService.TokenCodec,
	roleResolver authzService.RoleResolver,
	auditSigner authzService.AuditSigner,
	logger *slog.Logger,
) AuthorizeUseCase {
	return &authorizeUseCase{
		config:       cfg,
		registry:     reg,
		grantRepo:    grantRepo,
		txManager:    txManager,
		tokenCodec:   tokenCodec,
		roleResolver: roleResolver,
		auditSigner:  auditSigner,
		logger:       logger,
	}
}

// Authorize evaluates the inbound capability token and, when access is
// granted, returns an equivalent token re-signed by the serving data plane
// with the AUTHORIZE bit cleared.
//
// The evaluation order is fixed: claims are parsed unverified only to learn
// the claimed issuer, the signature is checked against that issuer's
// registered keys, the subject and selector are validated, the capability is
// classified into a required role, and the grant store is consulted under a
// single deadline. A store failure is always a denial, never a grant.
func (u *authorizeUseCase) Authorize(ctx context.Context, rawToken string) (string, error) {
	// Parse the payload without trusting it, to learn the claimed issuer.
	claims, err := u.tokenCodec.DecodeUnverified(rawToken)
	if err != nil {
		return "", err
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}

	issuer, ok := u.registry.Lookup(claims.Issuer)
	if !ok {
		return "", apperrors.Wrapf(domain.ErrUnknownIssuer, "issuer '%s' is unknown", claims.Issuer)
	}

	// A single deadline spans the rest of the request: signature verification
	// and every store read.
	storeCtx, cancel := context.WithTimeout(ctx, u.config.AuthorizeTimeout)
	defer cancel()

	// From here on the claims are trusted only if one registered key verifies.
	if err := u.tokenCodec.Verify(rawToken, issuer.Keys); err != nil {
		return "", err
	}

	taskType, taskShard, err := claims.SplitSubject()
	if err != nil {
		return "", err
	}

	resource, err := claims.Selector.Include.ExpectOne("name")
	if err != nil {
		return "", apperrors.Wrap(domain.ErrInvalidClaims, err.Error())
	}

	requiredRole, err := domain.RequiredRole(claims.Capability)
	if err != nil {
		return "", err
	}

	// The store reads of a request share one transaction, so the connection is
	// acquired once and released on every exit path.
	var (
		task       *domain.Task
		collection *domain.Collection
		grants     []domain.RoleGrant
	)
	err = u.txManager.WithTx(storeCtx, func(txCtx context.Context) error {
		var err error
		if task, err = u.grantRepo.GetTaskByShard(txCtx, taskShard); err != nil {
			return err
		}
		if collection, err = u.grantRepo.GetCollectionByJournal(txCtx, resource); err != nil {
			return err
		}
		grants, err = u.grantRepo.ListRoleGrants(txCtx)
		return err
	})
	if err != nil {
		if apperrors.Is(err, domain.ErrTaskNotKnown) || apperrors.Is(err, domain.ErrCollectionNotKnown) {
			return "", err
		}
		return "", apperrors.Wrap(domain.ErrStoreUnavailable, err.Error())
	}

	authorized := u.roleResolver.Reachable(grants, task.Name, requiredRole, collection.Name)

	// Tasks may always write to their own ops logs and stats partitions, even
	// without an explicit grant.
	if !authorized && requiredRole == domain.RoleWrite && u.isTaskOpsResource(taskType, task, collection, resource) {
		authorized = true
	}

	if !authorized {
		u.emitAuditEvent(ctx, taskShard, resource, requiredRole, domain.AuditOutcomeDenied,
			"no role grant reaches the resource")
		return "", apperrors.Wrapf(domain.ErrAccessDenied,
			"task shard %s is not authorized to %s %s", taskShard, requiredRole, resource)
	}

	now := time.Now().UTC()
	signed := &domain.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    u.registry.ServingIssuer(),
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(u.config.ServingTokenTTL)),
		},
		Capability: claims.Capability.Downgrade(),
		Selector:   claims.Selector,
	}

	token, err := u.tokenCodec.Sign(signed, u.registry.Serving().SigningKey())
	if err != nil {
		return "", err
	}

	u.emitAuditEvent(ctx, taskShard, resource, requiredRole, domain.AuditOutcomeGranted, "")
	return token, nil
}

// isTaskOpsResource reports whether the resource is the task's own partition
// of the serving plane's ops logs or stats collection.
func (u *authorizeUseCase) isTaskOpsResource(
	taskType string,
	task *domain.Task,
	collection *domain.Collection,
	resource string,
) bool {
	serving := u.registry.Serving()
	if collection.Name != serving.LogsCollection && collection.Name != serving.StatsCollection {
		return false
	}

	suffix := "/kind=" + taskType + "/name=" + labels.PercentEncode(task.Name) + "/pivot=00"
	return strings.HasSuffix(resource, suffix)
}

// emitAuditEvent signs and logs an authorization decision. Audit emission
// never fails the request.
func (u *authorizeUseCase) emitAuditEvent(
	ctx context.Context,
	shard, resource string,
	role domain.Role,
	outcome, reason string,
) {
	event := &domain.AuditEvent{
		ID:        uuid.Must(uuid.NewV7()),
		Shard:     shard,
		Resource:  resource,
		Role:      role.String(),
		Outcome:   outcome,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}

	signature, err := u.auditSigner.Sign(u.registry.Serving().SigningKey(), event)
	if err != nil {
		u.logger.ErrorContext(ctx, "failed to sign audit event",
			slog.String("error", err.Error()))
		return
	}
	event.Signature = signature

	u.logger.InfoContext(ctx, "authorization decision",
		slog.String("event_id", event.ID.String()),
		slog.String("shard", event.Shard),
		slog.String("resource", event.Resource),
		slog.String("role", event.Role),
		slog.String("outcome", event.Outcome),
		slog.String("reason", event.Reason),
		slog.String("signature", hex.EncodeToString(event.Signature)))
}
