package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/authgate/internal/authz/domain"
	authzService "github.com/allisson/authgate/internal/authz/service"
	"github.com/allisson/authgate/internal/config"
	"github.com/allisson/authgate/internal/labels"
	"github.com/allisson/authgate/internal/registry"
)

var (
	servingKey = []byte("serving-plane-signing-key")
	peerKey    = []byte("peer-plane-signing-key")
	peerOldKey = []byte("peer-plane-retired-key")
)

// mockGrantRepository is a mock implementation of GrantRepository for testing.
type mockGrantRepository struct {
	mock.Mock
}

func (m *mockGrantRepository) ListRoleGrants(ctx context.Context) ([]domain.RoleGrant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RoleGrant), args.Error(1)
}

func (m *mockGrantRepository) GetTaskByShard(ctx context.Context, shardID string) (*domain.Task, error) {
	args := m.Called(ctx, shardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *mockGrantRepository) GetCollectionByJournal(ctx context.Context, journalName string) (*domain.Collection, error) {
	args := m.Called(ctx, journalName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

// passthroughTxManager runs the function directly, counting invocations.
type passthroughTxManager struct {
	calls int
}

func (m *passthroughTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	encode := base64.StdEncoding.EncodeToString
	reg, err := registry.New(&registry.Document{
		ServingIssuer: "serving.plane",
		Issuers: map[string]registry.IssuerDocument{
			"serving.plane": {
				Keys:            []string{encode(servingKey)},
				LogsCollection:  "ops/serving.plane/logs",
				StatsCollection: "ops/serving.plane/stats",
			},
			"peer.plane": {
				Keys:            []string{encode(peerKey), encode(peerOldKey)},
				LogsCollection:  "ops/peer.plane/logs",
				StatsCollection: "ops/peer.plane/stats",
			},
		},
	})
	require.NoError(t, err)
	return reg
}

func newTestUseCase(t *testing.T, repo GrantRepository) AuthorizeUseCase {
	t.Helper()

	cfg := &config.Config{
		ServingTokenTTL:  time.Hour,
		AuthorizeTimeout: 5 * time.Second,
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	return NewAuthorizeUseCase(
		cfg,
		testRegistry(t),
		repo,
		&passthroughTxManager{},
		authzService.NewTokenCodec(),
		authzService.NewRoleResolver(),
		authzService.NewAuditSigner(),
		logger,
	)
}

func requestClaims(capability domain.Capability, resource string) *domain.Claims {
	now := time.Now().UTC()
	return &domain.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "peer.plane",
			Subject:   "capture/capture/acmeCo/source/00000000-00000000",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Capability: capability,
		Selector: labels.Selector{
			Include: labels.MustSet("name", resource),
		},
	}
}

func signRequest(t *testing.T, claims *domain.Claims, key []byte) string {
	t.Helper()
	token, err := authzService.NewTokenCodec().Sign(claims, key)
	require.NoError(t, err)
	return token
}

func TestAuthorizeUseCase_Granted(t *testing.T) {
	ctx := context.Background()
	repo := &mockGrantRepository{}
	useCase := newTestUseCase(t, repo)

	shardID := "capture/acmeCo/source/00000000-00000000"
	resource := "acmeCo/collection/data/pivot=00"

	repo.On("GetTaskByShard", mock.Anything, shardID).
		Return(&domain.Task{Name: "acmeCo/source", Type: "capture", ShardTemplateID: shardID}, nil).
		Once()
	repo.On("GetCollectionByJournal", mock.Anything, resource).
		Return(&domain.Collection{Name: "acmeCo/collection/data", JournalTemplateName: "acmeCo/collection/data"}, nil).
		Once()
	repo.On("ListRoleGrants", mock.Anything).
		Return([]domain.RoleGrant{
			{SubjectRole: "acmeCo/", ObjectRole: "acmeCo/", Capability: domain.RoleWrite},
		}, nil).
		Once()

	rawToken := signRequest(t, requestClaims(domain.CapabilityAuthorize|domain.CapabilityAppend, resource), peerKey)

	signed, err := useCase.Authorize(ctx, rawToken)
	require.NoError(t, err)

	codec := authzService.NewTokenCodec()
	require.NoError(t, codec.Verify(signed, [][]byte{servingKey}))

	out, err := codec.DecodeUnverified(signed)
	require.NoError(t, err)
	assert.Equal(t, "serving.plane", out.Issuer)
	assert.Equal(t, "capture/"+shardID, out.Subject)
	assert.Equal(t, domain.CapabilityAppend, out.Capability)
	assert.Equal(t, time.Hour, out.ExpiresAt.Sub(out.IssuedAt.Time))

	repo.AssertExpectations(t)
}

func TestAuthorizeUseCase_VerifiesAgainstEveryIssuerKey(t *testing.T) {
	ctx := context.Background()
	repo := &mockGrantRepository{}
	useCase := newTestUseCase(t, repo)

	shardID := "capture/acmeCo/source/00000000-00000000"
	resource := "acmeCo/collection/data/pivot=00"

	repo.On("GetTaskByShard", mock.Anything, shardID).
		Return(&domain.Task{Name: "acmeCo/source", Type: "capture", ShardTemplateID: shardID}, nil)
	repo.On("GetCollectionByJournal", mock.Anything, resource).
		Return(&domain.Collection{Name: "acmeCo/collection/data"}, nil)
	repo.On("ListRoleGrants", mock.Anything).
		Return([]domain.RoleGrant{
			{SubjectRole: "acmeCo/", ObjectRole: "acmeCo/", Capability: domain.RoleRead},
		}, nil)

	// A token signed with the issuer's retired secondary key still verifies.
	rawToken := signRequest(t, requestClaims(domain.CapabilityAuthorize|domain.CapabilityRead, resource), peerOldKey)

	_, err := useCase.Authorize(ctx, rawToken)
	require.NoError(t, err)
}

func TestAuthorizeUseCase_UnknownIssuer(t *testing.T) {
	ctx := context.Background()
	repo := &mockGrantRepository{}
	useCase := newTestUseCase(t, repo)

	claims := requestClaims(domain.CapabilityAuthorize|domain.CapabilityRead, "acmeCo/collection/data")
	claims.Issuer = "other"
	rawToken := signRequest(t, claims, peerKey)

	_, err := useCase.Authorize(ctx, rawToken)
	assert.ErrorIs(t, err, domain.ErrUnknownIssuer)
	assert.Contains(t, err.Error(), "issuer 'other' is unknown")

	// The store is never consulted for an unknown issuer.
	repo.AssertNotCalled(t, "ListRoleGrants", mock.Anything)
}

func TestAuthorizeUseCase_SignatureMismatch(t *testing.T) {
	ctx := context.Background()
	useCase := newTestUseCase(t, &mockGrantRepository{})

	rawToken := signRequest(t,
		requestClaims(domain.CapabilityAuthorize|domain.CapabilityRead, "acmeCo/collection/data"),
		[]byte("some-other-key"))

	_, err := useCase.Authorize(ctx, rawToken)
	assert.ErrorIs(t, err, domain.ErrSignatureMismatch)
}

func TestAuthorizeUseCase_TokenExpired(t *testing.T) {
	ctx := context.Background()
	useCase := newTestUseCase(t, &mockGrantRepository{})

	claims := requestClaims(domain.CapabilityAuthorize|domain.CapabilityRead, "acmeCo/collection/data")
	claims.IssuedAt = jwt.NewNumericDate(time.Now().UTC().Add(-2 * time.Hour))
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().UTC().Add(-time.Hour))
	rawToken := signRequest(t, claims, peerKey)

	_, err := useCase.Authorize(ctx, rawToken)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestAuthorizeUseCase_InvalidClaims(t *testing.T) {
	ctx := context.Background()
	useCase := newTestUseCase(t, &mockGrantRepository{})

	t.Run("missing subject", func(t *testing.T) {
		claims := requestClaims(domain.CapabilityAuthorize|domain.CapabilityRead, "acmeCo/collection/data")
		claims.Subject = ""
		_, err := useCase.Authorize(ctx, signRequest(t, claims, peerKey))
		assert.ErrorIs(t, err, domain.ErrInvalidClaims)
	})

	t.Run("subject without separator", func(t *testing.T) {
		claims := requestClaims(domain.CapabilityAuthorize|domain.CapabilityRead, "acmeCo/collection/data")
		claims.Subject = "capture"
		_, err := useCase.Authorize(ctx, signRequest(t, claims, peerKey))
		assert.ErrorIs(t, err, domain.ErrInvalidClaims)
	})

	t.Run("selector without name label", func(t *testing.T) {
		claims := requestClaims(domain.CapabilityAuthorize|domain.CapabilityRead, "acmeCo/collection/data")
		claims.Selector = labels.Selector{}
		_, err := useCase.Authorize(ctx, signRequest(t, claims, peerKey))
		assert.ErrorIs(t, err, domain.ErrInvalidClaims)
	})

	t.Run("multiple name labels", func(t *testing.T) {
		claims := requestClaims(domain.CapabilityAuthorize|domain.CapabilityRead, "acmeCo/collection/data")
		claims.Selector.Include.AddValue("name", "acmeCo/other/journal")
		_, err := useCase.Authorize(ctx, signRequest(t, claims, peerKey))
		assert.ErrorIs(t, err, domain.ErrInvalidClaims)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := useCase.Authorize(ctx, "not-a-token")
		assert.ErrorIs(t, err, domain.ErrInvalidClaims)
	})
}

func TestAuthorizeUseCase_UnsupportedCapability(t *testing.T) {
	ctx := context.Background()
	useCase := newTestUseCase(t, &mockGrantRepository{})

	for _, capability := range []domain.Capability{
		domain.CapabilityAuthorize,
		domain.CapabilityAuthorize | domain.CapabilityReplicate,
		domain.CapabilityAuthorize | domain.CapabilityRead | domain.CapabilityAppend,
		domain.CapabilityRead,
	} {
		claims := requestClaims(capability, "acmeCo/collection/data")
		_, err := useCase.Authorize(ctx, signRequest(t, claims, peerKey))
		assert.ErrorIs(t, err, domain.ErrUnsupportedCapability, "capability %s", capability)
	}
}

func TestAuthorizeUseCase_AccessDenied(t *testing.T) {
	ctx := context.Background()
	repo := &mockGrantRepository{}
	useCase := newTestUseCase(t, repo)

	shardID := "capture/acmeCo/source/00000000-00000000"
	resource := "otherCo/collection/data/pivot=00"

	repo.On("GetTaskByShard", mock.Anything, shardID).
		Return(&domain.Task{Name: "acmeCo/source", Type: "capture", ShardTemplateID: shardID}, nil)
	repo.On("GetCollectionByJournal", mock.Anything, resource).
		Return(&domain.Collection{Name: "otherCo/collection/data"}, nil)
	repo.On("ListRoleGrants", mock.Anything).
		Return([]domain.RoleGrant{
			{SubjectRole: "acmeCo/", ObjectRole: "acmeCo/", Capability: domain.RoleWrite},
		}, nil)

	rawToken := signRequest(t, requestClaims(domain.CapabilityAuthorize|domain.CapabilityAppend, resource), peerKey)

	_, err := useCase.Authorize(ctx, rawToken)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	assert.Contains(t, err.Error(), shardID)
	assert.Contains(t, err.Error(), resource)
}

func TestAuthorizeUseCase_TaskOpsFallback(t *testing.T) {
	ctx := context.Background()

	shardID := "capture/acmeCo/source/00000000-00000000"
	task := &domain.Task{Name: "acmeCo/source", Type: "capture", ShardTemplateID: shardID}
	logsResource := "ops/serving.plane/logs/kind=capture/name=acmeCo%2Fsource/pivot=00"

	t.Run("write to own logs partition is granted without grants", func(t *testing.T) {
		repo := &mockGrantRepository{}
		useCase := newTestUseCase(t, repo)

		repo.On("GetTaskByShard", mock.Anything, shardID).Return(task, nil)
		repo.On("GetCollectionByJournal", mock.Anything, logsResource).
			Return(&domain.Collection{Name: "ops/serving.plane/logs"}, nil)
		repo.On("ListRoleGrants", mock.Anything).Return([]domain.RoleGrant{}, nil)

		rawToken := signRequest(t, requestClaims(domain.CapabilityAuthorize|domain.CapabilityAppend, logsResource), peerKey)

		signed, err := useCase.Authorize(ctx, rawToken)
		require.NoError(t, err)
		require.NoError(t, authzService.NewTokenCodec().Verify(signed, [][]byte{servingKey}))
	})

	t.Run("read of own logs partition is not covered", func(t *testing.T) {
		repo := &mockGrantRepository{}
		useCase := newTestUseCase(t, repo)

		repo.On("GetTaskByShard", mock.Anything, shardID).Return(task, nil)
		repo.On("GetCollectionByJournal", mock.Anything, logsResource).
			Return(&domain.Collection{Name: "ops/serving.plane/logs"}, nil)
		repo.On("ListRoleGrants", mock.Anything).Return([]domain.RoleGrant{}, nil)

		rawToken := signRequest(t, requestClaims(domain.CapabilityAuthorize|domain.CapabilityRead, logsResource), peerKey)

		_, err := useCase.Authorize(ctx, rawToken)
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})

	t.Run("another task's partition is denied", func(t *testing.T) {
		repo := &mockGrantRepository{}
		useCase := newTestUseCase(t, repo)

		otherResource := "ops/serving.plane/logs/kind=capture/name=acmeCo%2Fother/pivot=00"
		repo.On("GetTaskByShard", mock.Anything, shardID).Return(task, nil)
		repo.On("GetCollectionByJournal", mock.Anything, otherResource).
			Return(&domain.Collection{Name: "ops/serving.plane/logs"}, nil)
		repo.On("ListRoleGrants", mock.Anything).Return([]domain.RoleGrant{}, nil)

		rawToken := signRequest(t, requestClaims(domain.CapabilityAuthorize|domain.CapabilityAppend, otherResource), peerKey)

		_, err := useCase.Authorize(ctx, rawToken)
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})
}

func TestAuthorizeUseCase_StoreFailuresFailClosed(t *testing.T) {
	ctx := context.Background()
	shardID := "capture/acmeCo/source/00000000-00000000"
	resource := "acmeCo/collection/data/pivot=00"
	task := &domain.Task{Name: "acmeCo/source", Type: "capture", ShardTemplateID: shardID}

	t.Run("task lookup failure", func(t *testing.T) {
		repo := &mockGrantRepository{}
		useCase := newTestUseCase(t, repo)

		repo.On("GetTaskByShard", mock.Anything, shardID).
			Return(nil, errors.New("connection refused"))

		rawToken := signRequest(t, requestClaims(domain.CapabilityAuthorize|domain.CapabilityAppend, resource), peerKey)

		_, err := useCase.Authorize(ctx, rawToken)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})

	t.Run("grant listing failure", func(t *testing.T) {
		repo := &mockGrantRepository{}
		useCase := newTestUseCase(t, repo)

		repo.On("GetTaskByShard", mock.Anything, shardID).Return(task, nil)
		repo.On("GetCollectionByJournal", mock.Anything, resource).
			Return(&domain.Collection{Name: "acmeCo/collection/data"}, nil)
		repo.On("ListRoleGrants", mock.Anything).
			Return(nil, errors.New("connection refused"))

		rawToken := signRequest(t, requestClaims(domain.CapabilityAuthorize|domain.CapabilityAppend, resource), peerKey)

		_, err := useCase.Authorize(ctx, rawToken)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})

	t.Run("unknown task passes through", func(t *testing.T) {
		repo := &mockGrantRepository{}
		useCase := newTestUseCase(t, repo)

		repo.On("GetTaskByShard", mock.Anything, shardID).
			Return(nil, domain.ErrTaskNotKnown)

		rawToken := signRequest(t, requestClaims(domain.CapabilityAuthorize|domain.CapabilityAppend, resource), peerKey)

		_, err := useCase.Authorize(ctx, rawToken)
		assert.ErrorIs(t, err, domain.ErrTaskNotKnown)
		assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestAuthorizeUseCase_StoreReadsShareOneTransaction(t *testing.T) {
	ctx := context.Background()
	shardID := "capture/acmeCo/source/00000000-00000000"
	resource := "acmeCo/collection/data/pivot=00"

	repo := &mockGrantRepository{}
	repo.On("GetTaskByShard", mock.Anything, shardID).
		Return(&domain.Task{Name: "acmeCo/source", Type: "capture", ShardTemplateID: shardID}, nil)
	repo.On("GetCollectionByJournal", mock.Anything, resource).
		Return(&domain.Collection{Name: "acmeCo/collection/data"}, nil)
	repo.On("ListRoleGrants", mock.Anything).
		Return([]domain.RoleGrant{
			{SubjectRole: "acmeCo/", ObjectRole: "acmeCo/", Capability: domain.RoleRead},
		}, nil)

	txManager := &passthroughTxManager{}
	cfg := &config.Config{ServingTokenTTL: time.Hour, AuthorizeTimeout: 5 * time.Second}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	useCase := NewAuthorizeUseCase(
		cfg,
		testRegistry(t),
		repo,
		txManager,
		authzService.NewTokenCodec(),
		authzService.NewRoleResolver(),
		authzService.NewAuditSigner(),
		logger,
	)

	rawToken := signRequest(t, requestClaims(domain.CapabilityAuthorize|domain.CapabilityRead, resource), peerKey)

	_, err := useCase.Authorize(ctx, rawToken)
	require.NoError(t, err)

	assert.Equal(t, 1, txManager.calls)
	repo.AssertExpectations(t)
}

// slowVerifyCodec delays signature verification to simulate a stalled check.
type slowVerifyCodec struct {
	authzService.TokenCodec
	delay time.Duration
}

func (c *slowVerifyCodec) Verify(token string, keys [][]byte) error {
	time.Sleep(c.delay)
	return c.TokenCodec.Verify(token, keys)
}

// deadlineSensitiveRepo fails its reads once the request deadline has passed.
type deadlineSensitiveRepo struct{}

func (r *deadlineSensitiveRepo) ListRoleGrants(ctx context.Context) ([]domain.RoleGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *deadlineSensitiveRepo) GetTaskByShard(ctx context.Context, shardID string) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &domain.Task{Name: "acmeCo/source", Type: "capture", ShardTemplateID: shardID}, nil
}

func (r *deadlineSensitiveRepo) GetCollectionByJournal(ctx context.Context, journalName string) (*domain.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &domain.Collection{Name: "acmeCo/collection/data"}, nil
}

func TestAuthorizeUseCase_DeadlineSpansVerification(t *testing.T) {
	ctx := context.Background()

	// Verification alone consumes the whole request budget, so the store reads
	// must observe an expired deadline and the request fails closed.
	cfg := &config.Config{ServingTokenTTL: time.Hour, AuthorizeTimeout: 20 * time.Millisecond}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	useCase := NewAuthorizeUseCase(
		cfg,
		testRegistry(t),
		&deadlineSensitiveRepo{},
		&passthroughTxManager{},
		&slowVerifyCodec{TokenCodec: authzService.NewTokenCodec(), delay: 60 * time.Millisecond},
		authzService.NewRoleResolver(),
		authzService.NewAuditSigner(),
		logger,
	)

	resource := "acmeCo/collection/data/pivot=00"
	rawToken := signRequest(t, requestClaims(domain.CapabilityAuthorize|domain.CapabilityRead, resource), peerKey)

	_, err := useCase.Authorize(ctx, rawToken)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
