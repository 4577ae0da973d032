package usecase

import (
	"context"
	"time"

	"github.com/allisson/authgate/internal/metrics"
)

// authorizeUseCaseWithMetrics decorates AuthorizeUseCase with metrics instrumentation.
type authorizeUseCaseWithMetrics struct {
	next    AuthorizeUseCase
	metrics metrics.BusinessMetrics
}

// NewAuthorizeUseCaseWithMetrics wraps an AuthorizeUseCase with metrics recording.
func NewAuthorizeUseCaseWithMetrics(useCase AuthorizeUseCase, m metrics.BusinessMetrics) AuthorizeUseCase {
	return &authorizeUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Authorize records metrics for authorization operations.
func (a *authorizeUseCaseWithMetrics) Authorize(ctx context.Context, rawToken string) (string, error) {
	start := time.Now()
	token, err := a.next.Authorize(ctx, rawToken)

	status := "success"
	if err != nil {
		status = "error"
	}

	a.metrics.RecordOperation(ctx, "authz", "authorize", status)
	a.metrics.RecordDuration(ctx, "authz", "authorize", time.Since(start), status)

	return token, err
}
