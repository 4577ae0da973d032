// Package http provides the HTTP surface of the authorize protocol.
package http

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	authzUseCase "github.com/allisson/authgate/internal/authz/usecase"
	apperrors "github.com/allisson/authgate/internal/errors"
	"github.com/allisson/authgate/internal/httputil"
)

// maxTokenBytes bounds the request body; compact tokens are far smaller.
const maxTokenBytes = 1 << 16

// AuthorizeHandler handles HTTP requests for task authorization.
type AuthorizeHandler struct {
	authorizeUseCase authzUseCase.AuthorizeUseCase
	logger           *slog.Logger
}

// NewAuthorizeHandler creates a new authorize handler with required dependencies.
func NewAuthorizeHandler(
	authorizeUseCase authzUseCase.AuthorizeUseCase,
	logger *slog.Logger,
) *AuthorizeHandler {
	return &AuthorizeHandler{
		authorizeUseCase: authorizeUseCase,
		logger:           logger,
	}
}

// AuthorizeTaskHandler evaluates a capability token and returns it re-signed
// for the serving data plane.
// POST /v1/authorize/task - the body is the raw compact token.
// Returns 200 OK with the re-signed token as an application/jwt body.
func (h *AuthorizeHandler) AuthorizeTaskHandler(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTokenBytes))
	if err != nil {
		httputil.HandleBadRequestGin(c, apperrors.Wrap(err, "failed to read request body"), h.logger)
		return
	}

	rawToken := strings.TrimSpace(string(body))
	if rawToken == "" {
		httputil.HandleBadRequestGin(c, apperrors.New("request body must be a capability token"), h.logger)
		return
	}

	signed, err := h.authorizeUseCase.Authorize(c.Request.Context(), rawToken)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Data(http.StatusOK, "application/jwt", []byte(signed))
}
