package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hurshidbey/p57-access/internal/core/port"
)

// ErrorResponse mirrors the handlers error body so middleware rejections look
// identical to handler rejections.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, message string) ErrorResponse {
	return ErrorResponse{
		Error:   message,
		TraceID: GetTraceID(c),
	}
}

// RequireAuth validates the Authorization header and attaches the principal to
// the request context. Unauthenticated requests are rejected before any
// authorization gate runs and are not audited.
func RequireAuth(identity port.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, problem))
			return
		}

		principal, err := identity.Authenticate(c.Request.Context(), token)
		if err != nil {
			status, message := http.StatusUnauthorized, "invalid access token"
			switch {
			case errors.Is(err, port.ErrExpiredCredential):
				message = "access token expired"
			case errors.Is(err, port.ErrInvalidCredential):
			default:
				status, message = http.StatusInternalServerError, "authentication failed"
			}
			c.AbortWithStatusJSON(status, newErrorResponse(c, message))
			return
		}

		c.Set(PrincipalKey, principal)
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.Principal = principal
		}

		c.Next()
	}
}

// bearerToken extracts the bearer credential, returning a user-facing problem
// description when the header is missing or malformed.
func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization format: expected 'Bearer <token>'"
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", "missing access token"
	}

	return token, ""
}
