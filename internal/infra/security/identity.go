package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/infra/config"
)

// TokenVerifier validates HS256 bearer tokens issued by the upstream identity
// service and extracts the acting principal.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// principalClaims is the claim shape the identity service issues. The subject
// carries the principal id; email rides alongside for the legacy fallback.
type principalClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// NewTokenVerifier constructs a verifier from auth settings.
func NewTokenVerifier(cfg config.AuthSettings) (*TokenVerifier, error) {
	secret := strings.TrimSpace(cfg.JWTSecret)
	if secret == "" {
		return nil, fmt.Errorf("auth: jwt secret is required")
	}

	return &TokenVerifier{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		now:      time.Now,
	}, nil
}

// Authenticate parses and validates the credential, returning the principal it
// names. Expired tokens map to ErrExpiredCredential; every other validation
// failure maps to ErrInvalidCredential.
func (v *TokenVerifier) Authenticate(_ context.Context, credential string) (*domain.Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, port.ErrInvalidCredential
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &principalClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %s", port.ErrExpiredCredential, "token expired")
		}
		return nil, fmt.Errorf("%w: %s", port.ErrInvalidCredential, err.Error())
	}

	if !token.Valid {
		return nil, port.ErrInvalidCredential
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", port.ErrInvalidCredential)
	}

	return &domain.Principal{
		ID:    subject,
		Email: strings.ToLower(strings.TrimSpace(claims.Email)),
	}, nil
}

var _ port.IdentityProvider = (*TokenVerifier)(nil)
