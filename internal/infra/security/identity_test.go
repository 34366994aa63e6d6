package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/infra/config"
)

const testSecret = "unit-test-secret"

func newTestVerifier(t *testing.T) *TokenVerifier {
	t.Helper()

	verifier, err := NewTokenVerifier(config.AuthSettings{
		JWTSecret: testSecret,
		Issuer:    "p57-identity",
		Audience:  "p57-access",
	})
	if err != nil {
		t.Fatalf("NewTokenVerifier returned error: %v", err)
	}
	return verifier
}

func signToken(t *testing.T, claims jwt.Claims, secret string) string {
	t.Helper()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(now time.Time) *principalClaims {
	return &principalClaims{
		Email: "Alice@Example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "p57-identity",
			Audience:  jwt.ClaimStrings{"p57-access"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	verifier := newTestVerifier(t)
	token := signToken(t, validClaims(time.Now()), testSecret)

	principal, err := verifier.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	if principal.ID != "user-123" {
		t.Fatalf("unexpected principal id: %s", principal.ID)
	}
	if principal.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %s", principal.Email)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	verifier := newTestVerifier(t)
	claims := validClaims(time.Now().Add(-time.Hour))
	token := signToken(t, claims, testSecret)

	_, err := verifier.Authenticate(context.Background(), token)
	if !errors.Is(err, port.ErrExpiredCredential) {
		t.Fatalf("expected ErrExpiredCredential, got %v", err)
	}
}

func TestAuthenticateWrongSignature(t *testing.T) {
	verifier := newTestVerifier(t)
	token := signToken(t, validClaims(time.Now()), "some-other-secret")

	_, err := verifier.Authenticate(context.Background(), token)
	if !errors.Is(err, port.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestAuthenticateWrongIssuer(t *testing.T) {
	verifier := newTestVerifier(t)
	claims := validClaims(time.Now())
	claims.Issuer = "someone-else"
	token := signToken(t, claims, testSecret)

	_, err := verifier.Authenticate(context.Background(), token)
	if !errors.Is(err, port.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestAuthenticateMissingSubject(t *testing.T) {
	verifier := newTestVerifier(t)
	claims := validClaims(time.Now())
	claims.Subject = ""
	token := signToken(t, claims, testSecret)

	_, err := verifier.Authenticate(context.Background(), token)
	if !errors.Is(err, port.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestAuthenticateEmptyCredential(t *testing.T) {
	verifier := newTestVerifier(t)

	_, err := verifier.Authenticate(context.Background(), "   ")
	if !errors.Is(err, port.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	_, err := NewTokenVerifier(config.AuthSettings{})
	if err == nil {
		t.Fatal("expected error for missing secret")
	}
}
