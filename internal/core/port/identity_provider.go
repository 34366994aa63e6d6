package port

import (
	"context"
	"errors"

	"github.com/hurshidbey/p57-access/internal/core/domain"
)

var (
	// ErrInvalidCredential indicates the bearer credential failed validation.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpiredCredential indicates the bearer credential is no longer valid.
	ErrExpiredCredential = errors.New("expired credential")
)

// IdentityProvider validates a bearer credential against the external identity
// collaborator and yields the principal acting on the request. The core only
// requires a stable opaque id and an external identity string.
type IdentityProvider interface {
	Authenticate(ctx context.Context, credential string) (*domain.Principal, error)
}
