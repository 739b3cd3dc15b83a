package service

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"moviebox/internal/identity"
	"moviebox/internal/repository"
)

// Taxonomia de errores del ciclo de sesion.
var (
	ErrDuplicateUser      = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionInvalid     = errors.New("session invalid")
	ErrRemoteUnavailable  = errors.New("remote service unavailable")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrInvalidInput       = errors.New("invalid input")
)

var errCallerCanceled = errors.New("canceled by caller")

var taxonomy = []error{
	ErrDuplicateUser,
	ErrInvalidCredentials,
	ErrUserNotFound,
	ErrSessionExpired,
	ErrSessionInvalid,
	ErrRemoteUnavailable,
	ErrUnauthenticated,
	ErrInvalidInput,
}

// classify traduce errores de proveedor y repositorios a la taxonomia.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return err
		}
	}
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return ErrInvalidCredentials
	case errors.Is(err, identity.ErrAccountExists), errors.Is(err, repository.ErrDuplicate):
		return ErrDuplicateUser
	case errors.Is(err, identity.ErrNoSession):
		return ErrSessionInvalid
	case errors.Is(err, identity.ErrInvalidRequest):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case errors.Is(err, identity.ErrRateLimited):
		return fmt.Errorf("%w: too many attempts, try again later", ErrRemoteUnavailable)
	case errors.Is(err, pgx.ErrNoRows):
		return ErrUserNotFound
	default:
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
}
