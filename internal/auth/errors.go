package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrAccountLocked       = errors.New("auth: account locked")
	ErrAccountDeactivated  = errors.New("auth: account deactivated")
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")
	ErrSessionInactive     = errors.New("auth: session inactive")
	ErrSessionNotFound     = errors.New("auth: session not found")
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrNotFound            = errors.New("auth: not found")
	ErrAlreadyExists       = errors.New("auth: already exists")
	ErrInvalidInput        = errors.New("auth: invalid input")
	ErrUnauthorized        = errors.New("auth: unauthorized")
)

// CredentialsError is returned on a failed credential check. It unwraps to
// ErrInvalidCredentials and carries how many attempts remain before lockout.
type CredentialsError struct {
	AttemptsRemaining int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("auth: invalid credentials (%d attempts remaining)", e.AttemptsRemaining)
}

func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }

// LockedError is returned when an identity is inside its lockout window. It
// unwraps to ErrAccountLocked.
type LockedError struct {
	LockedUntil time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("auth: account locked until %s", e.LockedUntil.UTC().Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }
