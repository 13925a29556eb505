package auth

import "context"

// CredentialVerifier validates an email/password pair. A nil identity with a
// nil error means the credentials did not match; distinguishing locked or
// deactivated accounts is the coordinator's job, not the verifier's.
type CredentialVerifier interface {
	Authenticate(ctx context.Context, email, password string) (*UserIdentity, error)
}

// IdentityRegistrar creates new identities. Returns ErrAlreadyExists when the
// email is taken.
type IdentityRegistrar interface {
	Register(ctx context.Context, reg Registration) (*UserIdentity, error)
}

// UserDirectory provides read/write access to stored identities.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*UserIdentity, error)
	UpdateRoles(ctx context.Context, id string, roles, permissions []string) error
}

// Directory is the full collaborator surface the coordinator composes over.
type Directory interface {
	CredentialVerifier
	IdentityRegistrar
	UserDirectory
}
