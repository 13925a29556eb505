// Package directory provides user identity storage backends. The in-memory
// store is the development default; the Postgres store under store/pg serves
// deployments that need identities to survive restarts.
package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mockilo/MockAuth-sub001/internal/auth"
	"github.com/mockilo/MockAuth-sub001/internal/ids"
)

type record struct {
	identity     auth.UserIdentity
	passwordHash string
}

// Memory is an in-memory user directory keyed by id with an email index.
// All returned identities are copies.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]*record
	byEmail map[string]string
	idgen   *ids.Generator
	now     func() time.Time
}

// Option configures a Memory directory.
type Option func(*Memory)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithIDGenerator overrides the user id generator.
func WithIDGenerator(g *ids.Generator) Option {
	return func(m *Memory) {
		if g != nil {
			m.idgen = g
		}
	}
}

// NewMemory constructs an empty in-memory directory.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		byID:    make(map[string]*record),
		byEmail: make(map[string]string),
		idgen:   ids.NewGenerator(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SeedUser is a declarative fixture for pre-provisioned accounts.
type SeedUser struct {
	Email       string
	Username    string
	Password    string
	Roles       []string
	Permissions []string
	Inactive    bool
}

// Seed provisions accounts in bulk, typically at startup. Duplicate emails
// abort the whole seed.
func (m *Memory) Seed(users []SeedUser) error {
	for _, u := range users {
		email := normalizeEmail(u.Email)
		if email == "" {
			return fmt.Errorf("directory: seed user without email")
		}
		hash, err := auth.HashPassword(u.Password)
		if err != nil {
			return fmt.Errorf("directory: seed user %s: %w", email, err)
		}

		m.mu.Lock()
		if _, taken := m.byEmail[email]; taken {
			m.mu.Unlock()
			return fmt.Errorf("directory: seed user %s: %w", email, auth.ErrAlreadyExists)
		}
		rec := &record{
			identity: auth.UserIdentity{
				ID:          m.idgen.NewPrefixed("user"),
				Email:       email,
				Username:    strings.TrimSpace(u.Username),
				Roles:       append([]string(nil), u.Roles...),
				Permissions: append([]string(nil), u.Permissions...),
				Active:      !u.Inactive,
				CreatedAt:   m.now().UTC(),
			},
			passwordHash: hash,
		}
		m.byID[rec.identity.ID] = rec
		m.byEmail[email] = rec.identity.ID
		m.mu.Unlock()
	}
	return nil
}

// Authenticate verifies the email/password pair. Unknown email and wrong
// password are indistinguishable to the caller: both return nil, nil. The
// bcrypt comparison runs even for unknown emails so response timing does not
// reveal which half failed.
func (m *Memory) Authenticate(_ context.Context, email, password string) (*auth.UserIdentity, error) {
	email = normalizeEmail(email)

	m.mu.RLock()
	var rec *record
	if id, ok := m.byEmail[email]; ok {
		rec = m.byID[id]
	}
	m.mu.RUnlock()

	if rec == nil {
		_ = auth.VerifyPassword(burnHash, password)
		return nil, nil
	}
	if err := auth.VerifyPassword(rec.passwordHash, password); err != nil {
		return nil, nil
	}
	return cloneIdentity(rec.identity), nil
}

// Register creates a new identity. Returns auth.ErrAlreadyExists when the
// email is taken.
func (m *Memory) Register(_ context.Context, reg auth.Registration) (*auth.UserIdentity, error) {
	email := normalizeEmail(reg.Email)
	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidInput, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byEmail[email]; taken {
		return nil, auth.ErrAlreadyExists
	}
	roles := reg.Roles
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	rec := &record{
		identity: auth.UserIdentity{
			ID:        m.idgen.NewPrefixed("user"),
			Email:     email,
			Username:  strings.TrimSpace(reg.Username),
			Roles:     append([]string(nil), roles...),
			Active:    true,
			CreatedAt: m.now().UTC(),
		},
		passwordHash: hash,
	}
	m.byID[rec.identity.ID] = rec
	m.byEmail[email] = rec.identity.ID
	return cloneIdentity(rec.identity), nil
}

// GetByID returns a copy of the identity or auth.ErrNotFound.
func (m *Memory) GetByID(_ context.Context, id string) (*auth.UserIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneIdentity(rec.identity), nil
}

// UpdateRoles replaces the identity's roles and direct permissions.
func (m *Memory) UpdateRoles(_ context.Context, id string, roles, permissions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	rec.identity.Roles = append([]string(nil), roles...)
	rec.identity.Permissions = append([]string(nil), permissions...)
	return nil
}

// SetActive flips the account's active flag.
func (m *Memory) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	rec.identity.Active = active
	return nil
}

// Len reports how many identities the directory holds.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// cloneIdentity copies the identity including its slices so callers cannot
// mutate stored state.
func cloneIdentity(identity auth.UserIdentity) *auth.UserIdentity {
	identity.Roles = append([]string(nil), identity.Roles...)
	identity.Permissions = append([]string(nil), identity.Permissions...)
	return &identity
}

// burnHash is a bcrypt hash of an unguessable value, compared against when the
// email is unknown to keep the failure path's timing uniform.
var burnHash = func() string {
	hash, err := auth.HashPassword("directory-burn-value")
	if err != nil {
		panic(err)
	}
	return hash
}()
