// Package pg is the Postgres-backed user directory. It satisfies the same
// surface as the in-memory directory, for deployments where identities must
// survive restarts. Sessions and lockout records stay in memory regardless.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mockilo/MockAuth-sub001/internal/auth"
	"github.com/mockilo/MockAuth-sub001/internal/ids"
)

const uniqueViolation = "23505"

// Store is a user directory on a Postgres connection pool.
type Store struct {
	db    *sql.DB
	idgen *ids.Generator
}

var _ auth.Directory = (*Store)(nil)

// Open connects to Postgres with pooled defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing handle. Used by tests with a mock driver.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, idgen: ids.NewGenerator()}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Authenticate looks up the identity by email and verifies the password.
// Unknown email and wrong password both return nil, nil.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*auth.UserIdentity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var (
		identity auth.UserIdentity
		hash     string
		roles    []byte
		perms    []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, email, username, roles, permissions, active, created_at, password_hash
		from users where email=$1
	`, email).Scan(&identity.ID, &identity.Email, &identity.Username, &roles, &perms, &identity.Active, &identity.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := auth.VerifyPassword(hash, password); err != nil {
		return nil, nil
	}
	if err := decodeStrings(roles, &identity.Roles); err != nil {
		return nil, err
	}
	if err := decodeStrings(perms, &identity.Permissions); err != nil {
		return nil, err
	}
	return &identity, nil
}

// Register inserts a new identity. A duplicate email surfaces as
// auth.ErrAlreadyExists.
func (s *Store) Register(ctx context.Context, reg auth.Registration) (*auth.UserIdentity, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidInput, err)
	}
	roles := reg.Roles
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return nil, err
	}

	identity := auth.UserIdentity{
		ID:       s.idgen.NewPrefixed("user"),
		Email:    email,
		Username: strings.TrimSpace(reg.Username),
		Roles:    roles,
		Active:   true,
	}
	err = s.db.QueryRowContext(ctx, `
		insert into users(id, email, username, roles, permissions, active, password_hash)
		values ($1,$2,$3,$4,'[]',true,$5)
		returning created_at
	`, identity.ID, identity.Email, identity.Username, rolesJSON, hash).Scan(&identity.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, auth.ErrAlreadyExists
		}
		return nil, err
	}
	return &identity, nil
}

// GetByID returns the identity or auth.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*auth.UserIdentity, error) {
	var (
		identity auth.UserIdentity
		roles    []byte
		perms    []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, email, username, roles, permissions, active, created_at
		from users where id=$1
	`, id).Scan(&identity.ID, &identity.Email, &identity.Username, &roles, &perms, &identity.Active, &identity.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := decodeStrings(roles, &identity.Roles); err != nil {
		return nil, err
	}
	if err := decodeStrings(perms, &identity.Permissions); err != nil {
		return nil, err
	}
	return &identity, nil
}

// UpdateRoles replaces the identity's roles and direct permissions.
func (s *Store) UpdateRoles(ctx context.Context, id string, roles, permissions []string) error {
	rolesJSON, err := json.Marshal(emptyIfNil(roles))
	if err != nil {
		return err
	}
	permsJSON, err := json.Marshal(emptyIfNil(permissions))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update users set roles=$2, permissions=$3 where id=$1
	`, id, rolesJSON, permsJSON)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// SetActive flips the account's active flag.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `update users set active=$2 where id=$1`, id, active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func decodeStrings(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		*dst = nil
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
