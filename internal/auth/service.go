package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mockilo/MockAuth-sub001/internal/ids"
	"github.com/mockilo/MockAuth-sub001/internal/lockout"
)

const defaultSessionTTL = 7 * 24 * time.Hour

// LockoutGuard is the slice of the lockout guard the coordinator consumes.
// A nil guard disables lockout enforcement.
type LockoutGuard interface {
	IsLocked(identity string) (bool, time.Time)
	RecordFailure(identity string) lockout.Status
	Clear(identity string)
}

// Service orchestrates login, logout, refresh, and verification by composing
// the lockout guard, credential verifier, session store, and token issuer.
type Service struct {
	dir        Directory
	sessions   *SessionStore
	tokens     *TokenIssuer
	guard      LockoutGuard
	idgen      *ids.Generator
	now        func() time.Time
	sessionTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithLockoutGuard wires the failure-counting guard in front of credential
// verification.
func WithLockoutGuard(guard LockoutGuard) ServiceOption {
	return func(s *Service) {
		s.guard = guard
	}
}

// WithSessionTTL sets how long a session lives. The expiry is fixed at
// creation and never extended.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(g *ids.Generator) ServiceOption {
	return func(s *Service) {
		if g != nil {
			s.idgen = g
		}
	}
}

// NewService constructs the coordinator. Directory and token issuer are
// required.
func NewService(dir Directory, tokens *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if dir == nil {
		return nil, errors.New("auth: directory is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	svc := &Service{
		dir:        dir,
		sessions:   NewSessionStore(),
		tokens:     tokens,
		idgen:      ids.NewGenerator(),
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Sessions exposes the underlying store for composition-root wiring (gauges,
// probes). Mutation goes through the coordinator.
func (s *Service) Sessions() *SessionStore { return s.sessions }

// Login authenticates credentials and establishes exactly one new session
// with one access token and one refresh token bound to it.
//
// Failure modes: LockedError while the identity is inside its lockout
// window, CredentialsError (with attempts remaining) on a mismatch, and
// ErrAccountDeactivated for a disabled account even with correct
// credentials.
func (s *Service) Login(ctx context.Context, email, password string, meta LoginMetadata) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	if s.guard != nil {
		if locked, until := s.guard.IsLocked(email); locked {
			return nil, &LockedError{LockedUntil: until}
		}
	}

	user, err := s.dir.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		if s.guard == nil {
			return nil, ErrInvalidCredentials
		}
		status := s.guard.RecordFailure(email)
		return nil, &CredentialsError{AttemptsRemaining: status.AttemptsRemaining}
	}
	if !user.Active {
		return nil, ErrAccountDeactivated
	}
	if s.guard != nil {
		s.guard.Clear(email)
	}

	return s.establishSession(user, meta)
}

// Register creates the identity and immediately establishes a session.
func (s *Service) Register(ctx context.Context, reg Registration, meta LoginMetadata) (*LoginResult, error) {
	reg.Email = strings.TrimSpace(strings.ToLower(reg.Email))
	reg.Username = strings.TrimSpace(reg.Username)
	if reg.Email == "" || !strings.Contains(reg.Email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if reg.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	user, err := s.dir.Register(ctx, reg)
	if err != nil {
		return nil, err
	}
	return s.establishSession(user, meta)
}

func (s *Service) establishSession(user *UserIdentity, meta LoginMetadata) (*LoginResult, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:             s.idgen.NewPrefixed("sess"),
		UserID:         user.ID,
		Device:         meta.Device,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.sessionTTL),
		IsActive:       true,
	}
	refreshToken, err := s.tokens.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	s.sessions.Create(sess, refreshToken)

	accessToken, accessExp, err := s.tokens.Issue(user, sess.ID)
	if err != nil {
		s.sessions.Delete(sess.ID)
		return nil, err
	}
	return &LoginResult{
		User:            user,
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		SessionID:       sess.ID,
		AccessExpiresAt: accessExp,
	}, nil
}

// VerifyToken checks the token's signature and expiry and resolves its
// session claim against the store. It returns nil, never an error, when the
// caller is simply not authenticated: bad signature, expired claims, or a
// missing, inactive, or expired session. On success LastActivityAt advances.
//
// This is the hot path; the session check is a single map read.
func (s *Service) VerifyToken(accessToken string) *Principal {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return nil
	}
	sess, ok := s.sessions.Get(claims.SessionID)
	if !ok || !sess.IsActive {
		return nil
	}
	now := s.now().UTC()
	if now.After(sess.ExpiresAt) {
		return nil
	}
	s.sessions.Touch(sess.ID, now)
	return &Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Username:    claims.Username,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		SessionID:   sess.ID,
	}
}

// Refresh exchanges a refresh token for a fresh access token. The refresh
// token and session are not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return "", time.Time{}, ErrInvalidRefreshToken
	}
	sess, ok := s.sessions.ResolveRefresh(refreshToken)
	if !ok {
		return "", time.Time{}, ErrInvalidRefreshToken
	}
	if !sess.IsActive {
		return "", time.Time{}, ErrSessionInactive
	}
	if s.now().UTC().After(sess.ExpiresAt) {
		return "", time.Time{}, ErrSessionInactive
	}
	user, err := s.dir.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidRefreshToken
		}
		return "", time.Time{}, err
	}
	return s.issueFor(user, sess.ID)
}

func (s *Service) issueFor(user *UserIdentity, sessionID string) (string, time.Time, error) {
	token, exp, err := s.tokens.Issue(user, sessionID)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Logout removes the session, its user-index entry, and its refresh binding.
// Idempotent: returns false when the session did not exist.
func (s *Service) Logout(sessionID string) bool {
	return s.sessions.Delete(sessionID)
}

// RevokeSession removes a session on behalf of its owning user. Revoking a
// session the requester does not own fails with ErrUnauthorized.
func (s *Service) RevokeSession(sessionID, requestingUserID string) error {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if sess.UserID != requestingUserID {
		return ErrUnauthorized
	}
	s.sessions.Delete(sessionID)
	return nil
}

// RevokeAllSessions logs out every session the user holds and returns the
// number removed.
func (s *Service) RevokeAllSessions(userID string) int {
	removed := 0
	for _, sess := range s.sessions.SessionsForUser(userID) {
		if s.sessions.Delete(sess.ID) {
			removed++
		}
	}
	return removed
}

// RevokeAllOtherSessions logs out every session the user holds except the
// one identified by keepSessionID.
func (s *Service) RevokeAllOtherSessions(userID, keepSessionID string) int {
	removed := 0
	for _, sess := range s.sessions.SessionsForUser(userID) {
		if sess.ID == keepSessionID {
			continue
		}
		if s.sessions.Delete(sess.ID) {
			removed++
		}
	}
	return removed
}

// GetUserSessions returns copies of the user's live sessions.
func (s *Service) GetUserSessions(userID string) []Session {
	return s.sessions.SessionsForUser(userID)
}

// CurrentUser resolves an access token to its directory identity.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*UserIdentity, error) {
	principal := s.VerifyToken(accessToken)
	if principal == nil {
		return nil, ErrInvalidToken
	}
	return s.dir.GetByID(ctx, principal.UserID)
}

// CleanupExpiredSessions logs out every session whose ExpiresAt has passed.
// Designed to run periodically; iteration snapshots ids first so concurrent
// deletion is safe.
func (s *Service) CleanupExpiredSessions() int {
	now := s.now().UTC()
	removed := 0
	for _, id := range s.sessions.IDs() {
		sess, ok := s.sessions.Get(id)
		if !ok {
			continue
		}
		if now.After(sess.ExpiresAt) {
			if s.sessions.Delete(id) {
				removed++
			}
		}
	}
	return removed
}
