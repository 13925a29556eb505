// Package lockout tracks failed authentication attempts per identity and
// temporarily blocks identities that exceed the configured maximum. Records
// live in memory and disappear only through explicit clearing, lazy
// expiry-driven deletion, or an explicit cleanup sweep.
package lockout

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrNotLocked is returned when an unlock targets an identity with no record.
var ErrNotLocked = errors.New("lockout: account is not locked")

const (
	defaultMaxAttempts     = 5
	defaultLockoutDuration = 15 * time.Minute
)

// Config controls the guard. The zero value is normalized to the documented
// defaults: 5 attempts, 15 minute lockout, enabled.
type Config struct {
	// MaxAttempts is the number of consecutive failures that trips a lock.
	MaxAttempts int
	// LockoutDuration is how long a tripped lock holds.
	LockoutDuration time.Duration
	// Disabled turns failure counting off entirely.
	Disabled bool
}

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = defaultLockoutDuration
	}
	return c
}

// Record is the per-identity failure state. A record whose lock window has
// elapsed is treated as if absent.
type Record struct {
	Identity    string     `json:"identity"`
	Attempts    int        `json:"attempts"`
	LastFailure time.Time  `json:"last_failure"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	UnlockedBy  string     `json:"unlocked_by,omitempty"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

// Status is the result of recording a failed attempt.
type Status struct {
	Locked            bool
	Attempts          int
	AttemptsRemaining int
	LockedUntil       time.Time
}

// Stats summarizes guard state for administrative inspection.
type Stats struct {
	TrackedIdentities int      `json:"tracked_identities"`
	LockedIdentities  int      `json:"locked_identities"`
	Records           []Record `json:"records"`
}

// Guard is the per-identity failure-counting state machine.
type Guard struct {
	mu      sync.Mutex
	cfg     Config
	records map[string]*Record
	now     func() time.Time
	onLock  func(identity string)
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(g *Guard) {
		if fn != nil {
			g.now = fn
		}
	}
}

// WithLockHook installs a callback fired when an identity transitions to the
// locked state, outside any guard-internal lock ordering concerns.
func WithLockHook(fn func(identity string)) Option {
	return func(g *Guard) {
		g.onLock = fn
	}
}

// NewGuard constructs a Guard with the given config.
func NewGuard(cfg Config, opts ...Option) *Guard {
	g := &Guard{
		cfg:     cfg.normalized(),
		records: make(map[string]*Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// UpdateConfig hot-swaps the configuration. It takes effect on the next
// evaluation; lock timestamps already stamped are not recomputed.
func (g *Guard) UpdateConfig(cfg Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg.normalized()
}

// Config returns the active configuration.
func (g *Guard) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func (r *Record) lockActive(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

func (r *Record) lockElapsed(now time.Time) bool {
	return r.LockedUntil != nil && !now.Before(*r.LockedUntil)
}

// RecordFailure registers a failed attempt for the identity.
//
// A locked identity inside its window is reported locked without further
// counting. A record whose lock window has elapsed is discarded first and the
// attempt counts as the first failure of a fresh cycle. Reaching the
// configured maximum trips the lock and stamps LockedUntil.
func (g *Guard) RecordFailure(identity string) Status {
	identity = normalizeIdentity(identity)

	g.mu.Lock()
	cfg := g.cfg
	if cfg.Disabled {
		g.mu.Unlock()
		return Status{AttemptsRemaining: cfg.MaxAttempts}
	}
	now := g.now()

	rec, ok := g.records[identity]
	if ok && rec.lockActive(now) {
		status := Status{
			Locked:      true,
			Attempts:    rec.Attempts,
			LockedUntil: *rec.LockedUntil,
		}
		g.mu.Unlock()
		return status
	}
	if ok && rec.lockElapsed(now) {
		// Expired cycle: the attempt starts a fresh one, it does not
		// accumulate across windows.
		delete(g.records, identity)
		ok = false
	}
	if !ok {
		rec = &Record{Identity: identity}
		g.records[identity] = rec
	}

	rec.Attempts++
	rec.LastFailure = now

	locked := false
	if rec.Attempts >= cfg.MaxAttempts {
		lockedAt := now
		lockedUntil := now.Add(cfg.LockoutDuration)
		rec.LockedAt = &lockedAt
		rec.LockedUntil = &lockedUntil
		rec.Reason = "max attempts exceeded"
		locked = true
	}

	status := Status{
		Locked:            locked,
		Attempts:          rec.Attempts,
		AttemptsRemaining: max(cfg.MaxAttempts-rec.Attempts, 0),
	}
	if locked {
		status.LockedUntil = *rec.LockedUntil
	}
	hook := g.onLock
	g.mu.Unlock()

	if locked && hook != nil {
		hook(identity)
	}
	return status
}

// Clear unconditionally deletes the identity's record. Called only after a
// verified successful authentication.
func (g *Guard) Clear(identity string) {
	identity = normalizeIdentity(identity)
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, identity)
}

// IsLocked reports whether the identity is inside a lock window. An expired
// record is lazily deleted so stale locks never leak into statistics.
func (g *Guard) IsLocked(identity string) (bool, time.Time) {
	identity = normalizeIdentity(identity)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.Disabled {
		return false, time.Time{}
	}
	rec, ok := g.records[identity]
	if !ok {
		return false, time.Time{}
	}
	now := g.now()
	if rec.lockElapsed(now) {
		delete(g.records, identity)
		return false, time.Time{}
	}
	if rec.lockActive(now) {
		return true, *rec.LockedUntil
	}
	return false, time.Time{}
}

// Unlock is the administrative override. The unlock metadata is stamped and
// LockedUntil is cleared to now, so subsequent checks report unlocked while
// the record is retained until lazy deletion.
func (g *Guard) Unlock(identity, unlockedBy, reason string) error {
	identity = normalizeIdentity(identity)
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[identity]
	if !ok {
		return ErrNotLocked
	}
	now := g.now()
	rec.UnlockedBy = unlockedBy
	rec.UnlockedAt = &now
	if reason != "" {
		rec.Reason = reason
	}
	if rec.LockedUntil != nil {
		rec.LockedUntil = &now
	}
	return nil
}

// Stats returns a copy of the guard's current records.
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	stats := Stats{Records: make([]Record, 0, len(g.records))}
	for _, rec := range g.records {
		if rec.lockElapsed(now) {
			continue
		}
		stats.TrackedIdentities++
		if rec.lockActive(now) {
			stats.LockedIdentities++
		}
		stats.Records = append(stats.Records, *rec)
	}
	return stats
}

// CleanupExpired removes records whose lock window has elapsed. Safe to run
// concurrently with per-identity operations.
func (g *Guard) CleanupExpired() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	removed := 0
	for identity, rec := range g.records {
		if rec.lockElapsed(now) {
			delete(g.records, identity)
			removed++
		}
	}
	return removed
}
