package auth

import "time"

// Session binds a user to a time-bounded authenticated context. ExpiresAt is
// fixed at creation and never extended; only LastActivityAt moves forward.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Device         string    `json:"device,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	IsActive       bool      `json:"is_active"`
}

// LoginMetadata carries request-scoped attributes recorded on the session.
type LoginMetadata struct {
	Device    string
	IPAddress string
	UserAgent string
}

// UserIdentity is the directory's view of an account, as returned by the
// credential verifier.
type UserIdentity struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Registration is the input to the directory's identity creation path.
type Registration struct {
	Email    string
	Username string
	Password string
	Roles    []string
}

// Principal is the verified caller of an authorized operation, decoded from
// an access token and confirmed against a live session.
type Principal struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	SessionID   string   `json:"session_id"`
}

// HasRole reports whether the principal currently holds the named role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// LoginResult is the outcome of a successful login or registration.
type LoginResult struct {
	User            *UserIdentity `json:"user"`
	AccessToken     string        `json:"access_token"`
	RefreshToken    string        `json:"refresh_token"`
	SessionID       string        `json:"session_id"`
	AccessExpiresAt time.Time     `json:"access_expires_at"`
}
