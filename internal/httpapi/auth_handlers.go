package httpapi

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mockilo/MockAuth-sub001/internal/audit"
	"github.com/mockilo/MockAuth-sub001/internal/auth"
	"github.com/mockilo/MockAuth-sub001/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device"`
}

type registerRequest struct {
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Login(r.Context(), req.Email, req.Password, auth.LoginMetadata{
		Device:    strings.TrimSpace(req.Device),
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		a.handleLoginError(w, r, req.Email, err)
		return
	}

	obs.ObserveLogin("success")
	obs.SetActiveSessions(a.svc.Sessions().Len())
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"email":      result.User.Email,
		"user_id":    result.User.ID,
		"session_id": result.SessionID,
		"outcome":    "success",
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLoginError(w http.ResponseWriter, r *http.Request, email string, err error) {
	var locked *auth.LockedError
	var creds *auth.CredentialsError
	switch {
	case errors.As(err, &locked):
		obs.ObserveLogin("locked")
		_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
			"email": email, "outcome": "locked",
		})
		payload := map[string]any{
			"error":        "account temporarily locked",
			"locked_until": locked.LockedUntil.UTC().Format(time.RFC3339),
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusLocked, payload)
	case errors.As(err, &creds):
		obs.ObserveLogin("invalid_credentials")
		_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
			"email": email, "outcome": "invalid_credentials",
		})
		payload := map[string]any{
			"error":              "invalid credentials",
			"attempts_remaining": creds.AttemptsRemaining,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusUnauthorized, payload)
	case errors.Is(err, auth.ErrInvalidCredentials):
		obs.ObserveLogin("invalid_credentials")
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrAccountDeactivated):
		obs.ObserveLogin("deactivated")
		_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
			"email": email, "outcome": "deactivated",
		})
		writeError(w, r, http.StatusForbidden, "account is deactivated")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		obs.ObserveLogin("error")
		writeError(w, r, http.StatusInternalServerError, "login failed")
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Register(r.Context(), auth.Registration{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Roles:    req.Roles,
	}, auth.LoginMetadata{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "email is already registered")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	obs.SetActiveSessions(a.svc.Sessions().Len())
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"email":   result.User.Email,
		"user_id": result.User.ID,
	})
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, expiresAt, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidRefreshToken), errors.Is(err, auth.ErrSessionInactive):
			writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		default:
			writeError(w, r, http.StatusInternalServerError, "refresh failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	removed := a.svc.Logout(principal.SessionID)
	obs.SetActiveSessions(a.svc.Sessions().Len())
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"session_id": principal.SessionID,
		"removed":    removed,
	})
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": removed})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	token, _ := auth.TokenFromContext(r.Context())
	user, err := a.svc.CurrentUser(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken):
			writeError(w, r, http.StatusUnauthorized, "invalid token")
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "user not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "lookup failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       user,
		"session_id": principal.SessionID,
	})
}

// handleSessions lists the caller's sessions on GET; DELETE revokes every
// session except the one making the request.
func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		sessions := a.svc.GetUserSessions(principal.UserID)
		writeJSON(w, http.StatusOK, map[string]any{
			"sessions": sessions,
			"count":    len(sessions),
		})
	case http.MethodDelete:
		removed := a.svc.RevokeAllOtherSessions(principal.UserID, principal.SessionID)
		obs.SetActiveSessions(a.svc.Sessions().Len())
		_ = audit.LogEvent(r.Context(), "auth.sessions.revoke_others", map[string]any{
			"removed": removed,
		})
		writeJSON(w, http.StatusOK, map[string]any{"revoked": removed})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleSessionScoped(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/auth/sessions/"), "/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}

	if err := a.svc.RevokeSession(sessionID, principal.UserID); err != nil {
		switch {
		case errors.Is(err, auth.ErrSessionNotFound):
			writeError(w, r, http.StatusNotFound, "session not found")
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, r, http.StatusForbidden, "session belongs to another user")
		default:
			writeError(w, r, http.StatusInternalServerError, "revoke failed")
		}
		return
	}
	obs.SetActiveSessions(a.svc.Sessions().Len())
	_ = audit.LogEvent(r.Context(), "auth.sessions.revoke", map[string]any{
		"session_id": sessionID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For support (first IP)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
