package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mockilo/MockAuth-sub001/internal/audit"
	"github.com/mockilo/MockAuth-sub001/internal/lockout"
)

type unlockRequest struct {
	Identity string `json:"identity"`
	Reason   string `json:"reason"`
}

func (a *API) handleLockoutStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireRole(w, r, adminRole) {
		return
	}
	if a.guard == nil {
		writeError(w, r, http.StatusServiceUnavailable, "lockout guard disabled")
		return
	}
	writeJSON(w, http.StatusOK, a.guard.Stats())
}

func (a *API) handleLockoutUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireRole(w, r, adminRole) {
		return
	}
	if a.guard == nil {
		writeError(w, r, http.StatusServiceUnavailable, "lockout guard disabled")
		return
	}
	var req unlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Identity = strings.TrimSpace(req.Identity)
	if req.Identity == "" {
		writeError(w, r, http.StatusBadRequest, "identity is required")
		return
	}

	unlockedBy := "admin"
	if principal, ok := principalFrom(r); ok {
		unlockedBy = principal.UserID
	}
	if err := a.guard.Unlock(req.Identity, unlockedBy, req.Reason); err != nil {
		if errors.Is(err, lockout.ErrNotLocked) {
			writeError(w, r, http.StatusNotFound, "identity has no lockout record")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "unlock failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "lockout.unlock", map[string]any{
		"identity":    req.Identity,
		"unlocked_by": unlockedBy,
		"reason":      req.Reason,
	})
	writeJSON(w, http.StatusOK, map[string]any{"unlocked": true})
}
