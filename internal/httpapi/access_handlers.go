package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mockilo/MockAuth-sub001/internal/audit"
	"github.com/mockilo/MockAuth-sub001/internal/auth"
	"github.com/mockilo/MockAuth-sub001/internal/obs"
	"github.com/mockilo/MockAuth-sub001/internal/rbac"
)

const adminRole = "admin"

type accessCheckRequest struct {
	Action     string         `json:"action"`
	ResourceID string         `json:"resource_id"`
	Context    map[string]any `json:"context"`
}

type createPermissionRequest struct {
	Resource   string           `json:"resource"`
	Action     string           `json:"action"`
	Conditions []rbac.Condition `json:"conditions"`
}

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	Inherits    []string `json:"inherits"`
}

type createPolicyRequest struct {
	Name     string            `json:"name"`
	Rules    []rbac.PolicyRule `json:"rules"`
	Priority int               `json:"priority"`
	Enabled  *bool             `json:"enabled"`
}

type createResourceRequest struct {
	Type  string `json:"type"`
	Owner string `json:"owner"`
}

// handleAccessCheck evaluates whether the calling principal may perform the
// requested action on the named resource.
func (a *API) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req accessCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Action = strings.TrimSpace(req.Action)
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	if req.Action == "" || req.ResourceID == "" {
		writeError(w, r, http.StatusBadRequest, "action and resource_id are required")
		return
	}

	decision := a.engine.CheckPermission(rbac.Principal{
		ID:    principal.UserID,
		Roles: principal.Roles,
	}, req.Action, req.ResourceID, req.Context)

	obs.ObserveAccessDecision(decision.Allowed, decision.Source)
	_ = audit.LogEvent(r.Context(), "access.check", map[string]any{
		"action":      req.Action,
		"resource_id": req.ResourceID,
		"allowed":     decision.Allowed,
		"source":      decision.Source,
	})
	writeJSON(w, http.StatusOK, decision)
}

func (a *API) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireRole(w, r, adminRole) {
		return
	}
	var req createPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := a.engine.CreatePermission(req.Resource, req.Action, req.Conditions)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	_ = audit.LogEvent(r.Context(), "access.permission.create", map[string]any{
		"permission_id": perm.ID,
		"resource":      perm.Resource,
		"action":        perm.Action,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/access/permissions/%s", perm.ID))
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireRole(w, r, adminRole) {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.engine.CreateRole(req.Name, req.Description, req.Permissions, req.Inherits)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	_ = audit.LogEvent(r.Context(), "access.role.create", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/access/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireRole(w, r, adminRole) {
		return
	}
	var req createPolicyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	policy, err := a.engine.CreatePolicy(req.Name, req.Rules, req.Priority, enabled)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	_ = audit.LogEvent(r.Context(), "access.policy.create", map[string]any{
		"policy_id": policy.ID,
		"name":      policy.Name,
		"priority":  policy.Priority,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/access/policies/%s", policy.ID))
	writeJSON(w, http.StatusCreated, policy)
}

func (a *API) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireRole(w, r, adminRole) {
		return
	}
	var req createResourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.engine.CreateResource(req.Type, req.Owner)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	_ = audit.LogEvent(r.Context(), "access.resource.create", map[string]any{
		"resource_id": res.ID,
		"type":        res.Type,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/access/resources/%s", res.ID))
	writeJSON(w, http.StatusCreated, res)
}

// requireRole rejects the request unless the principal holds the role.
func (a *API) requireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !principal.HasRole(role) {
		writeError(w, r, http.StatusForbidden, fmt.Sprintf("%s role required", role))
		return false
	}
	return true
}
