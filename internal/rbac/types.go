// Package rbac evaluates access-control decisions from explicit policies,
// role-based permissions, and resource ownership. It is independent of the
// session subsystem; callers supply the already-authenticated principal.
package rbac

// Condition is a single field/operator/value check evaluated against the
// request context map.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Permission is a fine-grained capability attached to roles.
type Permission struct {
	ID         string      `json:"id"`
	Resource   string      `json:"resource"`
	Action     string      `json:"action"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Role groups permissions and may inherit other roles. The inherits list
// forms a directed graph; traversal is visited-set guarded so cycles cannot
// loop.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Inherits    []string `json:"inherits,omitempty"`
}

// Effect is a policy rule outcome.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// PolicyRule matches subjects, resources, and actions, optionally gated by
// conditions. First matching rule wins.
type PolicyRule struct {
	Effect     string      `json:"effect"`
	Subjects   []string    `json:"subjects"`
	Resources  []string    `json:"resources"`
	Actions    []string    `json:"actions"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Policy is a prioritized set of rules. Higher priority evaluates first.
type Policy struct {
	ID       string       `json:"id"`
	Name     string       `json:"name,omitempty"`
	Rules    []PolicyRule `json:"rules"`
	Priority int          `json:"priority"`
	Enabled  bool         `json:"enabled"`
}

// Resource is a protected entity with an optional owner.
type Resource struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Owner string `json:"owner,omitempty"`
}

// Principal is the engine's view of the caller: an identity plus its
// currently held role names.
type Principal struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

// AccessDecision is produced fresh per evaluation and never stored.
type AccessDecision struct {
	Allowed            bool     `json:"allowed"`
	Reason             string   `json:"reason"`
	Source             string   `json:"source"`
	MatchedPolicies    []string `json:"matched_policies,omitempty"`
	MatchedRoles       []string `json:"matched_roles,omitempty"`
	MatchedPermissions []string `json:"matched_permissions,omitempty"`
}

// Decision sources, used as provenance and metric labels.
const (
	SourcePolicy           = "policy"
	SourceRole             = "role"
	SourceOwner            = "owner"
	SourceDefault          = "default"
	SourceResourceNotFound = "resource_not_found"
)

// Config controls evaluation behavior. Defaults (zero value after
// normalization): policies on, hierarchical roles on, ownership on,
// deny-by-default on.
type Config struct {
	// DisablePolicies skips explicit policy evaluation entirely.
	DisablePolicies bool
	// DisableHierarchy limits role resolution to directly held roles.
	DisableHierarchy bool
	// DisableOwnership skips the resource-owner check.
	DisableOwnership bool
	// DefaultAllow flips the final undecided outcome to allow.
	DefaultAllow bool
}
