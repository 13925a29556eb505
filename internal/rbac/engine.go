package rbac

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mockilo/MockAuth-sub001/internal/ids"
)

// Engine holds the policy, role, permission, and resource collections and
// evaluates access decisions over them. Collections are append-only; removal
// belongs to a surrounding administrative layer.
type Engine struct {
	mu          sync.RWMutex
	cfg         Config
	permissions map[string]*Permission
	roles       map[string]*Role
	rolesByName map[string]string // role name -> role id
	policies    map[string]*Policy
	policyOrder []string // creation order, the tiebreak within a priority
	resources   map[string]*Resource
	idgen       *ids.Generator
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator overrides the entity id generator.
func WithIDGenerator(g *ids.Generator) Option {
	return func(e *Engine) {
		if g != nil {
			e.idgen = g
		}
	}
}

// NewEngine constructs an empty Engine with the given config.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		permissions: make(map[string]*Permission),
		roles:       make(map[string]*Role),
		rolesByName: make(map[string]string),
		policies:    make(map[string]*Policy),
		resources:   make(map[string]*Resource),
		idgen:       ids.NewGenerator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpdateConfig hot-swaps the evaluation config; effective on the next check.
func (e *Engine) UpdateConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

// CreatePermission inserts a permission and returns it with a fresh id.
func (e *Engine) CreatePermission(resource, action string, conds []Condition) (Permission, error) {
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if resource == "" || action == "" {
		return Permission{}, fmt.Errorf("rbac: resource and action are required")
	}
	perm := Permission{
		ID:         e.idgen.NewPrefixed("perm"),
		Resource:   resource,
		Action:     action,
		Conditions: conds,
	}
	e.mu.Lock()
	e.permissions[perm.ID] = &perm
	e.mu.Unlock()
	return perm, nil
}

// CreateRole inserts a role and returns it with a fresh id. Inherits entries
// may reference roles created later; unresolvable entries are skipped during
// evaluation.
func (e *Engine) CreateRole(name, description string, permissions, inherits []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("rbac: role name is required")
	}
	role := Role{
		ID:          e.idgen.NewPrefixed("role"),
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: permissions,
		Inherits:    inherits,
	}
	e.mu.Lock()
	e.roles[role.ID] = &role
	e.rolesByName[role.Name] = role.ID
	e.mu.Unlock()
	return role, nil
}

// CreatePolicy inserts a policy and returns it with a fresh id.
func (e *Engine) CreatePolicy(name string, rules []PolicyRule, priority int, enabled bool) (Policy, error) {
	if len(rules) == 0 {
		return Policy{}, fmt.Errorf("rbac: at least one rule is required")
	}
	for _, rule := range rules {
		if rule.Effect != EffectAllow && rule.Effect != EffectDeny {
			return Policy{}, fmt.Errorf("rbac: unsupported effect %q", rule.Effect)
		}
	}
	policy := Policy{
		ID:       e.idgen.NewPrefixed("pol"),
		Name:     strings.TrimSpace(name),
		Rules:    rules,
		Priority: priority,
		Enabled:  enabled,
	}
	e.mu.Lock()
	e.policies[policy.ID] = &policy
	e.policyOrder = append(e.policyOrder, policy.ID)
	e.mu.Unlock()
	return policy, nil
}

// CreateResource inserts a resource and returns it with a fresh id.
func (e *Engine) CreateResource(resourceType, owner string) (Resource, error) {
	resourceType = strings.TrimSpace(resourceType)
	if resourceType == "" {
		return Resource{}, fmt.Errorf("rbac: resource type is required")
	}
	res := Resource{
		ID:    e.idgen.NewPrefixed("res"),
		Type:  resourceType,
		Owner: strings.TrimSpace(owner),
	}
	e.mu.Lock()
	e.resources[res.ID] = &res
	e.mu.Unlock()
	return res, nil
}

// GetResource returns the resource by id.
func (e *Engine) GetResource(id string) (Resource, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	res, ok := e.resources[id]
	if !ok {
		return Resource{}, false
	}
	return *res, true
}

// CheckPermission resolves the resource by id and evaluates the decision.
// An unresolvable resource denies (fail-closed).
func (e *Engine) CheckPermission(p Principal, action, resourceID string, ctx map[string]any) AccessDecision {
	e.mu.RLock()
	defer e.mu.RUnlock()
	res, ok := e.resources[resourceID]
	if !ok {
		return AccessDecision{
			Allowed: false,
			Reason:  "Resource not found",
			Source:  SourceResourceNotFound,
		}
	}
	return e.evaluate(p, action, *res, ctx)
}

// CheckResource evaluates the decision against a caller-supplied resource
// that need not exist in the engine's collection.
func (e *Engine) CheckResource(p Principal, action string, res Resource, ctx map[string]any) AccessDecision {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.evaluate(p, action, res, ctx)
}

// evaluate runs the fixed decision order: policies by descending priority
// (first matching rule wins and short-circuits roles entirely), then role
// permissions (a role before its inherited roles), then resource ownership,
// then the configured default. Caller holds at least a read lock.
func (e *Engine) evaluate(p Principal, action string, res Resource, ctx map[string]any) AccessDecision {
	if !e.cfg.DisablePolicies {
		if decision, ok := e.evaluatePolicies(p, action, res, ctx); ok {
			return decision
		}
	}

	if decision, ok := e.evaluateRoles(p, action, res, ctx); ok {
		return decision
	}

	if !e.cfg.DisableOwnership && res.Owner != "" && res.Owner == p.ID {
		return AccessDecision{
			Allowed: true,
			Reason:  "Resource owner",
			Source:  SourceOwner,
		}
	}

	if e.cfg.DefaultAllow {
		return AccessDecision{
			Allowed: true,
			Reason:  "Default allow",
			Source:  SourceDefault,
		}
	}
	return AccessDecision{
		Allowed: false,
		Reason:  "No matching policy or permission",
		Source:  SourceDefault,
	}
}

func (e *Engine) evaluatePolicies(p Principal, action string, res Resource, ctx map[string]any) (AccessDecision, bool) {
	ordered := make([]*Policy, 0, len(e.policyOrder))
	for _, id := range e.policyOrder {
		policy := e.policies[id]
		if policy.Enabled {
			ordered = append(ordered, policy)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	for _, policy := range ordered {
		for _, rule := range policy.Rules {
			if !e.ruleMatches(rule, p, action, res, ctx) {
				continue
			}
			allowed := rule.Effect == EffectAllow
			reason := "Denied by policy"
			if allowed {
				reason = "Allowed by policy"
			}
			return AccessDecision{
				Allowed:         allowed,
				Reason:          reason,
				Source:          SourcePolicy,
				MatchedPolicies: []string{policy.ID},
			}, true
		}
	}
	return AccessDecision{}, false
}

func (e *Engine) ruleMatches(rule PolicyRule, p Principal, action string, res Resource, ctx map[string]any) bool {
	if !anySubjectMatches(rule.Subjects, p) {
		return false
	}
	if !anyResourceMatches(rule.Resources, res) {
		return false
	}
	if !anyActionMatches(rule.Actions, action) {
		return false
	}
	return evalConditions(rule.Conditions, ctx)
}

func anySubjectMatches(patterns []string, p Principal) bool {
	for _, pattern := range patterns {
		if matchSubject(pattern, p) {
			return true
		}
	}
	return false
}

func anyResourceMatches(patterns []string, res Resource) bool {
	for _, pattern := range patterns {
		if matchResource(pattern, res) {
			return true
		}
	}
	return false
}

func anyActionMatches(patterns []string, action string) bool {
	for _, pattern := range patterns {
		if matchAction(pattern, action) {
			return true
		}
	}
	return false
}

func (e *Engine) evaluateRoles(p Principal, action string, res Resource, ctx map[string]any) (AccessDecision, bool) {
	visited := make(map[string]struct{})
	for _, name := range p.Roles {
		roleID, ok := e.rolesByName[name]
		if !ok {
			continue
		}
		if decision, ok := e.evaluateRole(roleID, action, res, ctx, visited); ok {
			return decision, true
		}
	}
	return AccessDecision{}, false
}

// evaluateRole checks the role's own permissions before walking its
// inheritance edges. The visited set guards against cycles in the role graph.
func (e *Engine) evaluateRole(roleID, action string, res Resource, ctx map[string]any, visited map[string]struct{}) (AccessDecision, bool) {
	if _, seen := visited[roleID]; seen {
		return AccessDecision{}, false
	}
	visited[roleID] = struct{}{}

	role, ok := e.roles[roleID]
	if !ok {
		return AccessDecision{}, false
	}
	for _, permID := range role.Permissions {
		perm, ok := e.permissions[permID]
		if !ok {
			continue
		}
		if e.permissionMatches(*perm, action, res, ctx) {
			return AccessDecision{
				Allowed:            true,
				Reason:             fmt.Sprintf("Granted by role %s", role.Name),
				Source:             SourceRole,
				MatchedRoles:       []string{role.ID},
				MatchedPermissions: []string{perm.ID},
			}, true
		}
	}
	if e.cfg.DisableHierarchy {
		return AccessDecision{}, false
	}
	for _, inherited := range role.Inherits {
		inheritedID := inherited
		if _, ok := e.roles[inheritedID]; !ok {
			// Inherits entries may name the role instead of its id.
			inheritedID, ok = e.rolesByName[inherited]
			if !ok {
				continue
			}
		}
		if decision, ok := e.evaluateRole(inheritedID, action, res, ctx, visited); ok {
			return decision, true
		}
	}
	return AccessDecision{}, false
}

func (e *Engine) permissionMatches(perm Permission, action string, res Resource, ctx map[string]any) bool {
	if !matchResource(perm.Resource, res) {
		return false
	}
	if !matchAction(perm.Action, action) {
		return false
	}
	return evalConditions(perm.Conditions, ctx)
}
