package rbac

import "testing"

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	return NewEngine(cfg)
}

func mustPermission(t *testing.T, e *Engine, resource, action string, conds []Condition) Permission {
	t.Helper()
	perm, err := e.CreatePermission(resource, action, conds)
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	return perm
}

func mustRole(t *testing.T, e *Engine, name string, permissions, inherits []string) Role {
	t.Helper()
	role, err := e.CreateRole(name, "", permissions, inherits)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	return role
}

func mustPolicy(t *testing.T, e *Engine, name string, rules []PolicyRule, priority int) Policy {
	t.Helper()
	policy, err := e.CreatePolicy(name, rules, priority, true)
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	return policy
}

func mustResource(t *testing.T, e *Engine, resourceType, owner string) Resource {
	t.Helper()
	res, err := e.CreateResource(resourceType, owner)
	if err != nil {
		t.Fatalf("CreateResource: %v", err)
	}
	return res
}

func TestCheckPermissionUnknownResourceDenies(t *testing.T) {
	e := newTestEngine(t, Config{})
	dec := e.CheckPermission(Principal{ID: "user_1"}, "read", "res_missing", nil)
	if dec.Allowed {
		t.Fatalf("expected deny for unknown resource")
	}
	if dec.Source != SourceResourceNotFound {
		t.Fatalf("source = %q, want %q", dec.Source, SourceResourceNotFound)
	}
	if dec.Reason != "Resource not found" {
		t.Fatalf("reason = %q", dec.Reason)
	}
}

func TestDefaultDenyAndDefaultAllow(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")

	dec := e.CheckPermission(Principal{ID: "user_1"}, "read", res.ID, nil)
	if dec.Allowed || dec.Source != SourceDefault {
		t.Fatalf("expected default deny, got %+v", dec)
	}

	e.UpdateConfig(Config{DefaultAllow: true})
	dec = e.CheckPermission(Principal{ID: "user_1"}, "read", res.ID, nil)
	if !dec.Allowed || dec.Source != SourceDefault {
		t.Fatalf("expected default allow, got %+v", dec)
	}
}

func TestOwnershipAllows(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "user_1")

	dec := e.CheckPermission(Principal{ID: "user_1"}, "delete", res.ID, nil)
	if !dec.Allowed || dec.Source != SourceOwner {
		t.Fatalf("expected owner allow, got %+v", dec)
	}

	dec = e.CheckPermission(Principal{ID: "user_2"}, "delete", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("non-owner must not be allowed by ownership")
	}

	e.UpdateConfig(Config{DisableOwnership: true})
	dec = e.CheckPermission(Principal{ID: "user_1"}, "delete", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("ownership disabled, expected deny, got %+v", dec)
	}
}

func TestRolePermissionGrant(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")
	perm := mustPermission(t, e, "document", "read", nil)
	role := mustRole(t, e, "viewer", []string{perm.ID}, nil)

	dec := e.CheckPermission(Principal{ID: "user_1", Roles: []string{"viewer"}}, "read", res.ID, nil)
	if !dec.Allowed || dec.Source != SourceRole {
		t.Fatalf("expected role grant, got %+v", dec)
	}
	if len(dec.MatchedRoles) != 1 || dec.MatchedRoles[0] != role.ID {
		t.Fatalf("matched roles = %v", dec.MatchedRoles)
	}
	if len(dec.MatchedPermissions) != 1 || dec.MatchedPermissions[0] != perm.ID {
		t.Fatalf("matched permissions = %v", dec.MatchedPermissions)
	}

	dec = e.CheckPermission(Principal{ID: "user_1", Roles: []string{"viewer"}}, "write", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("viewer must not write")
	}
	dec = e.CheckPermission(Principal{ID: "user_1"}, "read", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("principal without the role must be denied")
	}
}

func TestWildcardPermission(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")
	perm := mustPermission(t, e, "*", "*", nil)
	mustRole(t, e, "admin", []string{perm.ID}, nil)

	for _, action := range []string{"read", "write", "delete"} {
		dec := e.CheckPermission(Principal{ID: "user_1", Roles: []string{"admin"}}, action, res.ID, nil)
		if !dec.Allowed {
			t.Fatalf("admin denied %q: %+v", action, dec)
		}
	}
}

func TestRoleInheritance(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")
	readPerm := mustPermission(t, e, "document", "read", nil)
	viewer := mustRole(t, e, "viewer", []string{readPerm.ID}, nil)
	mustRole(t, e, "editor", nil, []string{viewer.ID})

	dec := e.CheckPermission(Principal{ID: "user_1", Roles: []string{"editor"}}, "read", res.ID, nil)
	if !dec.Allowed || dec.Source != SourceRole {
		t.Fatalf("inherited permission not granted: %+v", dec)
	}
	if len(dec.MatchedRoles) != 1 || dec.MatchedRoles[0] != viewer.ID {
		t.Fatalf("grant should be attributed to the inherited role, got %v", dec.MatchedRoles)
	}
}

func TestRoleInheritanceByName(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")
	perm := mustPermission(t, e, "document", "read", nil)
	mustRole(t, e, "viewer", []string{perm.ID}, nil)
	mustRole(t, e, "editor", nil, []string{"viewer"})

	dec := e.CheckPermission(Principal{ID: "user_1", Roles: []string{"editor"}}, "read", res.ID, nil)
	if !dec.Allowed {
		t.Fatalf("name-based inheritance not resolved: %+v", dec)
	}
}

func TestRoleInheritanceCycleTerminates(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")
	a := mustRole(t, e, "a", nil, []string{"b"})
	mustRole(t, e, "b", nil, []string{a.ID})

	dec := e.CheckPermission(Principal{ID: "user_1", Roles: []string{"a"}}, "read", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("cyclic empty roles must not grant anything")
	}
}

func TestHierarchyDisabled(t *testing.T) {
	e := newTestEngine(t, Config{DisableHierarchy: true})
	res := mustResource(t, e, "document", "")
	perm := mustPermission(t, e, "document", "read", nil)
	viewer := mustRole(t, e, "viewer", []string{perm.ID}, nil)
	mustRole(t, e, "editor", nil, []string{viewer.ID})

	dec := e.CheckPermission(Principal{ID: "user_1", Roles: []string{"editor"}}, "read", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("inheritance disabled, editor must be denied")
	}
	dec = e.CheckPermission(Principal{ID: "user_1", Roles: []string{"viewer"}}, "read", res.ID, nil)
	if !dec.Allowed {
		t.Fatalf("directly held role must still grant")
	}
}

func TestPolicyDenyOverridesRoleAllow(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")
	perm := mustPermission(t, e, "document", "delete", nil)
	mustRole(t, e, "admin", []string{perm.ID}, nil)
	policy := mustPolicy(t, e, "freeze-deletes", []PolicyRule{{
		Effect:    EffectDeny,
		Subjects:  []string{"*"},
		Resources: []string{"document"},
		Actions:   []string{"delete"},
	}}, 100)

	dec := e.CheckPermission(Principal{ID: "user_1", Roles: []string{"admin"}}, "delete", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("policy deny must override role allow")
	}
	if dec.Source != SourcePolicy {
		t.Fatalf("source = %q, want %q", dec.Source, SourcePolicy)
	}
	if len(dec.MatchedPolicies) != 1 || dec.MatchedPolicies[0] != policy.ID {
		t.Fatalf("matched policies = %v", dec.MatchedPolicies)
	}

	// The deny binds only what it names; reads still fall through to roles.
	readPerm := mustPermission(t, e, "document", "read", nil)
	mustRole(t, e, "viewer", []string{readPerm.ID}, nil)
	dec = e.CheckPermission(Principal{ID: "user_1", Roles: []string{"viewer"}}, "read", res.ID, nil)
	if !dec.Allowed || dec.Source != SourceRole {
		t.Fatalf("read should pass through to role evaluation: %+v", dec)
	}
}

func TestPolicyPriorityOrder(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")

	mustPolicy(t, e, "low-allow", []PolicyRule{{
		Effect:    EffectAllow,
		Subjects:  []string{"*"},
		Resources: []string{"*"},
		Actions:   []string{"*"},
	}}, 1)
	high := mustPolicy(t, e, "high-deny", []PolicyRule{{
		Effect:    EffectDeny,
		Subjects:  []string{"*"},
		Resources: []string{"*"},
		Actions:   []string{"*"},
	}}, 10)

	dec := e.CheckPermission(Principal{ID: "user_1"}, "read", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("higher-priority deny must win")
	}
	if len(dec.MatchedPolicies) != 1 || dec.MatchedPolicies[0] != high.ID {
		t.Fatalf("matched policies = %v", dec.MatchedPolicies)
	}
}

func TestDisabledPolicySkipped(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")
	if _, err := e.CreatePolicy("dormant", []PolicyRule{{
		Effect:    EffectAllow,
		Subjects:  []string{"*"},
		Resources: []string{"*"},
		Actions:   []string{"*"},
	}}, 100, false); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	dec := e.CheckPermission(Principal{ID: "user_1"}, "read", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("disabled policy must not grant")
	}
}

func TestPoliciesDisabledEntirely(t *testing.T) {
	e := newTestEngine(t, Config{DisablePolicies: true})
	res := mustResource(t, e, "document", "")
	mustPolicy(t, e, "allow-all", []PolicyRule{{
		Effect:    EffectAllow,
		Subjects:  []string{"*"},
		Resources: []string{"*"},
		Actions:   []string{"*"},
	}}, 1)

	dec := e.CheckPermission(Principal{ID: "user_1"}, "read", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("policy evaluation disabled, expected default deny")
	}
}

func TestPolicyRuleConditions(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")
	mustPolicy(t, e, "engineering-only", []PolicyRule{{
		Effect:    EffectAllow,
		Subjects:  []string{"*"},
		Resources: []string{"document"},
		Actions:   []string{"read"},
		Conditions: []Condition{
			{Field: "department", Operator: "equals", Value: "engineering"},
		},
	}}, 1)

	dec := e.CheckPermission(Principal{ID: "user_1"}, "read", res.ID, map[string]any{"department": "engineering"})
	if !dec.Allowed {
		t.Fatalf("condition satisfied, expected allow: %+v", dec)
	}
	dec = e.CheckPermission(Principal{ID: "user_1"}, "read", res.ID, map[string]any{"department": "sales"})
	if dec.Allowed {
		t.Fatalf("condition unsatisfied, expected deny")
	}
	dec = e.CheckPermission(Principal{ID: "user_1"}, "read", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("missing context field, expected deny")
	}
}

func TestPolicySubjectRolePattern(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")
	mustPolicy(t, e, "editors-write", []PolicyRule{{
		Effect:    EffectAllow,
		Subjects:  []string{"role:editor"},
		Resources: []string{"document"},
		Actions:   []string{"write"},
	}}, 1)

	dec := e.CheckPermission(Principal{ID: "user_1", Roles: []string{"editor"}}, "write", res.ID, nil)
	if !dec.Allowed {
		t.Fatalf("role subject pattern should match: %+v", dec)
	}
	dec = e.CheckPermission(Principal{ID: "user_2", Roles: []string{"viewer"}}, "write", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("viewer must not match role:editor subject")
	}
}

func TestFirstMatchingRuleWins(t *testing.T) {
	e := newTestEngine(t, Config{})
	res := mustResource(t, e, "document", "")
	mustPolicy(t, e, "mixed", []PolicyRule{
		{
			Effect:    EffectDeny,
			Subjects:  []string{"user_1"},
			Resources: []string{"*"},
			Actions:   []string{"*"},
		},
		{
			Effect:    EffectAllow,
			Subjects:  []string{"*"},
			Resources: []string{"*"},
			Actions:   []string{"*"},
		},
	}, 1)

	dec := e.CheckPermission(Principal{ID: "user_1"}, "read", res.ID, nil)
	if dec.Allowed {
		t.Fatalf("earlier deny rule must win for user_1")
	}
	dec = e.CheckPermission(Principal{ID: "user_2"}, "read", res.ID, nil)
	if !dec.Allowed {
		t.Fatalf("fallthrough allow rule must win for user_2")
	}
}

func TestCheckResourceWithoutRegistration(t *testing.T) {
	e := newTestEngine(t, Config{})
	perm := mustPermission(t, e, "report", "read", nil)
	mustRole(t, e, "analyst", []string{perm.ID}, nil)

	res := Resource{ID: "report_external", Type: "report"}
	dec := e.CheckResource(Principal{ID: "user_1", Roles: []string{"analyst"}}, "read", res, nil)
	if !dec.Allowed {
		t.Fatalf("caller-supplied resource should evaluate: %+v", dec)
	}
}

func TestCreateValidation(t *testing.T) {
	e := newTestEngine(t, Config{})
	if _, err := e.CreatePermission("", "read", nil); err == nil {
		t.Fatalf("expected error for empty resource")
	}
	if _, err := e.CreateRole("  ", "", nil, nil); err == nil {
		t.Fatalf("expected error for empty role name")
	}
	if _, err := e.CreatePolicy("p", nil, 0, true); err == nil {
		t.Fatalf("expected error for policy without rules")
	}
	if _, err := e.CreatePolicy("p", []PolicyRule{{Effect: "audit"}}, 0, true); err == nil {
		t.Fatalf("expected error for unsupported effect")
	}
	if _, err := e.CreateResource("", ""); err == nil {
		t.Fatalf("expected error for empty resource type")
	}
}
