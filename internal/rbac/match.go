package rbac

import (
	"reflect"
	"regexp"
	"strings"
)

const rolePrefix = "role:"

// matchSubject reports whether a policy subject pattern covers the principal:
// "*" matches anyone, an exact principal id matches, and "role:<name>"
// matches when the principal currently holds that role name.
func matchSubject(pattern string, p Principal) bool {
	if pattern == "*" {
		return true
	}
	if pattern == p.ID {
		return true
	}
	if name, ok := strings.CutPrefix(pattern, rolePrefix); ok {
		for _, role := range p.Roles {
			if role == name {
				return true
			}
		}
	}
	return false
}

// matchResource reports whether a resource pattern covers the resource:
// "*" matches anything, an exact id or exact type matches, and a pattern
// containing "*" is compiled to a regular expression (each "*" becomes ".*")
// tested against both the id and the type — either matching suffices.
func matchResource(pattern string, res Resource) bool {
	if pattern == "*" {
		return true
	}
	if pattern == res.ID || pattern == res.Type {
		return true
	}
	if strings.Contains(pattern, "*") {
		re, err := compileWildcard(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(res.ID) || re.MatchString(res.Type)
	}
	return false
}

// matchAction mirrors resource matching for action patterns.
func matchAction(pattern, action string) bool {
	if pattern == "*" || pattern == action {
		return true
	}
	if strings.Contains(pattern, "*") {
		re, err := compileWildcard(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(action)
	}
	return false
}

func compileWildcard(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^" + strings.ReplaceAll(pattern, "*", ".*") + "$")
}

// evalConditions is a conjunction: every condition must hold against the
// context map. An unknown operator evaluates to false.
func evalConditions(conds []Condition, ctx map[string]any) bool {
	for _, cond := range conds {
		if !evalCondition(cond, ctx) {
			return false
		}
	}
	return true
}

func evalCondition(cond Condition, ctx map[string]any) bool {
	got, present := ctx[cond.Field]
	switch cond.Operator {
	case "equals":
		return present && reflect.DeepEqual(got, cond.Value)
	case "not_equals":
		return !present || !reflect.DeepEqual(got, cond.Value)
	case "in":
		isSeq, found := sequenceLookup(cond.Value, got)
		return isSeq && found
	case "not_in":
		isSeq, found := sequenceLookup(cond.Value, got)
		return isSeq && !found
	case "contains":
		s, want, ok := stringPair(got, cond.Value)
		return ok && strings.Contains(s, want)
	case "starts_with":
		s, want, ok := stringPair(got, cond.Value)
		return ok && strings.HasPrefix(s, want)
	case "ends_with":
		s, want, ok := stringPair(got, cond.Value)
		return ok && strings.HasSuffix(s, want)
	default:
		return false
	}
}

// sequenceLookup reports whether value is a sequence and, if so, whether it
// contains element. Non-sequence values fail the enclosing condition.
func sequenceLookup(value, element any) (isSeq, found bool) {
	switch seq := value.(type) {
	case []any:
		for _, v := range seq {
			if reflect.DeepEqual(v, element) {
				return true, true
			}
		}
		return true, false
	case []string:
		s, ok := element.(string)
		if !ok {
			return true, false
		}
		for _, v := range seq {
			if v == s {
				return true, true
			}
		}
		return true, false
	default:
		return false, false
	}
}

func stringPair(got, want any) (string, string, bool) {
	s, ok := got.(string)
	if !ok {
		return "", "", false
	}
	w, ok := want.(string)
	if !ok {
		return "", "", false
	}
	return s, w, true
}
