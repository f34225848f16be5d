package user

import (
	"sort"
	"strings"
)

// Coarse roles. ADMIN, API_USER and WEB_USER each subsume USER.
const (
	RoleAdmin   = "ROLE_ADMIN"
	RoleUser    = "ROLE_USER"
	RoleAPIUser = "ROLE_API_USER"
	RoleWebUser = "ROLE_WEB_USER"
)

// Hierarchy maps a role to the roles it directly reaches. Loaded once at
// startup and treated as immutable afterwards.
type Hierarchy map[string][]string

// DefaultHierarchy returns the built-in role reachability map.
func DefaultHierarchy() Hierarchy {
	return Hierarchy{
		RoleAdmin:   {RoleUser, RoleAPIUser, RoleWebUser},
		RoleAPIUser: {RoleUser},
		RoleWebUser: {RoleUser},
	}
}

// Reachable returns every role transitively reachable from the given role,
// excluding the role itself.
func (h Hierarchy) Reachable(role string) map[string]struct{} {
	out := make(map[string]struct{})
	var walk func(string)
	walk = func(r string) {
		for _, next := range h[r] {
			if _, seen := out[next]; seen {
				continue
			}
			out[next] = struct{}{}
			walk(next)
		}
	}
	walk(role)
	return out
}

// Collapse removes redundant roles from the set: a role is redundant when it
// is reachable from another role already present. The result is deduplicated
// and sorted; collapsing an already-collapsed set is a no-op.
func (h Hierarchy) Collapse(roles []string) []string {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		set[r] = struct{}{}
	}

	covered := make(map[string]struct{})
	for r := range set {
		for reached := range h.Reachable(r) {
			if reached == r {
				continue
			}
			covered[reached] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for r := range set {
		if _, redundant := covered[r]; redundant {
			continue
		}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
