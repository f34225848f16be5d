package permission

import (
	"fmt"
	"time"

	"crmgate.io/internal/apperr"
)

// expand widens an entity's action set along the privilege chain: delete
// implies write, write implies read. Import and export pass through.
func expand(flags map[string]bool) map[string]bool {
	out := make(map[string]bool, len(flags))
	for action, on := range flags {
		if on {
			out[action] = true
		}
	}
	if out[ActionDelete] {
		out[ActionWrite] = true
	}
	if out[ActionWrite] {
		out[ActionRead] = true
	}
	return out
}

// accessLabel folds the two channel flags into the stored label.
func accessLabel(flags AccessFlags) string {
	switch {
	case flags.Web && flags.API:
		return AccessAll
	case flags.Web:
		return AccessWeb
	default:
		return AccessAPI
	}
}

// Reconcile turns a requested permission tree into per-scope write sets.
// Unknown scopes are skipped. A scope with both access flags off becomes a
// bare delete. A scope with access but an empty permission map, or whose
// expanded tree leaves no entity readable, is a contradiction and fails the
// whole request. Entities without read after expansion are dropped rather
// than stored.
func Reconcile(userID int64, req map[string]ScopeRequest, now time.Time) ([]ScopeChange, error) {
	var changes []ScopeChange
	for _, scope := range scopes {
		sr, ok := req[scope]
		if !ok {
			continue
		}
		change, err := reconcileScope(userID, scope, sr, now)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func reconcileScope(userID int64, scope string, sr ScopeRequest, now time.Time) (ScopeChange, error) {
	change := ScopeChange{Scope: scope}
	if !sr.Access.Web && !sr.Access.API {
		return change, nil
	}
	if len(sr.Permissions) == 0 {
		return change, fmt.Errorf("%w: cannot grant access without any permissions", apperr.ErrLogic)
	}

	expanded := make(map[string]map[string]bool, len(entities[scope]))
	for _, entity := range entities[scope] {
		expanded[entity] = expand(sr.Permissions[entity])
	}

	access := accessLabel(sr.Access)
	anyRead := false
	for _, entity := range entities[scope] {
		flags := expanded[entity]
		if !flags[ActionRead] {
			continue
		}
		anyRead = true
		enabled := make([]string, 0, len(flags))
		for _, action := range actions {
			if flags[action] {
				enabled = append(enabled, action)
			}
		}
		change.Grants = append(change.Grants, Grant{
			UserID:    userID,
			Scope:     scope,
			Access:    access,
			Entity:    entity,
			Actions:   enabled,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if !anyRead {
		return ScopeChange{Scope: scope}, fmt.Errorf("%w: at least one entity must have read permission when access is granted", apperr.ErrLogic)
	}
	return change, nil
}
