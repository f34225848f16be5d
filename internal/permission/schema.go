// Package permission implements the per-scope permission model: a fixed
// two-level schema (scope -> entity -> action), the reconciliation that turns
// a requested permission tree into stored grant rows, and the read-side
// overlay that always returns the complete schema shape.
package permission

// Scopes. Only CRM is recognized today; requests for anything else are
// skipped, not rejected (validation happens upstream).
const ScopeCRM = "crm"

// Access labels describe the channel a scope is granted through.
const (
	AccessWeb = "web"
	AccessAPI = "api"
	AccessAll = "all"
)

// CRM entities.
const (
	EntityLead    = "lead"
	EntityContact = "contact"
	EntityDeal    = "deal"
)

// Actions, ordered from least to most privileged for the read/write/delete
// chain; import and export sit outside the hierarchy.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
	ActionImport = "import"
	ActionExport = "export"
)

var (
	scopes   = []string{ScopeCRM}
	entities = map[string][]string{
		ScopeCRM: {EntityLead, EntityContact, EntityDeal},
	}
	actions = []string{ActionRead, ActionWrite, ActionDelete, ActionImport, ActionExport}
)

// Scopes returns the recognized scope names.
func Scopes() []string { return append([]string(nil), scopes...) }

// Entities returns the entities known for a scope.
func Entities(scope string) []string { return append([]string(nil), entities[scope]...) }

// Actions returns all known actions.
func Actions() []string { return append([]string(nil), actions...) }

// KnownScope reports whether the scope is processed by the reconciler.
func KnownScope(scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AccessFlags are the channel-level grant flags for a scope.
type AccessFlags struct {
	Web bool `json:"web"`
	API bool `json:"api"`
}

// ScopeRequest is the requested permission tree for one scope.
type ScopeRequest struct {
	Access      AccessFlags                `json:"access"`
	Permissions map[string]map[string]bool `json:"permissions"`
}

// ScopeView is the fully-populated permission state for one scope.
type ScopeView struct {
	Access      AccessFlags                `json:"access"`
	Permissions map[string]map[string]bool `json:"permissions"`
}

// View is the complete permission state across all known scopes.
type View map[string]*ScopeView

// Template returns a View covering every known scope, entity and action with
// all flags false. Callers overlay stored grants on top so consumers never
// null-check missing entities.
func Template() View {
	view := make(View, len(scopes))
	for _, scope := range scopes {
		sv := &ScopeView{Permissions: make(map[string]map[string]bool, len(entities[scope]))}
		for _, entity := range entities[scope] {
			flags := make(map[string]bool, len(actions))
			for _, action := range actions {
				flags[action] = false
			}
			sv.Permissions[entity] = flags
		}
		view[scope] = sv
	}
	return view
}

// Overlay applies stored grants onto a template. Access labels OR-merge
// ("all" sets both flags); action flags flip to true wherever a grant
// enables them. Grants for unknown scopes or entities are ignored.
func Overlay(view View, grants []Grant) View {
	for _, g := range grants {
		sv, ok := view[g.Scope]
		if !ok {
			continue
		}
		switch g.Access {
		case AccessAll:
			sv.Access.Web = true
			sv.Access.API = true
		case AccessWeb:
			sv.Access.Web = true
		case AccessAPI:
			sv.Access.API = true
		}
		flags, ok := sv.Permissions[g.Entity]
		if !ok {
			continue
		}
		for _, action := range g.Actions {
			flags[action] = true
		}
	}
	return view
}

// CRMSnapshot reduces a view to the currently-true CRM actions per entity,
// the shape embedded into CRM access tokens at issuance time.
func CRMSnapshot(view View) map[string][]string {
	sv, ok := view[ScopeCRM]
	if !ok {
		return map[string][]string{}
	}
	out := make(map[string][]string)
	for _, entity := range entities[ScopeCRM] {
		flags := sv.Permissions[entity]
		var enabled []string
		for _, action := range actions {
			if flags[action] {
				enabled = append(enabled, action)
			}
		}
		if len(enabled) > 0 {
			out[entity] = enabled
		}
	}
	return out
}
