// ABOUTME: Role names and the capability scopes each role grants
// ABOUTME: Scopes are a pure function of the role string

package auth

// Roles a gateway user can hold. Each user has exactly one.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

var roleScopes = map[string][]string{
	RoleAdmin: {
		"chat:send",
		"runs:read",
		"runs:write",
		"config:read",
		"config:write",
		"users:manage",
		"sessions:manage",
	},
	RoleOperator: {
		"chat:send",
		"runs:read",
		"runs:write",
		"config:read",
	},
	RoleViewer: {
		"runs:read",
		"config:read",
	},
}

// ScopesForRole returns the capability strings the role grants. Unknown
// roles get the viewer set, so a corrupted role string can only reduce
// privileges. The returned slice is a fresh copy.
func ScopesForRole(role string) []string {
	scopes, ok := roleScopes[role]
	if !ok {
		scopes = roleScopes[RoleViewer]
	}
	return append([]string(nil), scopes...)
}

// ValidRole reports whether role names one of the defined roles.
func ValidRole(role string) bool {
	_, ok := roleScopes[role]
	return ok
}
