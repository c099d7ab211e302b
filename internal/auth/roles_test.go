// ABOUTME: Tests for role-to-scope derivation
// ABOUTME: Unknown roles must degrade to viewer scopes, never escalate

package auth

import (
	"testing"
)

func TestScopesForRole(t *testing.T) {
	tests := []struct {
		role      string
		wantScope string
		deny      string
	}{
		{role: RoleAdmin, wantScope: "users:manage", deny: ""},
		{role: RoleOperator, wantScope: "runs:write", deny: "users:manage"},
		{role: RoleViewer, wantScope: "runs:read", deny: "runs:write"},
		{role: "no-such-role", wantScope: "runs:read", deny: "runs:write"},
		{role: "", wantScope: "runs:read", deny: "chat:send"},
	}

	for _, tt := range tests {
		t.Run("role_"+tt.role, func(t *testing.T) {
			scopes := ScopesForRole(tt.role)
			identity := &AuthContext{Role: tt.role, Scopes: scopes}

			if !identity.HasScope(tt.wantScope) {
				t.Errorf("ScopesForRole(%q) missing %q, got %v", tt.role, tt.wantScope, scopes)
			}
			if tt.deny != "" && identity.HasScope(tt.deny) {
				t.Errorf("ScopesForRole(%q) must not grant %q, got %v", tt.role, tt.deny, scopes)
			}
		})
	}
}

func TestScopesForRole_ReturnsCopy(t *testing.T) {
	scopes := ScopesForRole(RoleAdmin)
	scopes[0] = "tampered"

	if ScopesForRole(RoleAdmin)[0] == "tampered" {
		t.Error("ScopesForRole must return a fresh copy")
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleOperator, RoleViewer} {
		if !ValidRole(role) {
			t.Errorf("ValidRole(%q) = false, want true", role)
		}
	}
	if ValidRole("superuser") {
		t.Error(`ValidRole("superuser") = true, want false`)
	}
}
