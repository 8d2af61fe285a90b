package rbac

import "testing"

func TestCan(t *testing.T) {
	tests := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleAdmin, ActionRead, true},
		{RoleAdmin, ActionWrite, true},
		{RoleAdmin, ActionDelete, true},
		{RoleAdmin, ActionAdmin, true},
		{RoleMember, ActionRead, true},
		{RoleMember, ActionWrite, true},
		{RoleMember, ActionDelete, false},
		{RoleMember, ActionAdmin, false},
		{Role("OWNER"), ActionRead, false},
		{Role(""), ActionRead, false},
	}

	for _, tc := range tests {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("ADMIN") != RoleAdmin {
		t.Error("expected ADMIN to normalize to RoleAdmin")
	}
	if Normalize("MEMBER") != RoleMember {
		t.Error("expected MEMBER to normalize to RoleMember")
	}
	if Normalize("something-else") != RoleMember {
		t.Error("expected unknown role to normalize to RoleMember")
	}
}
