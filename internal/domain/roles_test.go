package domain

import "testing"

func TestConfigIsAdmin(t *testing.T) {
	cfg := Config{AdminRoleIDs: []RoleID{"mods", "42"}}
	tests := []struct {
		name  string
		actor Actor
		want  bool
	}{
		{name: "platform administrator", actor: Actor{ID: "1", Administrator: true}, want: true},
		{name: "admin role", actor: Actor{ID: "2", RoleIDs: []RoleID{"members", "mods"}}, want: true},
		{name: "member id listed as role", actor: Actor{ID: "42", RoleIDs: []RoleID{"42"}}, want: true},
		{name: "plain member", actor: Actor{ID: "3", RoleIDs: []RoleID{"members"}}, want: false},
		{name: "no roles", actor: Actor{ID: "4"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.IsAdmin(tt.actor); got != tt.want {
				t.Fatalf("IsAdmin(%+v) = %v, want %v", tt.actor, got, tt.want)
			}
		})
	}
}

func TestToggleAdminRole(t *testing.T) {
	cfg := DefaultConfig()
	if added := cfg.ToggleAdminRole("mods"); !added {
		t.Fatal("expected role to be added")
	}
	if len(cfg.AdminRoleIDs) != 1 {
		t.Fatalf("expected 1 role, got %d", len(cfg.AdminRoleIDs))
	}
	if added := cfg.ToggleAdminRole("mods"); added {
		t.Fatal("expected role to be removed")
	}
	if len(cfg.AdminRoleIDs) != 0 {
		t.Fatalf("expected no roles, got %v", cfg.AdminRoleIDs)
	}
}
