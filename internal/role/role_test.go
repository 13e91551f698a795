package role

import (
	"testing"

	"github.com/rchat/internal/model"
)

func ptr(r model.Role) *model.Role { return &r }

func TestCanAddOrChangeRole(t *testing.T) {
	owner := model.RoleOwner
	admin := model.RoleAdmin
	member := model.RoleMember
	observer := model.RoleObserver

	tests := []struct {
		name      string
		acting    model.Role
		existing  *model.Role
		requested model.Role
		want      bool
	}{
		// observer acting: never allowed
		{"observer adds member", observer, nil, member, false},
		{"observer adds observer", observer, nil, observer, false},
		{"observer promotes member", observer, ptr(member), admin, false},
		{"observer assigns owner", observer, nil, owner, false},

		// member acting: only brand-new member/observer
		{"member adds member", member, nil, member, true},
		{"member adds observer", member, nil, observer, true},
		{"member adds admin", member, nil, admin, false},
		{"member adds owner", member, nil, owner, false},
		{"member changes existing member", member, ptr(member), observer, false},
		{"member changes existing observer", member, ptr(observer), member, false},
		{"member touches admin", member, ptr(admin), member, false},
		{"member touches owner", member, ptr(owner), member, false},

		// admin acting
		{"admin adds member", admin, nil, member, true},
		{"admin adds observer", admin, nil, observer, true},
		{"admin adds admin", admin, nil, admin, false},
		{"admin adds owner", admin, nil, owner, false},
		{"admin demotes member to observer", admin, ptr(member), observer, true},
		{"admin promotes observer to member", admin, ptr(observer), member, true},
		{"admin re-assigns member as member", admin, ptr(member), member, true},
		{"admin promotes member to admin", admin, ptr(member), admin, false},
		{"admin promotes member to owner", admin, ptr(member), owner, false},
		{"admin touches existing admin", admin, ptr(admin), member, false},
		{"admin touches owner", admin, ptr(owner), member, false},

		// owner acting: unrestricted
		{"owner adds member", owner, nil, member, true},
		{"owner adds observer", owner, nil, observer, true},
		{"owner adds admin", owner, nil, admin, true},
		{"owner promotes member to admin", owner, ptr(member), admin, true},
		{"owner promotes observer to admin", owner, ptr(observer), admin, true},
		{"owner demotes admin to member", owner, ptr(admin), member, true},
		{"owner assigns new owner", owner, ptr(admin), owner, true},
		{"owner assigns owner to fresh participant", owner, nil, owner, true},

		// unknown roles
		{"unknown acting role", model.Role("bot"), nil, member, false},
		{"unknown requested role", owner, nil, model.Role("bot"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanAddOrChangeRole(tt.acting, tt.existing, tt.requested)
			if got != tt.want {
				t.Errorf("CanAddOrChangeRole(%s, %v, %s) = %v, want %v",
					tt.acting, tt.existing, tt.requested, got, tt.want)
			}
		})
	}
}

func TestCanAddOrChangeRoleFullMatrix(t *testing.T) {
	// Exhaustive sweep: every verdict must agree with the rule table, so a
	// future edit cannot silently open a combination.
	roles := []model.Role{model.RoleOwner, model.RoleAdmin, model.RoleMember, model.RoleObserver}
	existings := []*model.Role{nil, ptr(model.RoleOwner), ptr(model.RoleAdmin), ptr(model.RoleMember), ptr(model.RoleObserver)}

	expect := func(acting model.Role, existing *model.Role, requested model.Role) bool {
		switch acting {
		case model.RoleOwner:
			return true
		case model.RoleAdmin:
			if requested == model.RoleAdmin || requested == model.RoleOwner {
				return false
			}
			return existing == nil || *existing == model.RoleMember || *existing == model.RoleObserver
		case model.RoleMember:
			return existing == nil && (requested == model.RoleMember || requested == model.RoleObserver)
		}
		return false
	}

	n := 0
	for _, acting := range roles {
		for _, existing := range existings {
			for _, requested := range roles {
				n++
				if got, want := CanAddOrChangeRole(acting, existing, requested), expect(acting, existing, requested); got != want {
					t.Errorf("acting=%s existing=%v requested=%s: got %v, want %v", acting, existing, requested, got, want)
				}
			}
		}
	}
	if n != 80 {
		t.Fatalf("matrix covered %d combinations, want 80", n)
	}
}

func TestCanRemove(t *testing.T) {
	tests := []struct {
		name          string
		acting        model.Role
		target        model.Role
		actingIsAdder bool
		want          bool
	}{
		{"observer removes member", model.RoleObserver, model.RoleMember, false, false},
		{"observer removes own invitee", model.RoleObserver, model.RoleMember, true, false},

		{"member removes stranger", model.RoleMember, model.RoleMember, false, false},
		{"member removes own invitee", model.RoleMember, model.RoleMember, true, true},
		{"member removes own observer invitee", model.RoleMember, model.RoleObserver, true, true},
		{"member removes admin they added", model.RoleMember, model.RoleAdmin, true, true},

		{"admin removes member", model.RoleAdmin, model.RoleMember, false, true},
		{"admin removes observer", model.RoleAdmin, model.RoleObserver, false, true},
		{"admin removes admin", model.RoleAdmin, model.RoleAdmin, false, false},
		{"admin removes admin they added", model.RoleAdmin, model.RoleAdmin, true, false},
		{"admin removes owner", model.RoleAdmin, model.RoleOwner, false, false},

		{"owner removes member", model.RoleOwner, model.RoleMember, false, true},
		{"owner removes admin", model.RoleOwner, model.RoleAdmin, false, true},
		{"owner removes observer", model.RoleOwner, model.RoleObserver, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanRemove(tt.acting, tt.target, tt.actingIsAdder)
			if got != tt.want {
				t.Errorf("CanRemove(%s, %s, %v) = %v, want %v",
					tt.acting, tt.target, tt.actingIsAdder, got, tt.want)
			}
		})
	}
}
