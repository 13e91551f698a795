package service

import (
	"context"
	"testing"

	"github.com/rchat/internal/event"
	"github.com/rchat/internal/model"
)

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv([]*model.User{
		user("u1", "p1", "Anna", "Ivanova"),
		user("u2", "p2", "Boris", "Petrov"),
		user("u3", "p3", "Clara", "Sidorova"),
	}, "u1", "u2")

	chat, err := env.membership.CreateGroup(ctx, "u1", GroupDraft{
		Type: model.ChatTypeGroup, Name: "team", MemberIDs: []string{"u2", "u3", "u1"},
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	owner, err := env.chats.GetParticipant(ctx, chat.ID, "u1")
	if err != nil || owner.Role != model.RoleOwner {
		t.Fatalf("creator participant = %+v, %v; want owner", owner, err)
	}
	for _, uid := range []string{"u2", "u3"} {
		p, err := env.chats.GetParticipant(ctx, chat.ID, uid)
		if err != nil || p.Role != model.RoleMember {
			t.Errorf("%s participant = %+v, %v; want member", uid, p, err)
		}
	}

	// Connected participants are told about the new chat.
	for _, uid := range []string{"u1", "u2"} {
		if evs := env.pusher.eventsFor(uid, event.ChatCreated); len(evs) != 1 {
			t.Errorf("%s got %d chat_created events, want 1", uid, len(evs))
		}
	}

	// Creation is recorded as a system message in the chat itself.
	last, err := env.msgs.GetLastMessage(ctx, chat.ID)
	if err != nil || last == nil {
		t.Fatalf("GetLastMessage: %v, %v", last, err)
	}
	if last.Type != model.MessageTypeCreatedChat || last.ActingUserID != "u1" {
		t.Errorf("system message = %+v, want created_chat by u1", last)
	}
}

func TestCreateGroupValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv([]*model.User{user("u1", "p1", "Anna", "Ivanova")})

	_, err := env.membership.CreateGroup(ctx, "u1", GroupDraft{Type: model.ChatTypePrivate, Name: "x"})
	if KindOf(err) != KindValidation {
		t.Errorf("private type: kind = %v, want validation", KindOf(err))
	}
	_, err = env.membership.CreateGroup(ctx, "u1", GroupDraft{Type: model.ChatTypeGroup})
	if KindOf(err) != KindValidation {
		t.Errorf("empty name: kind = %v, want validation", KindOf(err))
	}
	_, err = env.membership.CreateGroup(ctx, "u1", GroupDraft{
		Type: model.ChatTypeGroup, Name: "x", MemberIDs: []string{"ghost"},
	})
	if KindOf(err) != KindNotFound {
		t.Errorf("unknown member: kind = %v, want not-found", KindOf(err))
	}
}

func TestSetRoleAddsParticipant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv([]*model.User{
		user("u1", "p1", "Anna", "Ivanova"),
		user("u2", "p2", "Boris", "Petrov"),
	}, "u1")
	chat := env.addGroup("g1", "u1")

	if err := env.membership.SetRole(ctx, chat.ID, "u1", "u2", model.RoleMember); err != nil {
		t.Fatalf("SetRole: %v", err)
	}

	p, err := env.chats.GetParticipant(ctx, chat.ID, "u2")
	if err != nil || p.Role != model.RoleMember || p.AddedBy != "u1" {
		t.Fatalf("added participant = %+v, %v", p, err)
	}

	evs := env.pusher.eventsFor("u1", event.MembershipChanged)
	if len(evs) != 1 {
		t.Fatalf("u1 got %d membership_changed events, want 1", len(evs))
	}
	payload := evs[0].Payload.(event.MembershipPayload)
	if payload.Change != event.ParticipantAdded || payload.User.PublicID != "p2" || payload.Role != model.RoleMember {
		t.Errorf("membership payload = %+v", payload)
	}

	// The join is recorded as a system message too.
	last, _ := env.msgs.GetLastMessage(ctx, chat.ID)
	if last == nil || last.Type != model.MessageTypeUserJoined || last.InvolvedUserID != "u2" {
		t.Errorf("system message = %+v, want user_joined involving u2", last)
	}
}

func TestSetRoleOwnershipTransfer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv([]*model.User{
		user("u1", "p1", "Anna", "Ivanova"),
		user("u2", "p2", "Boris", "Petrov"),
	})
	chat := env.addGroup("g1", "u1", "u2")

	if err := env.membership.SetRole(ctx, chat.ID, "u1", "u2", model.RoleOwner); err != nil {
		t.Fatalf("SetRole(owner): %v", err)
	}

	newOwner, _ := env.chats.GetParticipant(ctx, chat.ID, "u2")
	oldOwner, _ := env.chats.GetParticipant(ctx, chat.ID, "u1")
	if newOwner.Role != model.RoleOwner {
		t.Errorf("u2 role = %s, want owner", newOwner.Role)
	}
	if oldOwner.Role != model.RoleAdmin {
		t.Errorf("previous owner role = %s, want admin after transfer", oldOwner.Role)
	}
}

func TestSetRolePermissions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv([]*model.User{
		user("owner", "po", "O", "Wner"),
		user("admin", "pa", "A", "Dmin"),
		user("member", "pm", "M", "Ember"),
		user("observer", "pb", "B", "Server"),
		user("fresh", "pf", "F", "Resh"),
	})
	chat := env.addGroup("g1", "owner")
	env.chats.AddParticipant(ctx, &model.Participant{ChatID: "g1", UserID: "admin", Role: model.RoleAdmin})
	env.chats.AddParticipant(ctx, &model.Participant{ChatID: "g1", UserID: "member", Role: model.RoleMember})
	env.chats.AddParticipant(ctx, &model.Participant{ChatID: "g1", UserID: "observer", Role: model.RoleObserver})

	tests := []struct {
		name      string
		actor     string
		target    string
		requested model.Role
		wantKind  Kind
	}{
		{"admin promotes member to admin", "admin", "member", model.RoleAdmin, KindPermission},
		{"admin grants owner", "admin", "member", model.RoleOwner, KindPermission},
		{"admin demotes owner", "admin", "owner", model.RoleMember, KindPermission},
		{"member changes existing role", "member", "observer", model.RoleMember, KindPermission},
		{"member adds fresh admin", "member", "fresh", model.RoleAdmin, KindPermission},
		{"observer adds fresh member", "observer", "fresh", model.RoleMember, KindPermission},
		{"change own role", "member", "member", model.RoleObserver, KindValidation},
		{"member adds fresh observer", "member", "fresh", model.RoleObserver, 0},
		{"admin flips member to observer", "admin", "member", model.RoleObserver, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.membership.SetRole(ctx, chat.ID, tt.actor, tt.target, tt.requested)
			if tt.wantKind == 0 {
				if err != nil {
					t.Fatalf("SetRole: %v, want success", err)
				}
				return
			}
			if KindOf(err) != tt.wantKind {
				t.Errorf("kind = %v, want %v", KindOf(err), tt.wantKind)
			}
		})
	}
}

func TestRemoveParticipant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv([]*model.User{
		user("u1", "p1", "Anna", "Ivanova"),
		user("u2", "p2", "Boris", "Petrov"),
	}, "u2")
	chat := env.addGroup("g1", "u1", "u2")

	if err := env.membership.Remove(ctx, chat.ID, "u1", "u2"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := env.chats.GetParticipant(ctx, chat.ID, "u2"); err == nil {
		t.Error("removed participant still present")
	}

	// The removed user is told directly so their client drops the chat.
	evs := env.pusher.eventsFor("u2", event.MembershipChanged)
	if len(evs) == 0 {
		t.Fatal("removed user got no membership_changed event")
	}
	payload := evs[0].Payload.(event.MembershipPayload)
	if payload.Change != event.ParticipantRemoved || payload.User.PublicID != "p2" {
		t.Errorf("removal payload = %+v", payload)
	}

	last, _ := env.msgs.GetLastMessage(ctx, chat.ID)
	if last == nil || last.Type != model.MessageTypeUserRemoved || last.InvolvedUserID != "u2" {
		t.Errorf("system message = %+v, want user_removed involving u2", last)
	}
}

func TestRemovePermissions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv([]*model.User{
		user("owner", "po", "O", "Wner"),
		user("admin", "pa", "A", "Dmin"),
		user("m1", "p1", "M", "One"),
		user("m2", "p2", "M", "Two"),
		user("invitee", "pi", "I", "Nvitee"),
	})
	chat := env.addGroup("g1", "owner")
	env.chats.AddParticipant(ctx, &model.Participant{ChatID: "g1", UserID: "admin", Role: model.RoleAdmin})
	env.chats.AddParticipant(ctx, &model.Participant{ChatID: "g1", UserID: "m1", Role: model.RoleMember})
	env.chats.AddParticipant(ctx, &model.Participant{ChatID: "g1", UserID: "m2", Role: model.RoleMember})
	env.chats.AddParticipant(ctx, &model.Participant{ChatID: "g1", UserID: "invitee", Role: model.RoleMember, AddedBy: "m1"})

	if err := env.membership.Remove(ctx, chat.ID, "m1", "m2"); KindOf(err) != KindPermission {
		t.Errorf("member removes unrelated member: kind = %v, want permission", KindOf(err))
	}
	if err := env.membership.Remove(ctx, chat.ID, "admin", "owner"); KindOf(err) != KindPermission {
		t.Errorf("admin removes owner: kind = %v, want permission", KindOf(err))
	}
	if err := env.membership.Remove(ctx, chat.ID, "m1", "m1"); KindOf(err) != KindValidation {
		t.Errorf("self removal: kind = %v, want validation", KindOf(err))
	}
	if err := env.membership.Remove(ctx, chat.ID, "m1", "invitee"); err != nil {
		t.Errorf("member removes own invitee: %v, want success", err)
	}
	if err := env.membership.Remove(ctx, chat.ID, "admin", "m2"); err != nil {
		t.Errorf("admin removes member: %v, want success", err)
	}
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv([]*model.User{
		user("u1", "p1", "Anna", "Ivanova"),
		user("u2", "p2", "Boris", "Petrov"),
	}, "u1")
	chat := env.addGroup("g1", "u1", "u2")

	if err := env.membership.Leave(ctx, chat.ID, "u1"); KindOf(err) != KindValidation {
		t.Errorf("owner leaving: kind = %v, want validation", KindOf(err))
	}

	if err := env.membership.Leave(ctx, chat.ID, "u2"); err != nil {
		t.Fatalf("member leaving: %v", err)
	}
	if _, err := env.chats.GetParticipant(ctx, chat.ID, "u2"); err == nil {
		t.Error("left participant still present")
	}
	evs := env.pusher.eventsFor("u1", event.MembershipChanged)
	if len(evs) != 1 || evs[0].Payload.(event.MembershipPayload).Change != event.ParticipantLeft {
		t.Errorf("leave events for u1 = %+v", evs)
	}
}

func TestMembershipRejectsPrivateChats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv([]*model.User{
		user("u1", "p1", "Anna", "Ivanova"),
		user("u2", "p2", "Boris", "Petrov"),
		user("u3", "p3", "Clara", "Sidorova"),
	})
	chat, err := env.dispatcher.ResolveOrCreatePrivateChat(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("ResolveOrCreatePrivateChat: %v", err)
	}

	if err := env.membership.SetRole(ctx, chat.ID, "u1", "u3", model.RoleMember); KindOf(err) != KindValidation {
		t.Errorf("add to private chat: kind = %v, want validation", KindOf(err))
	}
	if err := env.membership.Remove(ctx, chat.ID, "u1", "u2"); KindOf(err) != KindValidation {
		t.Errorf("remove from private chat: kind = %v, want validation", KindOf(err))
	}
}
