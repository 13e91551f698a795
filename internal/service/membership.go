package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rchat/internal/event"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/model"
	"github.com/rchat/internal/repository"
	"github.com/rchat/internal/role"
)

// Membership implements group and channel membership operations: who may
// add whom with which role, role changes, ownership transfer, removal and
// leaving. Every successful mutation is broadcast as a membership_changed
// event and recorded as a system message in the chat.
type Membership struct {
	chats      ChatStore
	users      UserStore
	pusher     Pusher
	dispatcher *Dispatcher

	now func() time.Time
}

func NewMembership(chats ChatStore, users UserStore, pusher Pusher, dispatcher *Dispatcher) *Membership {
	return &Membership{
		chats:      chats,
		users:      users,
		pusher:     pusher,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GroupDraft describes a new group or channel.
type GroupDraft struct {
	Type        model.ChatType
	Name        string
	Description string
	AvatarURL   string
	// Work-chat delivery window, "HH:MM".."HH:MM". Empty means unrestricted.
	IsWorkChat        bool
	AllowMessagesFrom string
	AllowMessagesTo   string
	// Initial members besides the creator, all added as 'member'.
	MemberIDs []string
}

// CreateGroup creates a group or channel with the creator as owner and the
// listed users as members, then announces the chat to everyone in it.
func (m *Membership) CreateGroup(ctx context.Context, creatorID string, draft GroupDraft) (*model.Chat, error) {
	if draft.Type != model.ChatTypeGroup && draft.Type != model.ChatTypeChannel {
		return nil, E(KindValidation, event.StatusInvalidData, "type must be group or channel")
	}
	if draft.Name == "" {
		return nil, E(KindValidation, event.StatusInvalidData, "name is required")
	}

	now := m.now()
	chat := &model.Chat{
		ID:                uuid.NewString(),
		Type:              draft.Type,
		Name:              draft.Name,
		Description:       draft.Description,
		AvatarURL:         draft.AvatarURL,
		CreatedBy:         creatorID,
		IsWorkChat:        draft.IsWorkChat,
		AllowMessagesFrom: draft.AllowMessagesFrom,
		AllowMessagesTo:   draft.AllowMessagesTo,
		CreatedAt:         now,
	}
	if err := m.chats.Create(ctx, chat); err != nil {
		return nil, Internal("create chat", err)
	}
	if err := m.chats.AddParticipant(ctx, &model.Participant{
		ChatID: chat.ID, UserID: creatorID, Role: model.RoleOwner, JoinedAt: now,
	}); err != nil {
		return nil, Internal("add owner", err)
	}
	for _, uid := range draft.MemberIDs {
		if uid == creatorID {
			continue
		}
		if _, err := m.users.GetByID(ctx, uid); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, E(KindNotFound, event.StatusUserNotFound, "member not found: "+uid)
			}
			return nil, Internal("resolve member", err)
		}
		if err := m.chats.AddParticipant(ctx, &model.Participant{
			ChatID: chat.ID, UserID: uid, Role: model.RoleMember, AddedBy: creatorID, JoinedAt: now,
		}); err != nil {
			return nil, Internal("add member", err)
		}
	}

	m.announceChat(ctx, chat)

	if _, err := m.dispatcher.CreateAndDispatch(ctx, chat, MessageDraft{
		Type:         model.MessageTypeCreatedChat,
		SenderUserID: creatorID,
		ActingUserID: creatorID,
	}); err != nil {
		logger.Errorf("membership: created_chat system message chat=%s: %v", chat.ID, err)
	}
	return chat, nil
}

// announceChat pushes a chat_created event to every connected participant.
func (m *Membership) announceChat(ctx context.Context, chat *model.Chat) {
	ids, err := m.chats.GetParticipantUserIDs(ctx, chat.ID)
	if err != nil {
		logger.Errorf("membership: announce chat=%s: %v", chat.ID, err)
		return
	}
	ev := event.Event{Name: event.ChatCreated, Payload: chat}
	for _, id := range ids {
		m.pusher.Push(id, ev)
	}
}

// SetRole adds targetID to the chat with the requested role, or changes
// their existing role. Granting owner transfers ownership: the previous
// owner is demoted to admin in the same transaction.
func (m *Membership) SetRole(ctx context.Context, chatID, actorID, targetID string, requested model.Role) error {
	chat, acting, err := m.loadActing(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if !requested.Valid() {
		return E(KindValidation, event.StatusInvalidData, "unknown role")
	}
	if targetID == actorID {
		return E(KindValidation, event.StatusInvalidData, "cannot change own role")
	}

	target, err := m.users.GetByID(ctx, targetID)
	if errors.Is(err, repository.ErrNotFound) {
		return E(KindNotFound, event.StatusUserNotFound, "user not found")
	}
	if err != nil {
		return Internal("resolve target", err)
	}

	var existing *model.Role
	existingP, err := m.chats.GetParticipant(ctx, chatID, targetID)
	switch {
	case err == nil:
		existing = &existingP.Role
	case errors.Is(err, repository.ErrNotFound):
	default:
		return Internal("load target participant", err)
	}

	if !role.CanAddOrChangeRole(acting.Role, existing, requested) {
		return E(KindPermission, event.StatusPermissionDenied, "not allowed to assign this role")
	}

	change := event.ParticipantAdded
	switch {
	case existing != nil && requested == model.RoleOwner:
		if err := m.chats.TransferOwnership(ctx, chatID, targetID); err != nil {
			return Internal("transfer ownership", err)
		}
		change = event.RoleChanged
	case existing != nil:
		if err := m.chats.UpdateParticipantRole(ctx, chatID, targetID, requested); err != nil {
			return Internal("update role", err)
		}
		change = event.RoleChanged
	default:
		if err := m.chats.AddParticipant(ctx, &model.Participant{
			ChatID: chatID, UserID: targetID, Role: requested, AddedBy: actorID, JoinedAt: m.now(),
		}); err != nil {
			return Internal("add participant", err)
		}
	}

	m.broadcastChange(ctx, chatID, change, target, requested, actorID)

	if change == event.ParticipantAdded {
		if _, err := m.dispatcher.CreateAndDispatch(ctx, chat, MessageDraft{
			Type:           model.MessageTypeUserJoined,
			SenderUserID:   actorID,
			ActingUserID:   actorID,
			InvolvedUserID: targetID,
		}); err != nil {
			logger.Errorf("membership: user_joined system message chat=%s: %v", chatID, err)
		}
	}
	return nil
}

// Remove kicks targetID out of the chat if the actor's role permits it.
func (m *Membership) Remove(ctx context.Context, chatID, actorID, targetID string) error {
	chat, acting, err := m.loadActing(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if targetID == actorID {
		return E(KindValidation, event.StatusInvalidData, "use leave to remove yourself")
	}

	targetP, err := m.chats.GetParticipant(ctx, chatID, targetID)
	if errors.Is(err, repository.ErrNotFound) {
		return E(KindNotFound, event.StatusUserNotFound, "user is not a participant")
	}
	if err != nil {
		return Internal("load target participant", err)
	}

	if !role.CanRemove(acting.Role, targetP.Role, targetP.AddedBy == actorID) {
		return E(KindPermission, event.StatusPermissionDenied, "not allowed to remove this participant")
	}

	target, err := m.users.GetByID(ctx, targetID)
	if err != nil {
		return Internal("resolve target", err)
	}
	if err := m.chats.RemoveParticipant(ctx, chatID, targetID); err != nil {
		return Internal("remove participant", err)
	}

	// Удалённый тоже получает событие — его клиент убирает чат из списка.
	m.pusher.Push(targetID, event.Event{Name: event.MembershipChanged, Payload: event.MembershipPayload{
		ChatID: chatID,
		Change: event.ParticipantRemoved,
		User:   target.ToSummary(),
	}})
	m.broadcastChange(ctx, chatID, event.ParticipantRemoved, target, "", actorID)

	if _, err := m.dispatcher.CreateAndDispatch(ctx, chat, MessageDraft{
		Type:           model.MessageTypeUserRemoved,
		SenderUserID:   actorID,
		ActingUserID:   actorID,
		InvolvedUserID: targetID,
	}); err != nil {
		logger.Errorf("membership: user_removed system message chat=%s: %v", chatID, err)
	}
	return nil
}

// Leave removes the caller from the chat. The owner must transfer
// ownership first.
func (m *Membership) Leave(ctx context.Context, chatID, userID string) error {
	_, acting, err := m.loadActing(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if acting.Role == model.RoleOwner {
		return E(KindValidation, event.StatusInvalidData, "owner must transfer ownership before leaving")
	}

	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return Internal("resolve user", err)
	}
	if err := m.chats.RemoveParticipant(ctx, chatID, userID); err != nil {
		return Internal("remove participant", err)
	}
	m.broadcastChange(ctx, chatID, event.ParticipantLeft, u, "", userID)
	return nil
}

// loadActing resolves the chat and the actor's membership row, rejecting
// private chats (they carry no roles).
func (m *Membership) loadActing(ctx context.Context, chatID, actorID string) (*model.Chat, *model.Participant, error) {
	chat, err := m.chats.GetByID(ctx, chatID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, E(KindNotFound, event.StatusChatNotFound, "chat not found")
	}
	if err != nil {
		return nil, nil, Internal("load chat", err)
	}
	if chat.Type == model.ChatTypePrivate {
		return nil, nil, E(KindValidation, event.StatusInvalidData, "private chats have no membership management")
	}

	acting, err := m.chats.GetParticipant(ctx, chatID, actorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, E(KindPermission, event.StatusPermissionDenied, "not a participant of this chat")
	}
	if err != nil {
		return nil, nil, Internal("load acting participant", err)
	}
	return chat, acting, nil
}

func (m *Membership) broadcastChange(ctx context.Context, chatID string, change event.MembershipChange, target *model.User, newRole model.Role, actorID string) {
	ids, err := m.chats.GetParticipantUserIDs(ctx, chatID)
	if err != nil {
		logger.Errorf("membership: broadcast chat=%s: %v", chatID, err)
		return
	}
	payload := event.MembershipPayload{
		ChatID: chatID,
		Change: change,
		User:   target.ToSummary(),
		Role:   newRole,
	}
	if actor, err := m.users.GetByID(ctx, actorID); err == nil {
		s := actor.ToSummary()
		payload.ActingUser = &s
	}
	ev := event.Event{Name: event.MembershipChanged, Payload: payload}
	for _, id := range ids {
		m.pusher.Push(id, ev)
	}
}
