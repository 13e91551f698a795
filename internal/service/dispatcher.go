// Package service holds the core chat semantics: message fan-out with
// per-recipient personalization, read-receipt tracking and the typed
// failures both report. It sits between the transport layers (ws hub, HTTP
// handlers) and the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rchat/internal/event"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/model"
	"github.com/rchat/internal/repository"
)

// MessageDraft is a validated-on-entry request to create a message. Exactly
// one of ChatID / OtherUserPublicID addresses the target; exactly one of
// SenderUserID / SenderChatID identifies the author.
type MessageDraft struct {
	ChatID            string
	OtherUserPublicID string

	SenderUserID string
	SenderChatID string

	Type            model.MessageType
	Text            string
	AudioMediaID    string
	VideoMediaID    string
	ReplyToID       string
	ForwardedFromID string

	// System-message fields, set only by server-side callers.
	ActingUserID   string
	InvolvedUserID string

	IsSilent bool
}

// Dispatcher routes freshly created messages to their recipients: persist
// once, then push a personalized envelope to every currently-connected
// participant and fall back to web push for the rest.
type Dispatcher struct {
	chats    ChatStore
	msgs     MessageStore
	users    UserStore
	media    Media
	pusher   Pusher
	notifier Notifier

	now func() time.Time
}

func NewDispatcher(chats ChatStore, msgs MessageStore, users UserStore, media Media, pusher Pusher, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		chats:    chats,
		msgs:     msgs,
		users:    users,
		media:    media,
		pusher:   pusher,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ResolveTargetChat turns a draft's addressing into a concrete chat.
// chat_id and other_user_public_id are mutually exclusive; the latter
// resolves (or lazily creates) the private chat between sender and the
// addressed user.
func (d *Dispatcher) ResolveTargetChat(ctx context.Context, senderUserID string, draft MessageDraft) (*model.Chat, error) {
	switch {
	case draft.ChatID != "" && draft.OtherUserPublicID != "":
		return nil, E(KindValidation, event.StatusInvalidData, "chat_id and other_user_public_id are mutually exclusive")
	case draft.ChatID == "" && draft.OtherUserPublicID == "":
		return nil, E(KindValidation, event.StatusInvalidData, "either chat_id or other_user_public_id is required")
	}

	if draft.ChatID != "" {
		chat, err := d.chats.GetByID(ctx, draft.ChatID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, E(KindNotFound, event.StatusChatNotFound, "chat not found")
		}
		if err != nil {
			return nil, Internal("resolve chat", err)
		}
		return chat, nil
	}

	other, err := d.users.GetByPublicID(ctx, draft.OtherUserPublicID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, E(KindNotFound, event.StatusUserNotFound, "user not found")
	}
	if err != nil {
		return nil, Internal("resolve user", err)
	}
	if other.ID == senderUserID {
		return nil, E(KindValidation, event.StatusInvalidData, "cannot open a chat with yourself")
	}
	return d.ResolveOrCreatePrivateChat(ctx, senderUserID, other.ID)
}

// ResolveOrCreatePrivateChat returns the private chat between two users,
// creating it if absent. Concurrent creation races are resolved by the
// unique pair key: the loser re-reads the winner's row.
func (d *Dispatcher) ResolveOrCreatePrivateChat(ctx context.Context, userA, userB string) (*model.Chat, error) {
	chat, err := d.chats.FindPrivateChat(ctx, userA, userB)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, Internal("find private chat", err)
	}

	chat = &model.Chat{
		ID:        uuid.NewString(),
		Type:      model.ChatTypePrivate,
		CreatedBy: userA,
		CreatedAt: d.now(),
	}
	err = d.chats.CreatePrivate(ctx, chat, userA, userB)
	if errors.Is(err, repository.ErrDuplicatePrivateChat) {
		return d.lookupExistingPrivate(ctx, userA, userB)
	}
	if err != nil {
		return nil, Internal("create private chat", err)
	}
	return chat, nil
}

func (d *Dispatcher) lookupExistingPrivate(ctx context.Context, userA, userB string) (*model.Chat, error) {
	chat, err := d.chats.FindPrivateChat(ctx, userA, userB)
	if err != nil {
		return nil, Internal("find private chat after conflict", err)
	}
	return chat, nil
}

// CreateAndDispatch validates the draft against the target chat, persists
// the message and fans it out. Delivery is at-most-once per recipient and a
// failure for one recipient never blocks the others. Returns the persisted
// message.
func (d *Dispatcher) CreateAndDispatch(ctx context.Context, chat *model.Chat, draft MessageDraft) (*model.Message, error) {
	// System messages are server-generated and skip sender checks.
	if draft.SenderUserID != "" && !draft.Type.IsSystem() {
		switch chat.Type {
		case model.ChatTypePrivate:
			ok, err := d.chats.IsParticipant(ctx, chat.ID, draft.SenderUserID)
			if err != nil {
				return nil, Internal("membership check", err)
			}
			if !ok {
				return nil, E(KindPermission, event.StatusPermissionDenied, "sender is not a participant of this chat")
			}
		default:
			p, err := d.chats.GetParticipant(ctx, chat.ID, draft.SenderUserID)
			if errors.Is(err, repository.ErrNotFound) {
				return nil, E(KindPermission, event.StatusPermissionDenied, "sender is not a participant of this chat")
			}
			if err != nil {
				return nil, Internal("membership check", err)
			}
			if p.Role == model.RoleObserver {
				return nil, E(KindPermission, event.StatusPermissionDenied, "observers cannot post")
			}
			if chat.Type == model.ChatTypeChannel {
				if p.Role != model.RoleOwner && p.Role != model.RoleAdmin {
					return nil, E(KindPermission, event.StatusPermissionDenied, "only channel admins can post")
				}
				// Посты канала публикуются от имени самого канала.
				draft.SenderChatID = chat.ID
				draft.SenderUserID = ""
			}
		}
	}

	if err := d.validateReferences(ctx, chat, draft); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:              uuid.NewString(),
		Type:            draft.Type,
		ChatID:          chat.ID,
		SenderUserID:    draft.SenderUserID,
		SenderChatID:    draft.SenderChatID,
		Text:            draft.Text,
		AudioMediaID:    draft.AudioMediaID,
		VideoMediaID:    draft.VideoMediaID,
		ReplyToID:       draft.ReplyToID,
		ForwardedFromID: draft.ForwardedFromID,
		ActingUserID:    draft.ActingUserID,
		InvolvedUserID:  draft.InvolvedUserID,
		IsSilent:        draft.IsSilent,
		CreatedAt:       d.now(),
	}
	if chat.IsWorkChat && !withinWorkWindow(chat, msg.CreatedAt) {
		msg.IsSilent = true
	}

	if err := d.msgs.Create(ctx, msg); err != nil {
		return nil, Internal("create message", err)
	}

	if err := d.fanOut(ctx, chat, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (d *Dispatcher) validateReferences(ctx context.Context, chat *model.Chat, draft MessageDraft) error {
	if draft.ReplyToID != "" && draft.ForwardedFromID != "" {
		return E(KindValidation, event.StatusInvalidData, "reply_to and forwarded_from are mutually exclusive")
	}

	if draft.ReplyToID != "" {
		ref, err := d.msgs.GetByID(ctx, draft.ReplyToID)
		if errors.Is(err, repository.ErrNotFound) {
			return E(KindNotFound, event.StatusMessageNotFound, "reply target not found")
		}
		if err != nil {
			return Internal("resolve reply target", err)
		}
		if ref.ChatID != chat.ID {
			return E(KindValidation, event.StatusInvalidData, "reply target belongs to another chat")
		}
	}

	if draft.ForwardedFromID != "" {
		ref, err := d.msgs.GetByID(ctx, draft.ForwardedFromID)
		if errors.Is(err, repository.ErrNotFound) {
			return E(KindNotFound, event.StatusMessageNotFound, "forward source not found")
		}
		if err != nil {
			return Internal("resolve forward source", err)
		}
		if draft.SenderUserID != "" {
			ok, err := d.chats.IsParticipant(ctx, ref.ChatID, draft.SenderUserID)
			if err != nil {
				return Internal("forward source membership check", err)
			}
			if !ok {
				return E(KindPermission, event.StatusPermissionDenied, "forward source is not readable by sender")
			}
		}
	}
	return nil
}

// fanOut pushes the message envelope to every connected participant and
// schedules web-push notifications for the offline ones. The sender's own
// connection receives the echo too.
func (d *Dispatcher) fanOut(ctx context.Context, chat *model.Chat, msg *model.Message) error {
	participants, err := d.chats.GetParticipants(ctx, chat.ID)
	if err != nil {
		return Internal("load participants", err)
	}

	base, err := d.buildEnvelope(ctx, chat, msg)
	if err != nil {
		return err
	}

	delivered := 0
	for _, p := range participants {
		env := *base
		if chat.Type == model.ChatTypePrivate {
			d.personalize(ctx, &env, participants, p.UserID)
		}
		if d.pusher.Push(p.UserID, event.Event{Name: event.NewMessage, Payload: env}) {
			delivered++
			continue
		}
		if d.notifier != nil && !msg.IsSilent && p.UserID != msg.SenderUserID {
			d.notifyOffline(ctx, p.UserID, &env)
		}
	}
	logger.Debugf("dispatch chat=%s message=%s delivered=%d/%d", chat.ID, msg.ID, delivered, len(participants))
	return nil
}

// buildEnvelope resolves everything shared across recipients: sender
// profile, media URLs, foreign-message previews and system-message actors.
func (d *Dispatcher) buildEnvelope(ctx context.Context, chat *model.Chat, msg *model.Message) (*event.MessageEnvelope, error) {
	env := &event.MessageEnvelope{
		ID:            msg.ID,
		Type:          msg.Type,
		ChatID:        chat.ID,
		ChatName:      chat.Name,
		ChatAvatarURL: chat.AvatarURL,
		Text:          msg.Text,
		AudioURL:      d.media.URL(msg.AudioMediaID),
		VideoURL:      d.media.URL(msg.VideoMediaID),
		IsSilent:      msg.IsSilent,
		CreatedAt:     msg.CreatedAt,
	}

	sender, err := d.resolveSender(ctx, msg)
	if err != nil {
		return nil, err
	}
	env.Sender = sender

	if msg.ReplyToID != "" {
		env.ReplyTo = d.resolveForeign(ctx, msg.ReplyToID)
	}
	if msg.ForwardedFromID != "" {
		env.ForwardedFrom = d.resolveForeign(ctx, msg.ForwardedFromID)
	}

	if msg.Type.IsSystem() {
		env.ActingUser = d.resolveSummary(ctx, msg.ActingUserID)
		env.InvolvedUser = d.resolveSummary(ctx, msg.InvolvedUserID)
	}
	return env, nil
}

// EnvelopeFor builds the viewer's personalized envelope for an existing
// message. Used by history listing; fan-out builds its own.
func (d *Dispatcher) EnvelopeFor(ctx context.Context, chat *model.Chat, msg *model.Message, viewerID string) (*event.MessageEnvelope, error) {
	env, err := d.buildEnvelope(ctx, chat, msg)
	if err != nil {
		return nil, err
	}
	if chat.Type == model.ChatTypePrivate {
		participants, err := d.chats.GetParticipants(ctx, chat.ID)
		if err != nil {
			return nil, Internal("load participants", err)
		}
		d.personalize(ctx, env, participants, viewerID)
	}
	return env, nil
}

// ViewFor builds the viewer's chat-list entry: personalized header plus the
// last message, if any.
func (d *Dispatcher) ViewFor(ctx context.Context, chat *model.Chat, viewerID string) (*model.ChatView, error) {
	view := &model.ChatView{Chat: *chat, Name: chat.Name, AvatarURL: chat.AvatarURL}
	if chat.Type == model.ChatTypePrivate {
		participants, err := d.chats.GetParticipants(ctx, chat.ID)
		if err != nil {
			return nil, Internal("load participants", err)
		}
		for _, p := range participants {
			if p.UserID == viewerID {
				continue
			}
			other, err := d.users.GetByID(ctx, p.UserID)
			if err != nil {
				return nil, Internal("resolve participant", err)
			}
			view.Name = other.FullName()
			view.AvatarURL = other.AvatarURL
			break
		}
	}
	last, err := d.msgs.GetLastMessage(ctx, chat.ID)
	if err != nil {
		return nil, Internal("load last message", err)
	}
	view.LastMessage = last
	return view, nil
}

func (d *Dispatcher) resolveSender(ctx context.Context, msg *model.Message) (event.Sender, error) {
	if msg.SenderChatID != "" {
		chat, err := d.chats.GetByID(ctx, msg.SenderChatID)
		if err != nil {
			return event.Sender{}, Internal("resolve sender chat", err)
		}
		return event.Sender{ChatID: chat.ID, Name: chat.Name, AvatarURL: chat.AvatarURL}, nil
	}
	u, err := d.users.GetByID(ctx, msg.SenderUserID)
	if err != nil {
		return event.Sender{}, Internal("resolve sender user", err)
	}
	return event.Sender{
		UserID:    u.ID,
		Name:      u.FullName(),
		AvatarURL: u.AvatarURL,
	}, nil
}

// resolveForeign builds a reply/forward preview. Weak references: a deleted
// or unreadable referent just drops the preview.
func (d *Dispatcher) resolveForeign(ctx context.Context, messageID string) *event.ForeignMessage {
	ref, err := d.msgs.GetByID(ctx, messageID)
	if err != nil {
		return nil
	}
	sender, err := d.resolveSender(ctx, ref)
	if err != nil {
		return nil
	}
	return &event.ForeignMessage{
		ID:     ref.ID,
		Type:   ref.Type,
		Text:   ref.Text,
		Sender: sender,
	}
}

func (d *Dispatcher) resolveSummary(ctx context.Context, userID string) *model.UserSummary {
	if userID == "" {
		return nil
	}
	u, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return nil
	}
	s := u.ToSummary()
	return &s
}

// personalize rewrites the chat header for a private-chat recipient: each
// viewer sees the other participant's name and avatar, never their own.
func (d *Dispatcher) personalize(ctx context.Context, env *event.MessageEnvelope, participants []model.Participant, viewerID string) {
	for _, p := range participants {
		if p.UserID == viewerID {
			continue
		}
		other, err := d.users.GetByID(ctx, p.UserID)
		if err != nil {
			logger.Errorf("personalize chat=%s viewer=%s: %v", env.ChatID, viewerID, err)
			return
		}
		env.ChatName = other.FullName()
		env.ChatAvatarURL = other.AvatarURL
		return
	}
}

func (d *Dispatcher) notifyOffline(ctx context.Context, userID string, env *event.MessageEnvelope) {
	body := env.Text
	if body == "" {
		body = string(env.Type)
	}
	d.notifier.Notify(ctx, userID, env.ChatName, fmt.Sprintf("%s: %s", env.Sender.Name, body), map[string]string{
		"chat_id":    env.ChatID,
		"message_id": env.ID,
	})
}

// withinWorkWindow reports whether t falls inside the chat's daily
// "HH:MM".."HH:MM" delivery window. Malformed or absent bounds mean no
// restriction.
func withinWorkWindow(chat *model.Chat, t time.Time) bool {
	if chat.AllowMessagesFrom == "" || chat.AllowMessagesTo == "" {
		return true
	}
	from, err1 := time.Parse("15:04", chat.AllowMessagesFrom)
	to, err2 := time.Parse("15:04", chat.AllowMessagesTo)
	if err1 != nil || err2 != nil {
		return true
	}
	cur := t.Hour()*60 + t.Minute()
	lo := from.Hour()*60 + from.Minute()
	hi := to.Hour()*60 + to.Minute()
	if lo <= hi {
		return cur >= lo && cur <= hi
	}
	// Window wraps midnight.
	return cur >= lo || cur <= hi
}
