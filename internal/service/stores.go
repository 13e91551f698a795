package service

import (
	"context"

	"github.com/rchat/internal/event"
	"github.com/rchat/internal/model"
)

// Narrow store interfaces implemented by the pgx repositories. Services
// accept interfaces so tests run against in-memory fakes without a DB.

type ChatStore interface {
	GetByID(ctx context.Context, id string) (*model.Chat, error)
	Create(ctx context.Context, c *model.Chat) error
	CreatePrivate(ctx context.Context, c *model.Chat, userA, userB string) error
	FindPrivateChat(ctx context.Context, userA, userB string) (*model.Chat, error)
	GetParticipant(ctx context.Context, chatID, userID string) (*model.Participant, error)
	GetParticipants(ctx context.Context, chatID string) ([]model.Participant, error)
	GetParticipantUserIDs(ctx context.Context, chatID string) ([]string, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	AddParticipant(ctx context.Context, p *model.Participant) error
	RemoveParticipant(ctx context.Context, chatID, userID string) error
	UpdateParticipantRole(ctx context.Context, chatID, userID string, role model.Role) error
	TransferOwnership(ctx context.Context, chatID, newOwnerID string) error
}

type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	GetLastMessage(ctx context.Context, chatID string) (*model.Message, error)
	MarkRead(ctx context.Context, messageID, userID string) (bool, error)
	MarkReadBefore(ctx context.Context, chatID, beforeMessageID, userID string) (int64, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByPublicID(ctx context.Context, publicID string) (*model.User, error)
}

// Media resolves media ids to public URLs.
type Media interface {
	URL(mediaID string) string
}

// Pusher delivers events to currently-bound live connections. Push is
// best-effort and at-most-once per call; it reports whether the event was
// handed to a live connection.
type Pusher interface {
	IsOnline(userID string) bool
	Push(userID string, ev event.Event) bool
}

// Notifier sends out-of-band notifications (web push) to a user's devices.
// A nil Notifier disables notifications.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}
