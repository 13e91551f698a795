package model

import "time"

type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
	ChatTypeChannel ChatType = "channel"
)

// Role — роль участника в группе/канале. В private-чатах роли не назначаются.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleMember   Role = "member"
	RoleObserver Role = "observer"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleObserver:
		return true
	}
	return false
}

type Chat struct {
	ID          string   `json:"id"`
	Type        ChatType `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AvatarURL   string   `json:"avatar_url"`
	CreatedBy   string   `json:"created_by,omitempty"`
	// Work chats may restrict delivery to a daily window; messages sent
	// outside it are forced silent. Empty values mean no window.
	IsWorkChat        bool      `json:"is_work_chat,omitempty"`
	AllowMessagesFrom string    `json:"allow_messages_from,omitempty"` // "HH:MM"
	AllowMessagesTo   string    `json:"allow_messages_to,omitempty"`   // "HH:MM"
	CreatedAt         time.Time `json:"created_at"`
}

// Participant is a user's membership record in a chat.
// AddedBy is empty only for the creator's own owner row.
type Participant struct {
	ChatID   string    `json:"chat_id"`
	UserID   string    `json:"user_id"`
	Role     Role      `json:"role"`
	AddedBy  string    `json:"added_by,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// ChatView is a chat as seen by one viewer: for private chats Name and
// AvatarURL are the other participant's profile, never stored on the chat row.
type ChatView struct {
	Chat        Chat     `json:"chat"`
	Name        string   `json:"name"`
	AvatarURL   string   `json:"avatar_url"`
	LastMessage *Message `json:"last_message,omitempty"`
}
