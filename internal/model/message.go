package model

import "time"

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeAudio MessageType = "audio"
	MessageTypeVideo MessageType = "video"

	// System messages record chat lifecycle events; they are generated by the
	// dispatcher, never typed by a human.
	MessageTypeCreatedChat MessageType = "system:created_chat"
	MessageTypeUserJoined  MessageType = "system:user_joined"
	MessageTypeUserRemoved MessageType = "system:user_removed"
)

// IsSystem reports whether t is one of the system message types.
func (t MessageType) IsSystem() bool {
	switch t {
	case MessageTypeCreatedChat, MessageTypeUserJoined, MessageTypeUserRemoved:
		return true
	}
	return false
}

// Message is a persisted chat message. The sender is a user XOR a chat
// (channel posts are authored by the chat itself). ReplyToID and
// ForwardedFromID are weak references: message ids only, resolved lazily
// on read and never embedded, so either referent can be deleted
// independently.
type Message struct {
	ID             string      `json:"id"`
	Type           MessageType `json:"type"`
	ChatID         string      `json:"chat_id"`
	SenderUserID   string      `json:"sender_user_id,omitempty"`
	SenderChatID   string      `json:"sender_chat_id,omitempty"`
	Text           string      `json:"text,omitempty"`
	AudioMediaID   string      `json:"audio_media_id,omitempty"`
	VideoMediaID   string      `json:"video_media_id,omitempty"`
	ReplyToID      string      `json:"reply_to_id,omitempty"`
	ForwardedFromID string     `json:"forwarded_from_id,omitempty"`
	// Acting/involved users are set on system messages only and stored as
	// ids; profile summaries are resolved at dispatch time.
	ActingUserID   string     `json:"acting_user_id,omitempty"`
	InvolvedUserID string     `json:"involved_user_id,omitempty"`
	IsSilent       bool       `json:"is_silent"`
	LastEditedAt   *time.Time `json:"last_edited_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ReadMarker records that a user has read a message. Existence of the pair
// means "read"; the pair is unique and a user never marks their own message.
type ReadMarker struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}
