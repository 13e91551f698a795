// Package event defines the envelopes pushed over live connections: domain
// events (new_message, read_message, membership_changed, ...) and structured
// error events. Both the ws hub and the services emit through these types so
// the wire shape lives in one place.
package event

import (
	"encoding/json"
	"time"

	"github.com/rchat/internal/model"
)

type Name string

const (
	NewMessage        Name = "new_message"
	ReadMessage       Name = "read_message"
	MembershipChanged Name = "membership_changed"
	ChatCreated       Name = "chat_created"
	Error             Name = "error"
)

// Event is the domain envelope. Payload uses typed structs, not
// map[string]any.
type Event struct {
	Name    Name `json:"event"`
	Payload any  `json:"payload"`
}

// ErrorStatus classifies error events sent back to the initiating
// connection.
type ErrorStatus string

const (
	StatusInvalidData      ErrorStatus = "invalid_data"
	StatusPermissionDenied ErrorStatus = "permission_denied"
	StatusChatNotFound     ErrorStatus = "chat_not_found"
	StatusMessageNotFound  ErrorStatus = "message_not_found"
	StatusUserNotFound     ErrorStatus = "user_not_found"
	StatusServerError      ErrorStatus = "server_error"
)

// ErrorPayload is emitted when an inbound client event fails validation or
// triggers an unexpected failure. EchoedInput carries the offending input
// back so the client can correlate.
type ErrorPayload struct {
	Status      ErrorStatus     `json:"status"`
	SourceEvent Name            `json:"source_event"`
	Message     string          `json:"message"`
	EchoedInput json.RawMessage `json:"echoed_input,omitempty"`
}

// NewError builds an error event for an inbound event that failed.
func NewError(status ErrorStatus, source Name, msg string, input json.RawMessage) Event {
	return Event{Name: Error, Payload: ErrorPayload{
		Status:      status,
		SourceEvent: source,
		Message:     msg,
		EchoedInput: input,
	}}
}

// Sender identifies who authored a message: a user XOR a chat (channel
// posts are authored by the chat itself).
type Sender struct {
	UserID    string `json:"user_id,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ForeignMessage is a reply-to or forwarded-from preview, resolved lazily
// from the weak message reference. Missing referents are simply absent.
type ForeignMessage struct {
	ID     string            `json:"id"`
	Type   model.MessageType `json:"type"`
	Text   string            `json:"text,omitempty"`
	Sender Sender            `json:"sender"`
}

// MessageEnvelope is the per-recipient view of a freshly created message.
// ChatName and ChatAvatarURL are personalized: for private chats they are
// the other participant's profile as seen by this recipient.
type MessageEnvelope struct {
	ID            string            `json:"id"`
	Type          model.MessageType `json:"type"`
	ChatID        string            `json:"chat_id"`
	ChatName      string            `json:"chat_name"`
	ChatAvatarURL string            `json:"chat_avatar_url,omitempty"`
	Sender        Sender            `json:"sender"`
	Text          string            `json:"text,omitempty"`
	AudioURL      string            `json:"audio_url,omitempty"`
	VideoURL      string            `json:"video_url,omitempty"`
	ReplyTo       *ForeignMessage   `json:"reply_to,omitempty"`
	ForwardedFrom *ForeignMessage   `json:"forwarded_from,omitempty"`
	// Acting/involved are resolved at dispatch time for system messages,
	// never stored as denormalized text.
	ActingUser   *model.UserSummary `json:"acting_user,omitempty"`
	InvolvedUser *model.UserSummary `json:"involved_user,omitempty"`
	IsSilent     bool               `json:"is_silent"`
	CreatedAt    time.Time          `json:"created_at"`
}

// ReadPayload is broadcast to all connected chat participants when read
// markers change.
type ReadPayload struct {
	ChatID     string `json:"chat_id"`
	MessageID  string `json:"message_id"`
	ReadByUser string `json:"read_by_user"`
}

// MembershipChange describes what happened to a participant.
type MembershipChange string

const (
	ParticipantAdded   MembershipChange = "added"
	ParticipantRemoved MembershipChange = "removed"
	ParticipantLeft    MembershipChange = "left"
	RoleChanged        MembershipChange = "role_changed"
)

// MembershipPayload is broadcast when chat membership mutates.
type MembershipPayload struct {
	ChatID     string             `json:"chat_id"`
	Change     MembershipChange   `json:"change"`
	User       model.UserSummary  `json:"user"`
	Role       model.Role         `json:"role,omitempty"`
	ActingUser *model.UserSummary `json:"acting_user,omitempty"`
}
