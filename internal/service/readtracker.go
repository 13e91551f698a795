package service

import (
	"context"
	"errors"

	"github.com/rchat/internal/event"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/repository"
)

// ReadTracker maintains read markers and broadcasts read_message events to
// the chat's connected participants whenever the read state actually
// changes. Marking is idempotent: re-reading an already-read message is a
// no-op reported back to the caller.
type ReadTracker struct {
	chats  ChatStore
	msgs   MessageStore
	pusher Pusher
}

func NewReadTracker(chats ChatStore, msgs MessageStore, pusher Pusher) *ReadTracker {
	return &ReadTracker{chats: chats, msgs: msgs, pusher: pusher}
}

// MarkRead records that readerID has read the message. Reports false when
// the marker already existed. Senders cannot mark their own messages.
func (t *ReadTracker) MarkRead(ctx context.Context, chatID, messageID, readerID string) (bool, error) {
	msg, err := t.msgs.GetByID(ctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, E(KindNotFound, event.StatusMessageNotFound, "message not found")
	}
	if err != nil {
		return false, Internal("load message", err)
	}
	if chatID != "" && msg.ChatID != chatID {
		return false, E(KindValidation, event.StatusInvalidData, "message does not belong to this chat")
	}

	ok, err := t.chats.IsParticipant(ctx, msg.ChatID, readerID)
	if err != nil {
		return false, Internal("membership check", err)
	}
	if !ok {
		return false, E(KindPermission, event.StatusPermissionDenied, "reader is not a participant of this chat")
	}
	if msg.SenderUserID == readerID {
		return false, E(KindValidation, event.StatusInvalidData, "cannot mark own message as read")
	}

	marked, err := t.msgs.MarkRead(ctx, messageID, readerID)
	if err != nil {
		return false, Internal("mark read", err)
	}
	if marked {
		t.broadcast(ctx, msg.ChatID, messageID, readerID)
	}
	return marked, nil
}

// CatchUpBefore marks every message in the chat strictly older than the
// reference message as read by readerID, skipping their own. Fires a single
// read_message broadcast when at least one marker was created.
func (t *ReadTracker) CatchUpBefore(ctx context.Context, chatID, beforeMessageID, readerID string) error {
	n, err := t.msgs.MarkReadBefore(ctx, chatID, beforeMessageID, readerID)
	if err != nil {
		return Internal("catch-up mark read", err)
	}
	if n > 0 {
		logger.Debugf("read catch-up chat=%s reader=%s marked=%d", chatID, readerID, n)
		t.broadcast(ctx, chatID, beforeMessageID, readerID)
	}
	return nil
}

// broadcast pushes the read event to every connected participant, the
// reader included (their other surfaces update too).
func (t *ReadTracker) broadcast(ctx context.Context, chatID, messageID, readerID string) {
	ids, err := t.chats.GetParticipantUserIDs(ctx, chatID)
	if err != nil {
		logger.Errorf("read broadcast chat=%s: %v", chatID, err)
		return
	}
	ev := event.Event{Name: event.ReadMessage, Payload: event.ReadPayload{
		ChatID:     chatID,
		MessageID:  messageID,
		ReadByUser: readerID,
	}}
	for _, id := range ids {
		t.pusher.Push(id, ev)
	}
}
