package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rchat/internal/event"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/middleware"
	"github.com/rchat/internal/model"
	"github.com/rchat/internal/repository"
	"github.com/rchat/internal/service"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

type MessageHandler struct {
	chats      *repository.ChatRepository
	msgs       *repository.MessageRepository
	dispatcher *service.Dispatcher
	tracker    *service.ReadTracker
}

func NewMessageHandler(chats *repository.ChatRepository, msgs *repository.MessageRepository, dispatcher *service.Dispatcher, tracker *service.ReadTracker) *MessageHandler {
	return &MessageHandler{chats: chats, msgs: msgs, dispatcher: dispatcher, tracker: tracker}
}

// HistoryEntry — сообщение истории: конверт плюс кто его прочитал.
type HistoryEntry struct {
	event.MessageEnvelope
	ReadBy []string `json:"read_by"`
}

// ListMessages отдаёт историю чата, новые сначала. Конверты
// персонализированы под просматривающего, reply/forward превью разрешаются
// лениво, удалённые referent'ы просто отсутствуют.
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := middleware.GetUserID(r.Context())

	ok, err := h.chats.IsParticipant(r.Context(), chatID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	chat, err := h.chats.GetByID(r.Context(), chatID)
	if err != nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}

	limit := queryInt(r, "limit", defaultMessageLimit)
	if limit <= 0 || limit > maxMessageLimit {
		limit = defaultMessageLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	msgs, err := h.msgs.GetChatMessages(r.Context(), chatID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	entries := make([]HistoryEntry, 0, len(msgs))
	for i := range msgs {
		env, err := h.dispatcher.EnvelopeFor(r.Context(), chat, &msgs[i], userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		readBy, err := h.msgs.GetReadBy(r.Context(), msgs[i].ID)
		if err != nil {
			logger.Errorf("history read_by message=%s: %v", msgs[i].ID, err)
			readBy = nil
		}
		entries = append(entries, HistoryEntry{MessageEnvelope: *env, ReadBy: readBy})
	}
	writeJSON(w, http.StatusOK, entries)
}

type SendMessageRequest struct {
	ChatID            string `json:"chat_id"`
	OtherUserPublicID string `json:"other_user_public_id"`
	Text              string `json:"text"`
	AudioMediaID      string `json:"audio_media_id"`
	VideoMediaID      string `json:"video_media_id"`
	ReplyToID         string `json:"reply_to_id"`
	ForwardedFromID   string `json:"forwarded_from_id"`
	IsSilent          bool   `json:"is_silent"`
}

// SendMessage — HTTP-путь отправки (используется для медиа-сообщений;
// текст обычно идёт по WebSocket). Семантика идентична ws new_message.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())

	msgType := model.MessageTypeText
	switch {
	case req.AudioMediaID != "":
		msgType = model.MessageTypeAudio
	case req.VideoMediaID != "":
		msgType = model.MessageTypeVideo
	}
	if msgType == model.MessageTypeText && strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	draft := service.MessageDraft{
		ChatID:            req.ChatID,
		OtherUserPublicID: req.OtherUserPublicID,
		SenderUserID:      userID,
		Type:              msgType,
		Text:              req.Text,
		AudioMediaID:      req.AudioMediaID,
		VideoMediaID:      req.VideoMediaID,
		ReplyToID:         req.ReplyToID,
		ForwardedFromID:   req.ForwardedFromID,
		IsSilent:          req.IsSilent,
	}

	chat, err := h.dispatcher.ResolveTargetChat(r.Context(), userID, draft)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	msg, err := h.dispatcher.CreateAndDispatch(r.Context(), chat, draft)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// Отправка означает, что всё более старое в чате прочитано.
	if err := h.tracker.CatchUpBefore(r.Context(), chat.ID, msg.ID, userID); err != nil {
		logger.Errorf("send catch-up chat=%s: %v", chat.ID, err)
	}
	writeJSON(w, http.StatusCreated, msg)
}
