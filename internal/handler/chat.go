package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rchat/internal/middleware"
	"github.com/rchat/internal/model"
	"github.com/rchat/internal/repository"
	"github.com/rchat/internal/service"
)

type ChatHandler struct {
	chats      *repository.ChatRepository
	users      *repository.UserRepository
	dispatcher *service.Dispatcher
	membership *service.Membership
}

func NewChatHandler(chats *repository.ChatRepository, users *repository.UserRepository, dispatcher *service.Dispatcher, membership *service.Membership) *ChatHandler {
	return &ChatHandler{chats: chats, users: users, dispatcher: dispatcher, membership: membership}
}

type CreateGroupRequest struct {
	Type              model.ChatType `json:"type"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	AvatarURL         string         `json:"avatar_url"`
	IsWorkChat        bool           `json:"is_work_chat"`
	AllowMessagesFrom string         `json:"allow_messages_from"`
	AllowMessagesTo   string         `json:"allow_messages_to"`
	MemberPublicIDs   []string       `json:"member_public_ids"`
}

// CreateGroup создаёт группу или канал; создатель становится owner.
func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	creatorID := middleware.GetUserID(r.Context())

	memberIDs := make([]string, 0, len(req.MemberPublicIDs))
	for _, pid := range req.MemberPublicIDs {
		u, err := h.users.GetByPublicID(r.Context(), strings.TrimSpace(pid))
		if err != nil {
			writeError(w, http.StatusNotFound, "user not found: "+pid)
			return
		}
		memberIDs = append(memberIDs, u.ID)
	}

	chat, err := h.membership.CreateGroup(r.Context(), creatorID, service.GroupDraft{
		Type:              req.Type,
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		AvatarURL:         req.AvatarURL,
		IsWorkChat:        req.IsWorkChat,
		AllowMessagesFrom: req.AllowMessagesFrom,
		AllowMessagesTo:   req.AllowMessagesTo,
		MemberIDs:         memberIDs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

type CreatePrivateRequest struct {
	UserPublicID string `json:"user_public_id"`
}

// CreatePrivate возвращает приватный чат с пользователем, создавая его при
// необходимости. Повторный вызов отдаёт тот же чат.
func (h *ChatHandler) CreatePrivate(w http.ResponseWriter, r *http.Request) {
	var req CreatePrivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	currentUserID := middleware.GetUserID(r.Context())

	other, err := h.users.GetByPublicID(r.Context(), strings.TrimSpace(req.UserPublicID))
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if other.ID == currentUserID {
		writeError(w, http.StatusBadRequest, "cannot create chat with yourself")
		return
	}

	chat, err := h.dispatcher.ResolveOrCreatePrivateChat(r.Context(), currentUserID, other.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view, err := h.dispatcher.ViewFor(r.Context(), chat, currentUserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListChats отдаёт чаты пользователя, отсортированные по активности, с
// персонализированными именем/аватаром и последним сообщением.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chats, err := h.chats.GetUserChats(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load chats")
		return
	}
	views := make([]*model.ChatView, 0, len(chats))
	for i := range chats {
		view, err := h.dispatcher.ViewFor(r.Context(), &chats[i], userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

// GetParticipants отдаёт участников чата с ролями (только для участников).
func (h *ChatHandler) GetParticipants(w http.ResponseWriter, r *http.Request) {
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
	participants, err := h.chats.GetParticipants(r.Context(), chatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load participants")
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

type SetRoleRequest struct {
	UserPublicID string     `json:"user_public_id"`
	Role         model.Role `json:"role"`
}

// SetRole добавляет участника или меняет его роль. Назначение owner —
// передача владения: прежний owner становится admin.
func (h *ChatHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	actorID := middleware.GetUserID(r.Context())

	var req SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	target, err := h.users.GetByPublicID(r.Context(), strings.TrimSpace(req.UserPublicID))
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.membership.SetRole(r.Context(), chatID, actorID, target.ID, req.Role); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveParticipant исключает участника из чата.
func (h *ChatHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	targetID := chi.URLParam(r, "userID")
	actorID := middleware.GetUserID(r.Context())

	if err := h.membership.Remove(r.Context(), chatID, actorID, targetID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Leave выводит текущего пользователя из чата.
func (h *ChatHandler) Leave(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := middleware.GetUserID(r.Context())

	if err := h.membership.Leave(r.Context(), chatID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
