package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rchat/internal/middleware"
	"github.com/rchat/internal/model"
	"github.com/rchat/internal/repository"
)

// PushHandler управляет web-push подписками (сессия обязательна).
type PushHandler struct {
	subs           *repository.PushRepository
	vapidPublicKey string
}

func NewPushHandler(subs *repository.PushRepository, vapidPublicKey string) *PushHandler {
	return &PushHandler{subs: subs, vapidPublicKey: vapidPublicKey}
}

// VAPIDPublic отдаёт публичный VAPID-ключ для PushManager.subscribe().
func (h *PushHandler) VAPIDPublic(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublicKey == "" {
		writeError(w, http.StatusServiceUnavailable, "push not configured")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(h.vapidPublicKey))
}

// SubscribeRequest — subscription из PushManager.getSubscription().
type SubscribeRequest struct {
	Subscription struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	} `json:"subscription"`
}

// Subscribe сохраняет подписку текущей сессии; повторный вызов обновляет её.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Subscription.Endpoint == "" || req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "subscription.endpoint and subscription.keys required")
		return
	}

	sub := &model.PushSubscription{
		SessionID: middleware.GetSessionID(r.Context()),
		UserID:    middleware.GetUserID(r.Context()),
		Endpoint:  req.Subscription.Endpoint,
		P256dh:    req.Subscription.Keys.P256dh,
		Auth:      req.Subscription.Keys.Auth,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.subs.Upsert(r.Context(), sub); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unsubscribe удаляет подписку текущей сессии.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.subs.DeleteBySessionID(r.Context(), middleware.GetSessionID(r.Context())); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
