package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/middleware"
	"github.com/rchat/internal/ws"
)

// WSHandler апгрейдит /ws и привязывает соединение к пользователю из
// сессии. Origin проверяется по тому же списку, что и CORS.
type WSHandler struct {
	hub      *ws.Hub
	origins  map[string]bool
	allowAll bool
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *ws.Hub, allowedOrigins string) *WSHandler {
	h := &WSHandler{hub: hub, origins: make(map[string]bool)}
	allowedOrigins = strings.TrimSpace(allowedOrigins)
	if allowedOrigins == "" || allowedOrigins == "*" {
		h.allowAll = true
	} else {
		for _, o := range strings.Split(allowedOrigins, ",") {
			h.origins[strings.TrimSpace(o)] = true
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

func (h *WSHandler) originAllowed(r *http.Request) bool {
	if h.allowAll {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	// Не-браузерные клиенты Origin не шлют.
	return origin == "" || h.origins[origin]
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.originAllowed(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade user=%s: %v", userID, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, userID)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
