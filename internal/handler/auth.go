package handler

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/middleware"
	"github.com/rchat/internal/model"
	"github.com/rchat/internal/repository"
	"github.com/rchat/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	pushRepo *repository.PushRepository
	store    storage.SessionSecretStore
}

func NewAuthHandler(users *repository.UserRepository, sessions *repository.SessionRepository, pushRepo *repository.PushRepository, store storage.SessionSecretStore) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, pushRepo: pushRepo, store: store}
}

type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	PublicID  string `json:"public_id"`
	AvatarURL string `json:"avatar_url"`
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

// SessionResponse возвращается при регистрации и логине. session_secret
// показывается клиенту один раз — дальше он только подписывает запросы.
type SessionResponse struct {
	User          *model.User `json:"user"`
	SessionID     string      `json:"session_id"`
	SessionSecret string      `json:"session_secret"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	if req.FirstName == "" || req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "first_name and valid email required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	publicID := strings.TrimSpace(req.PublicID)
	if publicID == "" {
		publicID = newPublicID()
	}

	now := time.Now().UTC()
	u := &model.User{
		ID:           uuid.NewString(),
		PublicID:     publicID,
		FirstName:    req.FirstName,
		LastName:     strings.TrimSpace(req.LastName),
		Email:        req.Email,
		PasswordHash: string(hash),
		AvatarURL:    req.AvatarURL,
		CreatedAt:    now,
	}
	if err := h.users.Create(r.Context(), u); err != nil {
		// Дубликат email/public_id тоже попадёт сюда; клиенту детали не нужны.
		logger.Errorf("auth register: %v", err)
		writeError(w, http.StatusConflict, "user already exists")
		return
	}

	resp, err := h.openSession(r, u, "", "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	allowed, err := h.store.CheckLoginRateLimit(r.Context(), req.Email)
	if err != nil {
		logger.Errorf("auth login rate limit: %v", err)
	} else if !allowed {
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	u, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	resp, err := h.openSession(r, u, req.DeviceID, req.DeviceName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout отзывает текущую сессию: помечает её в БД, удаляет секрет из
// store и web-push подписку этой сессии.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if _, err := h.sessions.RevokeByID(r.Context(), sessionID); err != nil {
		logger.Errorf("auth logout revoke session_id=%s: %v", middleware.MaskSessionID(sessionID), err)
	}
	if err := h.store.DeleteSessionSecret(r.Context(), sessionID); err != nil {
		logger.Errorf("auth logout delete secret session_id=%s: %v", middleware.MaskSessionID(sessionID), err)
	}
	if err := h.pushRepo.DeleteBySessionID(r.Context(), sessionID); err != nil {
		logger.Errorf("auth logout delete push subscription: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AuthHandler) openSession(r *http.Request, u *model.User, deviceID, deviceName string) (*SessionResponse, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	secretB64 := base64.StdEncoding.EncodeToString(secret)

	now := time.Now().UTC()
	s := &model.Session{
		ID:         uuid.NewString(),
		UserID:     u.ID,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		LastSeenAt: now,
		CreatedAt:  now,
	}
	if err := h.sessions.Create(r.Context(), s); err != nil {
		return nil, err
	}
	if err := h.store.SetSessionSecret(r.Context(), s.ID, secretB64); err != nil {
		return nil, err
	}
	return &SessionResponse{User: u, SessionID: s.ID, SessionSecret: secretB64}, nil
}

// newPublicID генерирует короткий публичный идентификатор вида "u_3f9a2c1d".
func newPublicID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "u_" + uuid.NewString()[:8]
	}
	return "u_" + hex.EncodeToString(b)
}
