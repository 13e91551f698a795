package middleware

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/repository"
	"github.com/rchat/internal/storage"
)

const TimestampSkew = 30 * time.Second

const sessionSecretLen = 32

// SessionAuth проверяет HMAC-подпись запроса сессионным секретом и кладёт
// user_id/session_id в контекст. WebSocket handshake передаёт те же поля
// query-параметрами: свои заголовки из браузера не выставить.
//
// Подписывается Method + Path + body + timestamp; секрет живёт в store
// (Redis, либо in-memory в -dev) и исчезает при logout.
func SessionAuth(sessions *repository.SessionRepository, store storage.SessionSecretStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := headerOrQuery(r, "X-Session-Id", "session_id")
			timestamp := headerOrQuery(r, "X-Timestamp", "timestamp")
			signature := headerOrQuery(r, "X-Signature", "signature")
			if sessionID == "" || timestamp == "" || signature == "" || !freshTimestamp(timestamp) {
				unauthorized(w)
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
				return
			}

			secretB64, err := store.GetSessionSecret(r.Context(), sessionID)
			if err != nil || secretB64 == "" {
				unauthorized(w)
				return
			}
			payload := r.Method + r.URL.Path + string(body) + timestamp
			if !validSignature(secretB64, payload, signature) {
				unauthorized(w)
				return
			}

			session, err := sessions.GetByID(r.Context(), sessionID)
			if err != nil || session == nil {
				unauthorized(w)
				return
			}
			if err := sessions.UpdateLastSeen(r.Context(), sessionID, time.Now().UTC()); err != nil {
				logger.Errorf("session auth UpdateLastSeen session_id=%s: %v", MaskSessionID(sessionID), err)
			}

			ctx := context.WithValue(r.Context(), UserIDKey, session.UserID)
			ctx = context.WithValue(ctx, SessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
}

// freshTimestamp допускает расхождение часов клиента в пределах TimestampSkew.
func freshTimestamp(s string) bool {
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return false
	}
	delta := time.Since(time.Unix(ts, 0))
	return delta <= TimestampSkew && delta >= -TimestampSkew
}

// readAndRestoreBody вычитывает тело для подписи и возвращает его обратно
// в r.Body для обработчика.
func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func validSignature(secretB64, payload, signature string) bool {
	secret, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil || len(secret) != sessionSecretLen {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(want))
}

func headerOrQuery(r *http.Request, header, query string) string {
	if v := r.Header.Get(header); v != "" {
		return v
	}
	return r.URL.Query().Get(query)
}
