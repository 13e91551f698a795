package middleware

import (
	"net/http"
	"sync"
	"time"
)

const (
	apiWindow     = time.Minute
	apiMaxPerIP   = 200
	apiMaxPerUser = 100
)

// rateLimiter — скользящее окно по ключу. Храним времена недавних запросов
// и отбрасываем вышедшие за окно при каждой проверке.
type rateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{hits: make(map[string][]time.Time), max: max, window: window}
}

func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	recent := l.hits[key]
	for len(recent) > 0 && now.Sub(recent[0]) >= l.window {
		recent = recent[1:]
	}
	if len(recent) >= l.max {
		l.hits[key] = recent
		return false
	}
	l.hits[key] = append(recent, now)
	return true
}

var (
	limitByIP   = newRateLimiter(apiMaxPerIP, apiWindow)
	limitByUser = newRateLimiter(apiMaxPerUser, apiWindow)
)

func clientIP(r *http.Request) string {
	if v := r.Header.Get("X-Real-Ip"); v != "" {
		return v
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		return v
	}
	return r.RemoteAddr
}

// RateLimitAPI режет запросы сверх лимита по IP и по user_id (если запрос
// уже аутентифицирован). Превышение — 429.
func RateLimitAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limitByIP.allow(clientIP(r)) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if uid := GetUserID(r.Context()); uid != "" && !limitByUser.allow("u:"+uid) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
