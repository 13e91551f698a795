package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rchat/internal/logger"
)

// RequestLog пишет метод, путь, статус и длительность запроса. На уровне
// info видны только медленные запросы, на debug — все.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tw := &trackingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(tw, r)
		logger.LogDuration(fmt.Sprintf("http %s %s status=%d", r.Method, r.URL.Path, tw.status), start)
	})
}
