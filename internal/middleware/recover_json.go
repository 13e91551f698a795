package middleware

import (
	"bufio"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/rchat/internal/logger"
)

// trackingWriter запоминает статус и факт записи ответа. Прокидывает
// http.Hijacker, иначе WebSocket upgrade через обёртку невозможен.
type trackingWriter struct {
	http.ResponseWriter
	status  int
	started bool
}

func (w *trackingWriter) WriteHeader(code int) {
	if w.started {
		return
	}
	w.status = code
	w.started = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.started = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// RecoverJSON перехватывает панику обработчика: пишет её со стеком в лог и,
// если ответ ещё не начат, отдаёт клиенту JSON 500.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			logger.Errorf("panic in %s %s: %v\n%s", r.Method, r.URL.Path, p, debug.Stack())
			if !tw.started {
				h := tw.ResponseWriter.Header()
				h.Set("Content-Type", "application/json; charset=utf-8")
				tw.ResponseWriter.WriteHeader(http.StatusInternalServerError)
				tw.ResponseWriter.Write([]byte(`{"error":"internal server error"}`))
			}
		}()
		next.ServeHTTP(tw, r)
	})
}
