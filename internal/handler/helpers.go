package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps typed service failures to HTTP statuses; untyped
// errors are treated as internal and logged.
func writeServiceError(w http.ResponseWriter, err error) {
	switch service.KindOf(err) {
	case service.KindValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	case service.KindPermission:
		writeError(w, http.StatusForbidden, err.Error())
	case service.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.Errorf("handler: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
