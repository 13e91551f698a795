package middleware

import "strings"

const maskKeep = 4

// MaskSessionID обрезает session_id для логов: полный id в лог не попадает.
func MaskSessionID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maskKeep {
		return "****"
	}
	return s[:maskKeep] + "***"
}
