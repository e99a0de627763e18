package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RequireBearer rejects requests that carry no bearer credential. The
// credential itself is not validated here: authorization happens once, at the
// ledger, with the original caller's identity, so this layer only guarantees
// there is something to forward.
func RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"message": "missing bearer credential",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Credential returns the raw Authorization header so it can be forwarded
// unchanged on outbound ledger calls.
func Credential(r *http.Request) string {
	return r.Header.Get("Authorization")
}
