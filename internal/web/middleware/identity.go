package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/invoicedesk/internal/core"
)

// Identity headers set by the upstream gateway after it has authenticated
// the caller.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Identity stores the gateway-asserted caller in the request context.
// Requests without a user id are rejected with 401. An unknown or missing
// role is treated as a regular user.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			slog.Warn("auth: missing user identity",
				"path", r.URL.Path,
				"method", r.Method,
				"remote_addr", r.RemoteAddr,
			)
			writeAuthError(w, http.StatusUnauthorized, "missing user identity", "AUTH_MISSING_USER")
			return
		}

		role := core.RoleUser
		if strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserRole)), string(core.RoleAdmin)) {
			role = core.RoleAdmin
		}

		ctx := core.ContextWithActor(r.Context(), core.Actor{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects callers without the admin role. It must run after
// Identity.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := core.ActorFromContext(r.Context())
		if !ok || !actor.IsAdmin() {
			slog.Warn("auth: admin role required",
				"path", r.URL.Path,
				"user_id", actor.UserID,
			)
			writeAuthError(w, http.StatusForbidden, "admin privileges required", "AUTH_FORBIDDEN")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   message,
		"message": message,
		"code":    code,
	})
}
