package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/invoicedesk/internal/config"
	"github.com/JonMunkholm/invoicedesk/internal/core"
)

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func TestIdentity(t *testing.T) {
	var got core.Actor
	h := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = core.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		userID   string
		role     string
		wantCode int
		wantRole core.Role
	}{
		{"missing user", "", "", http.StatusUnauthorized, ""},
		{"user", "u-1", "", http.StatusNoContent, core.RoleUser},
		{"admin", "u-2", "Admin", http.StatusNoContent, core.RoleAdmin},
		{"unknown role", "u-3", "root", http.StatusNoContent, core.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = core.Actor{}
			req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
			if tt.userID != "" {
				req.Header.Set(HeaderUserID, tt.userID)
			}
			if tt.role != "" {
				req.Header.Set(HeaderUserRole, tt.role)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusNoContent {
				assert.Equal(t, tt.userID, got.UserID)
				assert.Equal(t, tt.wantRole, got.Role)
			} else {
				assert.Contains(t, rec.Body.String(), "AUTH_MISSING_USER")
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	h := Identity(RequireAdmin(http.HandlerFunc(okHandler)))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/campaigns/pending", nil)
	req.Header.Set(HeaderUserID, "u-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set(HeaderUserRole, "admin")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"alpha", "beta"}}
	h := APIKeyAuth(cfg)(http.HandlerFunc(okHandler))

	tests := []struct {
		key  string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"gamma", http.StatusForbidden},
		{"beta", http.StatusNoContent},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
		if tt.key != "" {
			req.Header.Set(HeaderAPIKey, tt.key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, "key %q", tt.key)
	}

	open := APIKeyAuth(&config.SecurityConfig{})(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTrustedRealIP(t *testing.T) {
	var remote, ctxIP string
	h := TrustedRealIP([]string{"10.0.0.0/8", "192.168.1.5", "not-an-ip"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remote = r.RemoteAddr
			ctxIP = core.GetIPAddressFromContext(r.Context())
		}))

	tests := []struct {
		name   string
		remote string
		header map[string]string
		want   string
	}{
		{"trusted real ip", "10.1.2.3:5555", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"trusted forwarded", "192.168.1.5:80", map[string]string{"X-Forwarded-For": "198.51.100.7, 10.1.1.1"}, "198.51.100.7"},
		{"untrusted ignored", "203.0.113.1:1234", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.1"},
		{"garbage header", "10.1.2.3:5555", map[string]string{"X-Real-IP": "nope"}, "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			require.Equal(t, tt.want, ctxIP)
			assert.Contains(t, remote, tt.want)
		})
	}
}

func TestLoggerCapturesStatus(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}
