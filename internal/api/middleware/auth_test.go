package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/api/middleware"
	"github.com/telecare/telecare/internal/auth"
	"github.com/telecare/telecare/internal/user"
)

func newTestJWTService(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://auth.telecare.test",
		Audience:   "telecare-api",
	})
	require.NoError(t, err)
	return svc
}

func issueToken(t *testing.T, svc *auth.JWTService, userID string, role user.Role) string {
	t.Helper()
	token, _, err := svc.Issue(auth.Principal{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_MissingAuthorizationHeader(t *testing.T) {
	handler := middleware.Auth(newTestJWTService(t))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authorization header")
}

func TestAuth_InvalidAuthorizationFormat(t *testing.T) {
	handler := middleware.Auth(newTestJWTService(t))(okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "token123"},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"bearer lowercase no space", "bearertoken123"},
		{"empty bearer", "Bearer "},
		{"just bearer", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	handler := middleware.Auth(newTestJWTService(t))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer invalid.jwt.token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid access token")
}

func TestAuth_ValidTokenStoresPrincipal(t *testing.T) {
	svc := newTestJWTService(t)
	token := issueToken(t, svc, "usr_provider1", user.RoleProvider)

	var captured auth.Principal
	handler := middleware.Auth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := middleware.GetPrincipal(r.Context())
		require.True(t, ok)
		captured = p
		assert.Equal(t, "usr_provider1", middleware.GetUserID(r.Context()))
		assert.Equal(t, user.RoleProvider, middleware.GetRole(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.Principal{UserID: "usr_provider1", Role: user.RoleProvider}, captured)
}

func TestAuth_CaseInsensitiveBearer(t *testing.T) {
	svc := newTestJWTService(t)
	token := issueToken(t, svc, "usr_patient1", user.RolePatient)
	handler := middleware.Auth(svc)(okHandler())

	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER "} {
		t.Run(prefix, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			req.Header.Set("Authorization", prefix+token)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	svc := newTestJWTService(t)
	handler := middleware.Auth(svc)(middleware.RequireRole(user.RoleAdmin)(okHandler()))

	tests := []struct {
		role user.Role
		want int
	}{
		{user.RoleAdmin, http.StatusOK},
		{user.RoleProvider, http.StatusForbidden},
		{user.RolePatient, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", http.NoBody)
			req.Header.Set("Authorization", "Bearer "+issueToken(t, svc, "usr_1", tt.role))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestGetUserID_NoAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	assert.Empty(t, middleware.GetUserID(req.Context()))
	_, ok := middleware.GetPrincipal(req.Context())
	assert.False(t, ok)
}

func TestAuth_WebsocketQueryToken(t *testing.T) {
	svc := newTestJWTService(t)
	token := issueToken(t, svc, "usr_patient1", user.RolePatient)
	handler := middleware.Auth(svc)(okHandler())

	upgrade := func(target string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		return req
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, upgrade("/v1/realtime?access_token="+token))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Plain requests must use the header.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/alerts?access_token="+token, http.NoBody))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
