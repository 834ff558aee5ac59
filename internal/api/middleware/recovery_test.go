package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/api/middleware"
	"github.com/telecare/telecare/internal/auth"
	"github.com/telecare/telecare/internal/user"
)

func TestRecovery_WritesProblemAndLogsCaller(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("threshold table missing")
	})
	handler := middleware.RequestID(middleware.Recovery(log)(panicking))

	req := httptest.NewRequest(http.MethodPost, "/v1/metrics", http.NoBody)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), auth.Principal{UserID: "usr_ann", Role: user.RolePatient}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "panic recovered", entry["message"])
	assert.Equal(t, "usr_ann", entry["user_id"])
	assert.Equal(t, "threshold table missing", entry["panic"])
	assert.Equal(t, rec.Header().Get(middleware.RequestIDHeader), entry["request_id"])
}

func TestRecovery_ReraisesAbortHandler(t *testing.T) {
	aborting := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	})
	handler := middleware.Recovery(zerolog.Nop())(aborting)

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/realtime", http.NoBody))
	})
}
