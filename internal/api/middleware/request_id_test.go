package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/telecare/telecare/internal/api/middleware"
)

func serveRequestID(t *testing.T, inbound string) (contextID, headerID string) {
	t.Helper()
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contextID = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts", http.NoBody)
	if inbound != "" {
		req.Header.Set(middleware.RequestIDHeader, inbound)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return contextID, w.Header().Get(middleware.RequestIDHeader)
}

func TestRequestID_GeneratesNewID(t *testing.T) {
	ctxID, headerID := serveRequestID(t, "")

	assert.True(t, strings.HasPrefix(ctxID, "req_"), ctxID)
	assert.Len(t, ctxID, len("req_")+32)
	assert.Equal(t, ctxID, headerID)
}

func TestRequestID_PreservesExistingID(t *testing.T) {
	ctxID, headerID := serveRequestID(t, "gw-7f3a.retry_2")

	assert.Equal(t, "gw-7f3a.retry_2", ctxID)
	assert.Equal(t, "gw-7f3a.retry_2", headerID)
}

func TestRequestID_ReplacesUnsafeIDs(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
	}{
		{"too long", strings.Repeat("a", 65)},
		{"whitespace", "abc def"},
		{"log injection", "abc\ninjected=true"},
		{"quotes", `abc"def`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctxID, headerID := serveRequestID(t, tt.inbound)
			assert.NotEqual(t, tt.inbound, ctxID)
			assert.True(t, strings.HasPrefix(ctxID, "req_"))
			assert.Equal(t, ctxID, headerID)
		})
	}
}

func TestGetRequestID_ReturnsEmptyStringForMissingContext(t *testing.T) {
	assert.Empty(t, middleware.GetRequestID(context.Background()))
}

func TestWithRequestID(t *testing.T) {
	ctx := middleware.WithRequestID(context.Background(), "req_job")
	assert.Equal(t, "req_job", middleware.GetRequestID(ctx))
}

func TestRequestID_UniqueIDs(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := middleware.NewRequestID()
		assert.False(t, ids[id], "duplicate request ID generated: %s", id)
		ids[id] = true
	}
}
