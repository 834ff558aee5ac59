package mailgun_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/email"
	"github.com/telecare/telecare/internal/email/mailgun"
)

func TestClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/mg.telecare.test/messages", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "api", user)
		assert.Equal(t, "key-test", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Telecare <alerts@telecare.test>", r.PostForm.Get("from"))
		assert.Equal(t, "patient@example.com", r.PostForm.Get("to"))
		assert.Equal(t, "Health alert", r.PostForm.Get("subject"))
		assert.Equal(t, "plain", r.PostForm.Get("text"))
		assert.Equal(t, "<b>html</b>", r.PostForm.Get("html"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"<20240301.1@mg.telecare.test>","message":"Queued. Thank you."}`))
	}))
	defer server.Close()

	client := mailgun.NewClient(mailgun.ClientConfig{
		APIKey:  "key-test",
		Domain:  "mg.telecare.test",
		From:    "Telecare <alerts@telecare.test>",
		BaseURL: server.URL,
	})

	id, err := client.Send(context.Background(), email.Message{
		To:      "patient@example.com",
		Subject: "Health alert",
		Text:    "plain",
		HTML:    "<b>html</b>",
	})
	require.NoError(t, err)
	assert.Equal(t, "<20240301.1@mg.telecare.test>", id)
}

func TestClient_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"'to' parameter is not a valid address"}`))
	}))
	defer server.Close()

	client := mailgun.NewClient(mailgun.ClientConfig{APIKey: "k", Domain: "d", BaseURL: server.URL})

	_, err := client.Send(context.Background(), email.Message{To: "bad", Subject: "s", Text: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "not a valid address")
}

func TestClient_SendMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := mailgun.NewClient(mailgun.ClientConfig{APIKey: "k", Domain: "d", BaseURL: server.URL})

	_, err := client.Send(context.Background(), email.Message{To: "a@example.com", Subject: "s", Text: "t"})
	assert.Error(t, err)
}
