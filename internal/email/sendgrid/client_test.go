package sendgrid_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/email"
	"github.com/telecare/telecare/internal/email/sendgrid"
)

func TestClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))

		var body struct {
			Personalizations []struct {
				To []struct {
					Email string `json:"email"`
				} `json:"to"`
			} `json:"personalizations"`
			From struct {
				Email string `json:"email"`
				Name  string `json:"name"`
			} `json:"from"`
			Subject string `json:"subject"`
			Content []struct {
				Type  string `json:"type"`
				Value string `json:"value"`
			} `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		assert.Equal(t, "patient@example.com", body.Personalizations[0].To[0].Email)
		assert.Equal(t, "alerts@telecare.test", body.From.Email)
		assert.Equal(t, "Telecare", body.From.Name)
		assert.Equal(t, "Health alert", body.Subject)
		require.Len(t, body.Content, 2)
		assert.Equal(t, "text/plain", body.Content[0].Type)
		assert.Equal(t, "text/html", body.Content[1].Type)

		w.Header().Set("X-Message-Id", "sg-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := sendgrid.NewClient(sendgrid.ClientConfig{
		APIKey:      "SG.test",
		FromAddress: "alerts@telecare.test",
		FromName:    "Telecare",
		BaseURL:     server.URL,
	})

	id, err := client.Send(context.Background(), email.Message{
		To:      "patient@example.com",
		Subject: "Health alert",
		HTML:    "<p>hi</p>",
		Text:    "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "sg-123", id)
	assert.Equal(t, sendgrid.ProviderName, client.Name())
}

func TestClient_SendRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"The provided authorization grant is invalid"}]}`))
	}))
	defer server.Close()

	client := sendgrid.NewClient(sendgrid.ClientConfig{APIKey: "bad", BaseURL: server.URL})

	_, err := client.Send(context.Background(), email.Message{To: "a@example.com", Subject: "s", Text: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "authorization grant is invalid")
}

func TestClient_ServerErrorNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := sendgrid.NewClient(sendgrid.ClientConfig{APIKey: "k", BaseURL: server.URL})

	_, err := client.Send(context.Background(), email.Message{To: "a@example.com", Subject: "s", Text: "t"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
