// Package sendgrid sends email through the SendGrid v3 mail API.
package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/email"
	"github.com/telecare/telecare/internal/provider/resilience"
)

const (
	// ProviderName identifies this email provider.
	ProviderName = "sendgrid"

	// DefaultBaseURL is the SendGrid API base URL.
	DefaultBaseURL = "https://api.sendgrid.com"
)

// ClientConfig holds configuration for the SendGrid client.
type ClientConfig struct {
	// APIKey is the SendGrid API key (required).
	APIKey string

	// FromAddress and FromName form the sender.
	FromAddress string
	FromName    string

	// BaseURL is the API base URL (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client without retries; the email service
	// owns the retry schedule.
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// Client is a SendGrid email provider.
type Client struct {
	apiKey     string
	from       address
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new SendGrid client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{Name: ProviderName})
	}

	return &Client{
		apiKey:     cfg.APIKey,
		from:       address{Email: cfg.FromAddress, Name: cfg.FromName},
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To []address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// Send delivers msg and returns the X-Message-Id assigned by SendGrid.
func (c *Client) Send(ctx context.Context, msg email.Message) (string, error) {
	payload := mailSendRequest{
		Personalizations: []personalization{{To: []address{{Email: msg.To}}}},
		From:             c.from,
		Subject:          msg.Subject,
	}
	// text/plain must precede text/html.
	if msg.Text != "" {
		payload.Content = append(payload.Content, content{Type: "text/plain", Value: msg.Text})
	}
	if msg.HTML != "" {
		payload.Content = append(payload.Content, content{Type: "text/html", Value: msg.HTML})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if jsonErr := json.Unmarshal(raw, &errResp); jsonErr == nil && len(errResp.Errors) > 0 {
			return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, errResp.Errors[0].Message)
		}
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	id := resp.Header.Get("X-Message-Id")
	c.logger.Debug().
		Str("provider_message_id", id).
		Msg("sendgrid accepted message")
	return id, nil
}

var _ email.Provider = (*Client)(nil)
