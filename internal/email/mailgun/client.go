// Package mailgun sends email through the Mailgun messages API.
package mailgun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/email"
)

const (
	// ProviderName identifies this email provider.
	ProviderName = "mailgun"

	// DefaultBaseURL is the Mailgun US region API base URL.
	DefaultBaseURL = "https://api.mailgun.net"
)

// ClientConfig holds configuration for the Mailgun client.
type ClientConfig struct {
	// APIKey and Domain are required.
	APIKey string
	Domain string

	// From is the sender, e.g. "Telecare <alerts@example.com>".
	From string

	// BaseURL is the API base URL (optional, EU accounts use api.eu.mailgun.net).
	BaseURL string

	// Timeout for a single request. Default: 10 seconds
	Timeout time.Duration

	Logger zerolog.Logger
}

// Client is a Mailgun email provider.
type Client struct {
	http   *resty.Client
	domain string
	from   string
	logger zerolog.Logger
}

// NewClient creates a new Mailgun client. Retries are left to the email service.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetBasicAuth("api", cfg.APIKey).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		domain: cfg.Domain,
		from:   cfg.From,
		logger: cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send delivers msg and returns the Mailgun message ID.
func (c *Client) Send(ctx context.Context, msg email.Message) (string, error) {
	form := map[string]string{
		"from":    c.from,
		"to":      msg.To,
		"subject": msg.Subject,
	}
	if msg.Text != "" {
		form["text"] = msg.Text
	}
	if msg.HTML != "" {
		form["html"] = msg.HTML
	}

	var result sendResponse
	var failure sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		SetError(&failure).
		Post("/v3/" + c.domain + "/messages")
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}

	if resp.IsError() {
		if failure.Message != "" {
			return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode(), failure.Message)
		}
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}
	if result.ID == "" {
		return "", errors.New("mailgun response missing message id")
	}

	c.logger.Debug().
		Str("provider_message_id", result.ID).
		Msg("mailgun queued message")
	return result.ID, nil
}

var _ email.Provider = (*Client)(nil)
