// Package smtp sends email through an SMTP relay.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/email"
)

// ProviderName identifies this email provider.
const ProviderName = "smtp"

// ClientConfig holds configuration for the SMTP relay.
type ClientConfig struct {
	Host string
	Port int

	// Username and Password enable PLAIN auth when Username is set.
	Username string
	Password string

	From string

	// Timeout bounds the whole SMTP conversation. Default: 15 seconds
	Timeout time.Duration

	Logger zerolog.Logger
}

// Client is an SMTP email provider.
type Client struct {
	host     string
	addr     string
	username string
	password string
	from     string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewClient creates a new SMTP client.
func NewClient(cfg ClientConfig) *Client {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		host:     cfg.Host,
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		timeout:  timeout,
		logger:   cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Send delivers msg and returns the generated Message-ID header value.
func (c *Client) Send(ctx context.Context, msg email.Message) (string, error) {
	messageID := "<" + uuid.New().String() + "@" + c.host + ">"
	body, err := BuildMessage(c.from, msg, messageID, time.Now())
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return "", fmt.Errorf("dialing smtp relay: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("starting smtp session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.host, MinVersion: tls.VersionTLS12}); err != nil {
			return "", fmt.Errorf("starting tls: %w", err)
		}
	}
	if c.username != "" {
		if err := client.Auth(smtp.PlainAuth("", c.username, c.password, c.host)); err != nil {
			return "", fmt.Errorf("authenticating: %w", err)
		}
	}

	if err := client.Mail(c.from); err != nil {
		return "", fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return "", fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return "", fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finishing message: %w", err)
	}
	if err := client.Quit(); err != nil {
		c.logger.Debug().Err(err).Msg("smtp quit failed after delivery")
	}

	return messageID, nil
}

// BuildMessage renders msg as a MIME message. Messages with both bodies are
// sent as multipart/alternative.
func BuildMessage(from string, msg email.Message, messageID string, date time.Time) ([]byte, error) {
	if err := email.ValidateAddress(from); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	header("From", from)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", date.Format(time.RFC1123Z))
	header("Message-ID", messageID)
	header("MIME-Version", "1.0")

	if msg.HTML == "" || msg.Text == "" {
		contentType := "text/plain; charset=utf-8"
		body := msg.Text
		if msg.HTML != "" {
			contentType = "text/html; charset=utf-8"
			body = msg.HTML
		}
		header("Content-Type", contentType)
		buf.WriteString("\r\n")
		buf.WriteString(body)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	header("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, fmt.Errorf("creating mime part: %w", err)
		}
		if _, err := pw.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("writing mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing mime writer: %w", err)
	}
	return buf.Bytes(), nil
}

var _ email.Provider = (*Client)(nil)
