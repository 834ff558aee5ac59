// Package providers resolves the ordered email provider list from configuration.
package providers

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/email"
	"github.com/telecare/telecare/internal/email/mailgun"
	"github.com/telecare/telecare/internal/email/sendgrid"
	"github.com/telecare/telecare/internal/email/smtp"
	"github.com/telecare/telecare/internal/provider/resilience"
)

// DefaultOrder is the provider priority when EMAIL_PROVIDER_ORDER is unset.
var DefaultOrder = []string{sendgrid.ProviderName, mailgun.ProviderName, smtp.ProviderName}

// Config holds settings for every supported provider. A provider whose
// required settings are missing is skipped.
type Config struct {
	Order []string

	FromAddress string
	FromName    string

	SendGridAPIKey string

	MailgunAPIKey  string
	MailgunDomain  string
	MailgunBaseURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	smtpPort, _ := strconv.Atoi(getEnvOrDefault("SMTP_PORT", "587"))

	order := DefaultOrder
	if v := os.Getenv("EMAIL_PROVIDER_ORDER"); v != "" {
		order = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
				order = append(order, name)
			}
		}
	}

	return Config{
		Order:          order,
		FromAddress:    getEnvOrDefault("EMAIL_FROM_ADDRESS", "alerts@telecare.local"),
		FromName:       getEnvOrDefault("EMAIL_FROM_NAME", "Telecare"),
		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		MailgunAPIKey:  os.Getenv("MAILGUN_API_KEY"),
		MailgunDomain:  os.Getenv("MAILGUN_DOMAIN"),
		MailgunBaseURL: os.Getenv("MAILGUN_BASE_URL"),
		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPPort:       smtpPort,
		SMTPUsername:   os.Getenv("SMTP_USERNAME"),
		SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
	}
}

// Build returns the configured providers in priority order. Unknown names
// and providers without credentials are logged and skipped.
func Build(cfg Config, log zerolog.Logger) []email.Provider {
	order := cfg.Order
	if len(order) == 0 {
		order = DefaultOrder
	}

	from := cfg.FromAddress
	if cfg.FromName != "" {
		from = cfg.FromName + " <" + cfg.FromAddress + ">"
	}

	seen := make(map[string]bool, len(order))
	var out []email.Provider
	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true

		plog := log.With().Str("provider", name).Logger()
		switch name {
		case sendgrid.ProviderName:
			if cfg.SendGridAPIKey == "" {
				plog.Warn().Msg("email provider not configured, skipping")
				continue
			}
			out = append(out, sendgrid.NewClient(sendgrid.ClientConfig{
				APIKey:      cfg.SendGridAPIKey,
				FromAddress: cfg.FromAddress,
				FromName:    cfg.FromName,
				HTTPClient:  resilience.NewClient(resilience.ClientConfig{Name: sendgrid.ProviderName}),
				Logger:      plog,
			}))
		case mailgun.ProviderName:
			if cfg.MailgunAPIKey == "" || cfg.MailgunDomain == "" {
				plog.Warn().Msg("email provider not configured, skipping")
				continue
			}
			out = append(out, mailgun.NewClient(mailgun.ClientConfig{
				APIKey:  cfg.MailgunAPIKey,
				Domain:  cfg.MailgunDomain,
				From:    from,
				BaseURL: cfg.MailgunBaseURL,
				Logger:  plog,
			}))
		case smtp.ProviderName:
			if cfg.SMTPHost == "" {
				plog.Warn().Msg("email provider not configured, skipping")
				continue
			}
			out = append(out, smtp.NewClient(smtp.ClientConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				From:     cfg.FromAddress,
				Logger:   plog,
			}))
		default:
			plog.Warn().Msg("unknown email provider, skipping")
			continue
		}
		plog.Info().Msg("email provider enabled")
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
