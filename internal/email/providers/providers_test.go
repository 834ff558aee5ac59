package providers_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/email"
	"github.com/telecare/telecare/internal/email/providers"
)

func names(ps []email.Provider) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name()
	}
	return out
}

func TestBuild_SkipsUnconfigured(t *testing.T) {
	ps := providers.Build(providers.Config{
		FromAddress:   "alerts@telecare.test",
		MailgunAPIKey: "key",
		MailgunDomain: "mg.telecare.test",
		SMTPHost:      "smtp.telecare.test",
	}, zerolog.Nop())

	assert.Equal(t, []string{"mailgun", "smtp"}, names(ps))
}

func TestBuild_RespectsOrder(t *testing.T) {
	ps := providers.Build(providers.Config{
		Order:          []string{"smtp", "sendgrid", "pigeon", "smtp"},
		SendGridAPIKey: "SG.x",
		SMTPHost:       "smtp.telecare.test",
	}, zerolog.Nop())

	assert.Equal(t, []string{"smtp", "sendgrid"}, names(ps))
}

func TestBuild_NothingConfigured(t *testing.T) {
	assert.Empty(t, providers.Build(providers.Config{}, zerolog.Nop()))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER_ORDER", " SMTP , mailgun,")
	t.Setenv("SMTP_HOST", "relay.local")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("EMAIL_FROM_ADDRESS", "noreply@telecare.test")

	cfg := providers.ConfigFromEnv()

	require.Equal(t, []string{"smtp", "mailgun"}, cfg.Order)
	assert.Equal(t, "relay.local", cfg.SMTPHost)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.Equal(t, "noreply@telecare.test", cfg.FromAddress)
	assert.Equal(t, "Telecare", cfg.FromName)
}

func TestConfigFromEnv_DefaultOrder(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER_ORDER", "")

	cfg := providers.ConfigFromEnv()
	assert.Equal(t, providers.DefaultOrder, cfg.Order)
}
