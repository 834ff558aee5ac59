package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/alert"
	"github.com/telecare/telecare/internal/metric"
	"github.com/telecare/telecare/internal/notify"
	"github.com/telecare/telecare/internal/user"
)

func TestRenderEmail_High(t *testing.T) {
	msg, err := notify.RenderEmail(newAlert(alert.SeverityHigh), patient)
	require.NoError(t, err)

	assert.Equal(t, "ann@example.com", msg.To)
	assert.Equal(t, "High heartRate reading", msg.Subject)
	assert.Contains(t, msg.Text, "Hi Ann,")
	assert.Contains(t, msg.Text, "130 bpm")
	assert.Contains(t, msg.Text, "heart rate")
	assert.Contains(t, msg.Text, "Avoid caffeine")
	assert.NotContains(t, msg.Text, "emergency services")
	assert.Contains(t, msg.HTML, "<li>Sit down and rest")
}

func TestRenderEmail_CriticalBloodPressure(t *testing.T) {
	a := newAlert(alert.SeverityCritical)
	a.Title = "High bloodPressure reading"
	a.MetricSnapshot.MetricType = metric.TypeBloodPressure
	a.MetricSnapshot.Value = metric.BloodPressureValue(165, 95)
	a.MetricSnapshot.Unit = "mmHg"

	msg, err := notify.RenderEmail(a, patient)
	require.NoError(t, err)

	assert.Equal(t, "URGENT: High bloodPressure reading", msg.Subject)
	assert.Contains(t, msg.Text, "165/95 mmHg")
	assert.Contains(t, msg.Text, "emergency services")
	assert.Contains(t, msg.Text, "blood pressure medication")
	assert.Contains(t, msg.HTML, "#c81e1e")
}

func TestRenderEmail_EscapesHTML(t *testing.T) {
	a := newAlert(alert.SeverityHigh)
	a.Message = "<script>alert(1)</script>"

	msg, err := notify.RenderEmail(a, user.User{ID: "usr_x", Email: "x@example.com", Name: "<b>X</b>"})
	require.NoError(t, err)

	assert.NotContains(t, msg.HTML, "<script>")
	assert.NotContains(t, msg.HTML, "<b>X</b>")
	assert.Contains(t, msg.Text, "<script>alert(1)</script>")
}

func TestRenderEmail_WithoutSnapshot(t *testing.T) {
	a := newAlert(alert.SeverityHigh)
	a.MetricSnapshot = nil

	msg, err := notify.RenderEmail(a, patient)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "Take another measurement")
	assert.NotContains(t, msg.Text, "Measurement:")
}
