package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/telecare/telecare/internal/alert"
	"github.com/telecare/telecare/internal/email"
	"github.com/telecare/telecare/internal/metric"
	"github.com/telecare/telecare/internal/user"
)

var metricLabels = map[metric.Type]string{
	metric.TypeHeartRate:        "heart rate",
	metric.TypeBloodPressure:    "blood pressure",
	metric.TypeBloodGlucose:     "blood glucose",
	metric.TypeOxygenSaturation: "oxygen saturation",
	metric.TypeTemperature:      "body temperature",
}

var recommendations = map[metric.Type][]string{
	metric.TypeHeartRate: {
		"Sit down and rest for a few minutes, then measure again.",
		"Avoid caffeine and strenuous activity until your reading settles.",
	},
	metric.TypeBloodPressure: {
		"Rest quietly for five minutes and take a second measurement.",
		"Take any prescribed blood pressure medication as directed.",
		"Limit salt and avoid caffeine for the rest of the day.",
	},
	metric.TypeBloodGlucose: {
		"If your level is low, take 15g of fast-acting carbohydrates and re-test in 15 minutes.",
		"If your level is high, drink water and follow your care plan for insulin or medication.",
	},
	metric.TypeOxygenSaturation: {
		"Sit upright and take slow, deep breaths, then measure again.",
		"Make sure the sensor is placed correctly and your hands are warm.",
	},
	metric.TypeTemperature: {
		"Stay hydrated and rest.",
		"Re-check your temperature in an hour.",
	},
}

var genericRecommendations = []string{
	"Take another measurement to confirm the result.",
	"Contact your care provider if the reading stays outside the normal range.",
}

const criticalAdvice = "This reading may need urgent attention. If you have chest pain, " +
	"shortness of breath, confusion or fainting, call emergency services now."

type emailData struct {
	Name            string
	Title           string
	Message         string
	Severity        string
	MetricLabel     string
	Reading         string
	RecordedAt      string
	Critical        bool
	CriticalAdvice  string
	Recommendations []string
}

const subjectPrefixCritical = "URGENT: "

var htmlTemplate = htmltemplate.Must(htmltemplate.New("alert.html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
  <h2 style="color: {{if .Critical}}#c81e1e{{else}}#b45309{{end}};">{{.Title}}</h2>
  <p>Hi {{.Name}},</p>
  {{if .Critical}}<p style="font-weight: bold; color: #c81e1e;">{{.CriticalAdvice}}</p>{{end}}
  <p>{{.Message}}</p>
  {{if .Reading}}<table style="border-collapse: collapse;">
    <tr><td style="padding: 4px 12px 4px 0;">Measurement</td><td>{{.MetricLabel}}</td></tr>
    <tr><td style="padding: 4px 12px 4px 0;">Reading</td><td>{{.Reading}}</td></tr>
    <tr><td style="padding: 4px 12px 4px 0;">Recorded</td><td>{{.RecordedAt}}</td></tr>
    <tr><td style="padding: 4px 12px 4px 0;">Severity</td><td>{{.Severity}}</td></tr>
  </table>{{end}}
  <h3>What you can do</h3>
  <ul>{{range .Recommendations}}
    <li>{{.}}</li>{{end}}
  </ul>
  <p style="font-size: 12px; color: #6b7280;">Your care team can see this alert in your dashboard.</p>
</body>
</html>
`))

var textTemplate = texttemplate.Must(texttemplate.New("alert.txt").Parse(`{{.Title}}

Hi {{.Name}},
{{if .Critical}}
{{.CriticalAdvice}}
{{end}}
{{.Message}}
{{if .Reading}}
Measurement: {{.MetricLabel}}
Reading:     {{.Reading}}
Recorded:    {{.RecordedAt}}
Severity:    {{.Severity}}
{{end}}
What you can do:
{{range .Recommendations}}- {{.}}
{{end}}
Your care team can see this alert in your dashboard.
`))

// RenderEmail builds the alert email for the subject user. Tone and
// recommendations depend on the metric type and whether the alert is critical.
func RenderEmail(a *alert.Alert, subject user.User) (email.Message, error) {
	data := emailData{
		Name:            subject.DisplayName(),
		Title:           a.Title,
		Message:         a.Message,
		Severity:        strings.ToUpper(string(a.Severity)),
		Critical:        a.Severity == alert.SeverityCritical,
		CriticalAdvice:  criticalAdvice,
		Recommendations: genericRecommendations,
	}

	if snap := a.MetricSnapshot; snap != nil {
		data.MetricLabel = metricLabels[snap.MetricType]
		if data.MetricLabel == "" {
			data.MetricLabel = string(snap.MetricType)
		}
		data.Reading = strings.TrimSpace(snap.Value.String() + " " + snap.Unit)
		data.RecordedAt = snap.RecordedAt.UTC().Format(time.RFC1123)
		if recs, ok := recommendations[snap.MetricType]; ok {
			data.Recommendations = recs
		}
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return email.Message{}, fmt.Errorf("rendering html body: %w", err)
	}
	if err := textTemplate.Execute(&text, data); err != nil {
		return email.Message{}, fmt.Errorf("rendering text body: %w", err)
	}

	subjectLine := a.Title
	if data.Critical {
		subjectLine = subjectPrefixCritical + subjectLine
	}

	return email.Message{
		To:      subject.Email,
		Subject: subjectLine,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
