// Package alert provides alert persistence, scoped access and export.
package alert

import (
	"errors"
	"time"

	"github.com/telecare/telecare/internal/metric"
	"github.com/telecare/telecare/internal/user"
)

var (
	// ErrAlertNotFound is returned when an alert id does not exist.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrForbidden is returned when an alert exists but lies outside the caller's scope.
	ErrForbidden = user.ErrForbidden
)

// Severity is an ordered urgency tier.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 1 (low) to 4 (critical). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// AtLeast reports whether s is as urgent as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Type categorizes the origin of an alert.
type Type string

const (
	TypeHealthMetric Type = "health-metric"
	TypeAppointment  Type = "appointment"
	TypeMedication   Type = "medication"
	TypeSystem       Type = "system"
)

// IsValid reports whether t is a known alert type.
func (t Type) IsValid() bool {
	switch t {
	case TypeHealthMetric, TypeAppointment, TypeMedication, TypeSystem:
		return true
	}
	return false
}

// Threshold is the normal range that a reading was compared against.
type Threshold struct {
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	SystolicMin  *float64 `json:"systolicMin,omitempty"`
	SystolicMax  *float64 `json:"systolicMax,omitempty"`
	DiastolicMin *float64 `json:"diastolicMin,omitempty"`
	DiastolicMax *float64 `json:"diastolicMax,omitempty"`
}

// MetricSnapshot is the frozen copy of reading data embedded in an alert.
type MetricSnapshot struct {
	MetricType metric.Type  `json:"metricType"`
	Value      metric.Value `json:"value"`
	Unit       string       `json:"unit"`
	Threshold  Threshold    `json:"threshold"`
	ReadingID  string       `json:"readingId,omitempty"`
	RecordedAt time.Time    `json:"recordedAt"`
}

// Alert is a derived record indicating a reading fell outside a safe range.
type Alert struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	Severity       Severity        `json:"severity"`
	Type           Type            `json:"type"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	MetricSnapshot *MetricSnapshot `json:"metricSnapshot,omitempty"`
	IsRead         bool            `json:"isRead"`
	IsAcknowledged bool            `json:"isAcknowledged"`
	AcknowledgedBy string          `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledgedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy of the alert.
func (a *Alert) Clone() *Alert {
	c := *a
	if a.MetricSnapshot != nil {
		snap := *a.MetricSnapshot
		if a.MetricSnapshot.Value.Number != nil {
			n := *a.MetricSnapshot.Value.Number
			snap.Value.Number = &n
		}
		if a.MetricSnapshot.Value.BloodPressure != nil {
			bp := *a.MetricSnapshot.Value.BloodPressure
			snap.Value.BloodPressure = &bp
		}
		c.MetricSnapshot = &snap
	}
	if a.AcknowledgedAt != nil {
		at := *a.AcknowledgedAt
		c.AcknowledgedAt = &at
	}
	return &c
}

// Filter narrows an alert listing.
type Filter struct {
	// UserIDs restricts results to these owners. Nil means unrestricted.
	UserIDs        []string
	UserID         string
	Severity       *Severity
	IsRead         *bool
	IsAcknowledged *bool
	Type           Type
}

// Matches reports whether a satisfies the filter.
func (f Filter) Matches(a *Alert) bool {
	if f.UserIDs != nil && !contains(f.UserIDs, a.UserID) {
		return false
	}
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	if f.Severity != nil && a.Severity != *f.Severity {
		return false
	}
	if f.IsRead != nil && a.IsRead != *f.IsRead {
		return false
	}
	if f.IsAcknowledged != nil && a.IsAcknowledged != *f.IsAcknowledged {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
