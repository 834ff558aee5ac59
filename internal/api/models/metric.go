package models

import (
	"github.com/telecare/telecare/internal/metric"
)

// MetricInput is the request body for submitting a reading.
// UserID may be omitted by patients; providers and admins name the patient.
type MetricInput struct {
	UserID     string         `json:"userId,omitempty"`
	MetricType metric.Type    `json:"metricType"`
	Value      metric.Value   `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	Source     metric.Source  `json:"source,omitempty"`
	Timestamp  *Timestamp     `json:"timestamp,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Reading converts the input into a reading owned by userID.
func (in MetricInput) Reading(userID string) *metric.Reading {
	r := &metric.Reading{
		UserID:     userID,
		MetricType: in.MetricType,
		Value:      in.Value,
		Unit:       in.Unit,
		Source:     in.Source,
		Notes:      in.Notes,
		Metadata:   in.Metadata,
	}
	if in.Timestamp != nil {
		r.Timestamp = in.Timestamp.Time()
	}
	return r
}

// PagedMetrics is a page of readings.
type PagedMetrics struct {
	Items []*metric.Reading `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
