// Package threshold evaluates health readings against reference ranges.
package threshold

import (
	"github.com/telecare/telecare/internal/alert"
	"github.com/telecare/telecare/internal/metric"
)

// Range is an inclusive normal range.
type Range struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// Rule is the normal range for one metric type. Blood pressure uses
// Systolic and Diastolic; every other metric uses Min and Max.
type Rule struct {
	Min       float64
	Max       float64
	Unit      string
	Systolic  *Range
	Diastolic *Range
}

// IsCompound reports whether the rule checks systolic and diastolic values.
func (r Rule) IsCompound() bool {
	return r.Systolic != nil && r.Diastolic != nil
}

// Snapshot returns the rule in the form stored on alerts.
func (r Rule) Snapshot() alert.Threshold {
	if r.IsCompound() {
		return alert.Threshold{
			SystolicMin:  floatPtr(r.Systolic.Min),
			SystolicMax:  floatPtr(r.Systolic.Max),
			DiastolicMin: floatPtr(r.Diastolic.Min),
			DiastolicMax: floatPtr(r.Diastolic.Max),
		}
	}
	return alert.Threshold{Min: floatPtr(r.Min), Max: floatPtr(r.Max)}
}

// RangeString renders the normal range, e.g. "60-100" or "90-140/60-90".
func (r Rule) RangeString() string {
	if r.IsCompound() {
		return formatRange(*r.Systolic) + "/" + formatRange(*r.Diastolic)
	}
	return formatRange(Range{Min: r.Min, Max: r.Max})
}

// Table maps metric types to their rules. Types without an entry never alert.
type Table map[metric.Type]Rule

// DefaultTable returns the built-in adult reference ranges.
func DefaultTable() Table {
	return Table{
		metric.TypeHeartRate: {Min: 60, Max: 100, Unit: "bpm"},
		metric.TypeBloodPressure: {
			Unit:      "mmHg",
			Systolic:  &Range{Min: 90, Max: 140},
			Diastolic: &Range{Min: 60, Max: 90},
		},
		metric.TypeBloodGlucose:     {Min: 70, Max: 140, Unit: "mg/dL"},
		metric.TypeOxygenSaturation: {Min: 95, Max: 100, Unit: "%"},
		metric.TypeTemperature:      {Min: 36.1, Max: 37.2, Unit: "°C"},
	}
}

// Clone returns a copy that can be modified independently.
func (t Table) Clone() Table {
	c := make(Table, len(t))
	for k, r := range t {
		if r.Systolic != nil {
			s := *r.Systolic
			r.Systolic = &s
		}
		if r.Diastolic != nil {
			d := *r.Diastolic
			r.Diastolic = &d
		}
		c[k] = r
	}
	return c
}

func formatRange(r Range) string {
	return metric.FormatNumber(r.Min) + "-" + metric.FormatNumber(r.Max)
}

func floatPtr(f float64) *float64 {
	return &f
}
