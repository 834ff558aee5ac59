// Package metric provides health reading storage and validation.
package metric

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMetricNotFound is returned when a reading does not exist.
var ErrMetricNotFound = errors.New("metric reading not found")

// Type identifies the kind of health observation.
type Type string

// Supported metric types.
const (
	TypeHeartRate        Type = "heartRate"
	TypeBloodPressure    Type = "bloodPressure"
	TypeBloodGlucose     Type = "bloodGlucose"
	TypeOxygenSaturation Type = "oxygenSaturation"
	TypeTemperature      Type = "temperature"
	TypeSteps            Type = "steps"
	TypeSleep            Type = "sleep"
	TypeWeight           Type = "weight"
	TypeCalories         Type = "calories"
	TypeWaterIntake      Type = "waterIntake"
	TypeDistance         Type = "distance"
)

var defaultUnits = map[Type]string{
	TypeHeartRate:        "bpm",
	TypeBloodPressure:    "mmHg",
	TypeBloodGlucose:     "mg/dL",
	TypeOxygenSaturation: "%",
	TypeTemperature:      "°C",
	TypeSteps:            "steps",
	TypeSleep:            "hours",
	TypeWeight:           "kg",
	TypeCalories:         "kcal",
	TypeWaterIntake:      "ml",
	TypeDistance:         "km",
}

// AllTypes returns every supported metric type.
func AllTypes() []Type {
	return []Type{
		TypeHeartRate, TypeBloodPressure, TypeBloodGlucose, TypeOxygenSaturation,
		TypeTemperature, TypeSteps, TypeSleep, TypeWeight, TypeCalories,
		TypeWaterIntake, TypeDistance,
	}
}

// ParseType resolves a metric type name, ignoring case.
func ParseType(s string) (Type, bool) {
	for _, t := range AllTypes() {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// IsValid reports whether t is a known metric type.
func (t Type) IsValid() bool {
	_, ok := defaultUnits[t]
	return ok
}

// DefaultUnit returns the unit used when a reading omits one.
func (t Type) DefaultUnit() string {
	return defaultUnits[t]
}

// Source identifies where a reading came from.
type Source string

const (
	SourceManual            Source = "manual"
	SourceDeviceIntegration Source = "device-integration"
	SourceSimulator         Source = "simulator"
)

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	switch s {
	case SourceManual, SourceDeviceIntegration, SourceSimulator:
		return true
	}
	return false
}

// BloodPressure is a compound systolic/diastolic value.
type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

// Value holds either a scalar number or a blood pressure pair.
// The zero Value is empty.
type Value struct {
	Number        *float64
	BloodPressure *BloodPressure
}

// NumberValue returns a scalar Value.
func NumberValue(v float64) Value {
	return Value{Number: &v}
}

// BloodPressureValue returns a compound Value.
func BloodPressureValue(systolic, diastolic float64) Value {
	return Value{BloodPressure: &BloodPressure{Systolic: systolic, Diastolic: diastolic}}
}

// IsZero reports whether no value is set.
func (v Value) IsZero() bool {
	return v.Number == nil && v.BloodPressure == nil
}

// IsCompound reports whether v is a blood pressure pair.
func (v Value) IsCompound() bool {
	return v.BloodPressure != nil
}

// Scalar returns the numeric value. Compound values unwrap to systolic.
func (v Value) Scalar() (float64, bool) {
	switch {
	case v.Number != nil:
		return *v.Number, true
	case v.BloodPressure != nil:
		return v.BloodPressure.Systolic, true
	}
	return 0, false
}

// String renders the value for messages, e.g. "130" or "165/95".
func (v Value) String() string {
	switch {
	case v.BloodPressure != nil:
		return FormatNumber(v.BloodPressure.Systolic) + "/" + FormatNumber(v.BloodPressure.Diastolic)
	case v.Number != nil:
		return FormatNumber(*v.Number)
	}
	return ""
}

// MarshalJSON encodes a number, an object, or null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.BloodPressure != nil:
		return json.Marshal(v.BloodPressure)
	case v.Number != nil:
		return json.Marshal(*v.Number)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a number, a {systolic, diastolic} object, or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = Value{}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '{' {
		var bp struct {
			Systolic  *float64 `json:"systolic"`
			Diastolic *float64 `json:"diastolic"`
		}
		if err := json.Unmarshal(data, &bp); err != nil {
			return fmt.Errorf("decoding blood pressure value: %w", err)
		}
		if bp.Systolic == nil || bp.Diastolic == nil {
			return errors.New("blood pressure value requires systolic and diastolic")
		}
		v.BloodPressure = &BloodPressure{Systolic: *bp.Systolic, Diastolic: *bp.Diastolic}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding numeric value: %w", err)
	}
	v.Number = &n
	return nil
}

// FormatNumber renders a float without trailing zeros.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Reading is one timestamped health observation for a user.
type Reading struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	MetricType Type           `json:"metricType"`
	Value      Value          `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	Source     Source         `json:"source,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Notes      string         `json:"notes,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Filter narrows a reading listing.
type Filter struct {
	// UserIDs restricts results to these owners. Nil means unrestricted.
	UserIDs    []string
	UserID     string
	MetricType Type
	Limit      int
}

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string
	Message string
	Code    string
}

// MissingReadingError is returned when no reading was supplied at all.
func MissingReadingError() *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: "reading", Message: "reading is required", Code: "REQUIRED"}}}
}

// ValidationError is returned when a reading fails validation.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "invalid metric reading: " + strings.Join(parts, "; ")
}

// Validate checks a reading and fills in defaults for unit and source.
func (r *Reading) Validate() error {
	var errs []FieldError

	if r.UserID == "" {
		errs = append(errs, FieldError{Field: "userId", Message: "user id is required", Code: "REQUIRED"})
	}

	switch {
	case r.MetricType == "":
		errs = append(errs, FieldError{Field: "metricType", Message: "metric type is required", Code: "REQUIRED"})
	case !r.MetricType.IsValid():
		errs = append(errs, FieldError{Field: "metricType", Message: "unknown metric type " + string(r.MetricType), Code: "INVALID_ENUM"})
	}

	switch {
	case r.Value.IsZero():
		errs = append(errs, FieldError{Field: "value", Message: "value is required", Code: "REQUIRED"})
	case r.MetricType == TypeBloodPressure && !r.Value.IsCompound():
		errs = append(errs, FieldError{Field: "value", Message: "blood pressure requires systolic and diastolic", Code: "INVALID_SHAPE"})
	case r.MetricType.IsValid() && r.MetricType != TypeBloodPressure && r.Value.IsCompound():
		errs = append(errs, FieldError{Field: "value", Message: "compound values are only allowed for blood pressure", Code: "INVALID_SHAPE"})
	}

	if r.Source == "" {
		r.Source = SourceManual
	} else if !r.Source.IsValid() {
		errs = append(errs, FieldError{Field: "source", Message: "unknown source " + string(r.Source), Code: "INVALID_ENUM"})
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	if r.Unit == "" {
		r.Unit = r.MetricType.DefaultUnit()
	}
	return nil
}
