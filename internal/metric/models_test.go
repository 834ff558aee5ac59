package metric_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/metric"
)

func TestValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantNum  *float64
		wantBP   *metric.BloodPressure
		wantErr  bool
		wantZero bool
	}{
		{name: "number", input: `72`, wantNum: ptr(72.0)},
		{name: "decimal", input: `36.6`, wantNum: ptr(36.6)},
		{name: "blood pressure", input: `{"systolic":120,"diastolic":80}`, wantBP: &metric.BloodPressure{Systolic: 120, Diastolic: 80}},
		{name: "null", input: `null`, wantZero: true},
		{name: "missing diastolic", input: `{"systolic":120}`, wantErr: true},
		{name: "string", input: `"high"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v metric.Value
			err := json.Unmarshal([]byte(tt.input), &v)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantZero, v.IsZero())
			assert.Equal(t, tt.wantNum, v.Number)
			assert.Equal(t, tt.wantBP, v.BloodPressure)
		})
	}
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "130", metric.NumberValue(130).String())
	assert.Equal(t, "36.6", metric.NumberValue(36.6).String())
	assert.Equal(t, "165/95", metric.BloodPressureValue(165, 95).String())
	assert.Equal(t, "", metric.Value{}.String())
}

func TestValue_Scalar_UnwrapsSystolic(t *testing.T) {
	v, ok := metric.BloodPressureValue(150, 90).Scalar()
	require.True(t, ok)
	assert.Equal(t, 150.0, v)

	_, ok = metric.Value{}.Scalar()
	assert.False(t, ok)
}

func TestReading_Validate(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		r := &metric.Reading{UserID: "usr_1", MetricType: metric.TypeHeartRate, Value: metric.NumberValue(72)}
		require.NoError(t, r.Validate())
		assert.Equal(t, "bpm", r.Unit)
		assert.Equal(t, metric.SourceManual, r.Source)
	})

	t.Run("keeps explicit unit", func(t *testing.T) {
		r := &metric.Reading{UserID: "usr_1", MetricType: metric.TypeTemperature, Value: metric.NumberValue(98.6), Unit: "°F"}
		require.NoError(t, r.Validate())
		assert.Equal(t, "°F", r.Unit)
	})

	tests := []struct {
		name    string
		reading metric.Reading
		field   string
	}{
		{"missing user", metric.Reading{MetricType: metric.TypeSteps, Value: metric.NumberValue(1)}, "userId"},
		{"unknown type", metric.Reading{UserID: "usr_1", MetricType: "mood", Value: metric.NumberValue(1)}, "metricType"},
		{"missing value", metric.Reading{UserID: "usr_1", MetricType: metric.TypeSteps}, "value"},
		{"scalar blood pressure", metric.Reading{UserID: "usr_1", MetricType: metric.TypeBloodPressure, Value: metric.NumberValue(120)}, "value"},
		{"compound heart rate", metric.Reading{UserID: "usr_1", MetricType: metric.TypeHeartRate, Value: metric.BloodPressureValue(1, 2)}, "value"},
		{"bad source", metric.Reading{UserID: "usr_1", MetricType: metric.TypeSteps, Value: metric.NumberValue(1), Source: "fax"}, "source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.reading
			err := r.Validate()
			var verr *metric.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Len(t, verr.Errors, 1)
			assert.Equal(t, tt.field, verr.Errors[0].Field)
		})
	}
}

func TestParseType(t *testing.T) {
	typ, ok := metric.ParseType("heartrate")
	require.True(t, ok)
	assert.Equal(t, metric.TypeHeartRate, typ)

	_, ok = metric.ParseType("mood")
	assert.False(t, ok)
}

func ptr(f float64) *float64 { return &f }
