package metric_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/metric"
	"github.com/telecare/telecare/internal/user"
)

func TestService_Record(t *testing.T) {
	svc := metric.NewService(metric.NewInMemoryRepository())

	saved, err := svc.Record(context.Background(), &metric.Reading{
		UserID:     "usr_1",
		MetricType: metric.TypeBloodPressure,
		Value:      metric.BloodPressureValue(120, 80),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(saved.ID, "met_"))
	assert.Equal(t, "mmHg", saved.Unit)
	assert.False(t, saved.Timestamp.IsZero())
	assert.False(t, saved.CreatedAt.IsZero())
}

func TestService_Record_ValidationError(t *testing.T) {
	svc := metric.NewService(metric.NewInMemoryRepository())

	_, err := svc.Record(context.Background(), &metric.Reading{UserID: "usr_1", MetricType: "mood"})
	var verr *metric.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestService_Record_NilReading(t *testing.T) {
	svc := metric.NewService(metric.NewInMemoryRepository())

	_, err := svc.Record(context.Background(), nil)
	var verr *metric.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "REQUIRED", verr.Errors[0].Code)
}

func TestService_ScopeEnforcement(t *testing.T) {
	ctx := context.Background()
	svc := metric.NewService(metric.NewInMemoryRepository())

	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	var ids []string
	for i, owner := range []string{"usr_a", "usr_a", "usr_b"} {
		r, err := svc.Record(ctx, &metric.Reading{
			UserID:     owner,
			MetricType: metric.TypeSteps,
			Value:      metric.NumberValue(float64(1000 * (i + 1))),
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	patientA := user.Scope{CallerID: "usr_a", Role: user.RolePatient, UserIDs: []string{"usr_a"}}
	provider := user.Scope{CallerID: "usr_doc", Role: user.RoleProvider, UserIDs: []string{"usr_doc", "usr_a", "usr_b"}}

	t.Run("list is scoped and newest first", func(t *testing.T) {
		list, err := svc.List(ctx, patientA, metric.Filter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, ids[1], list[0].ID)
		assert.Equal(t, ids[0], list[1].ID)
	})

	t.Run("listing another user is forbidden", func(t *testing.T) {
		_, err := svc.List(ctx, patientA, metric.Filter{UserID: "usr_b"})
		assert.ErrorIs(t, err, metric.ErrForbidden)
	})

	t.Run("get outside scope is forbidden", func(t *testing.T) {
		_, err := svc.Get(ctx, patientA, ids[2])
		assert.ErrorIs(t, err, metric.ErrForbidden)
	})

	t.Run("get missing is not found", func(t *testing.T) {
		_, err := svc.Get(ctx, patientA, "met_missing")
		assert.ErrorIs(t, err, metric.ErrMetricNotFound)
	})

	t.Run("provider cannot delete patient reading", func(t *testing.T) {
		err := svc.Delete(ctx, provider, ids[0])
		assert.ErrorIs(t, err, metric.ErrForbidden)
	})

	t.Run("owner deletes", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, patientA, ids[0]))
		_, err := svc.Get(ctx, patientA, ids[0])
		assert.ErrorIs(t, err, metric.ErrMetricNotFound)
	})
}
