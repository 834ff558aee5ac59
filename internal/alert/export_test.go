package alert_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/telecare/telecare/internal/alert"
)

func TestService_Export(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	_, err := svc.Create(ctx, newAlert("usr_a", alert.SeverityHigh))
	require.NoError(t, err)
	_, err = svc.Create(ctx, newAlert("usr_b", alert.SeverityCritical))
	require.NoError(t, err)

	data, err := svc.Export(ctx, doctor, alert.Filter{})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(alert.ExportSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus the one alert in scope")

	assert.Equal(t, "Alert ID", rows[0][0])
	assert.Equal(t, "usr_a", rows[1][1])
	assert.Equal(t, "high", rows[1][2])
	assert.Equal(t, "heartRate", rows[1][6])
	assert.Equal(t, "130", rows[1][7])
	assert.Equal(t, "No", rows[1][10])

	assert.Equal(t, []string{alert.ExportSheetName}, f.GetSheetList())
}

func TestService_Export_Forbidden(t *testing.T) {
	svc := newService()
	_, err := svc.Export(context.Background(), patientB, alert.Filter{UserID: "usr_a"})
	assert.ErrorIs(t, err, alert.ErrForbidden)
}
