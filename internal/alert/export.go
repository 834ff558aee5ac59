package alert

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/telecare/telecare/internal/user"
)

// ExportSheetName is the worksheet that holds exported alerts.
const ExportSheetName = "Alerts"

// MaxExportRows caps the number of alerts in one export.
const MaxExportRows = 5000

var exportHeader = []string{
	"Alert ID",
	"User ID",
	"Severity",
	"Type",
	"Title",
	"Message",
	"Metric",
	"Value",
	"Unit",
	"Recorded At",
	"Read",
	"Acknowledged",
	"Acknowledged By",
	"Created At",
}

var exportColumnWidths = []float64{28, 28, 10, 14, 30, 60, 18, 10, 8, 22, 8, 14, 28, 22}

// Export renders the alerts visible to the scope as an XLSX workbook.
func (s *Service) Export(ctx context.Context, scope user.Scope, filter Filter) ([]byte, error) {
	if filter.UserID != "" && !scope.Allows(filter.UserID) {
		return nil, ErrForbidden
	}
	filter.UserIDs = scope.Restriction()

	alerts, err := s.repo.List(ctx, filter, MaxExportRows)
	if err != nil {
		return nil, fmt.Errorf("listing alerts for export: %w", err)
	}
	return WriteXLSX(alerts)
}

// WriteXLSX renders alerts into a single-sheet workbook.
func WriteXLSX(alerts []*Alert) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // closing an in-memory workbook

	index, err := f.NewSheet(ExportSheetName)
	if err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("removing default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FDE9E7"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	for col, header := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(ExportSheetName, cell, header); err != nil {
			return nil, fmt.Errorf("setting header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(ExportSheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("styling header %s: %w", cell, err)
		}

		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(ExportSheetName, name, name, exportColumnWidths[col]); err != nil {
			return nil, fmt.Errorf("setting column width: %w", err)
		}
	}

	for i, a := range alerts {
		row := i + 2
		for col, value := range exportRow(a) {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(ExportSheetName, cell, value); err != nil {
				return nil, fmt.Errorf("setting cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(ExportSheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freezing header row: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func exportRow(a *Alert) []any {
	var metricType, value, unit, recordedAt string
	if snap := a.MetricSnapshot; snap != nil {
		metricType = string(snap.MetricType)
		value = snap.Value.String()
		unit = snap.Unit
		recordedAt = formatTime(snap.RecordedAt)
	}

	return []any{
		a.ID,
		a.UserID,
		string(a.Severity),
		string(a.Type),
		a.Title,
		a.Message,
		metricType,
		value,
		unit,
		recordedAt,
		yesNo(a.IsRead),
		yesNo(a.IsAcknowledged),
		a.AcknowledgedBy,
		formatTime(a.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
