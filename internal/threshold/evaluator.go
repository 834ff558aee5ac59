package threshold

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/alert"
	"github.com/telecare/telecare/internal/metric"
)

// Default escalation parameters.
const (
	DefaultHighEscalationFactor = 1.2
	DefaultLowEscalationFactor  = 0.8
	DefaultCriticalSystolic     = 160
	DefaultCriticalDiastolic    = 100
)

// Config holds configuration for the evaluator.
type Config struct {
	// Table holds the rules. If nil, DefaultTable is used.
	Table Table

	// HighEscalationFactor escalates to high when value > max*factor.
	// Default: 1.2
	HighEscalationFactor float64

	// LowEscalationFactor escalates to high when value < min*factor.
	// Default: 0.8
	LowEscalationFactor float64

	// CriticalSystolic and CriticalDiastolic mark over-range blood pressure as critical.
	// Defaults: 160 and 100
	CriticalSystolic  float64
	CriticalDiastolic float64

	Logger zerolog.Logger
}

// Decision is the outcome of an evaluation that warrants an alert.
type Decision struct {
	Severity alert.Severity
	Title    string
	Message  string
	Snapshot alert.MetricSnapshot
}

// Alert builds an unsaved alert for the reading owner from the decision.
func (d *Decision) Alert(userID string) *alert.Alert {
	snap := d.Snapshot
	return &alert.Alert{
		UserID:         userID,
		Severity:       d.Severity,
		Type:           alert.TypeHealthMetric,
		Title:          d.Title,
		Message:        d.Message,
		MetricSnapshot: &snap,
	}
}

// Evaluator compares readings against a rule table. It holds no mutable
// state and is safe for concurrent use.
type Evaluator struct {
	table             Table
	highFactor        float64
	lowFactor         float64
	criticalSystolic  float64
	criticalDiastolic float64
	logger            zerolog.Logger
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	table := cfg.Table
	if table == nil {
		table = DefaultTable()
	}
	if cfg.HighEscalationFactor == 0 {
		cfg.HighEscalationFactor = DefaultHighEscalationFactor
	}
	if cfg.LowEscalationFactor == 0 {
		cfg.LowEscalationFactor = DefaultLowEscalationFactor
	}
	if cfg.CriticalSystolic == 0 {
		cfg.CriticalSystolic = DefaultCriticalSystolic
	}
	if cfg.CriticalDiastolic == 0 {
		cfg.CriticalDiastolic = DefaultCriticalDiastolic
	}

	return &Evaluator{
		table:             table.Clone(),
		highFactor:        cfg.HighEscalationFactor,
		lowFactor:         cfg.LowEscalationFactor,
		criticalSystolic:  cfg.CriticalSystolic,
		criticalDiastolic: cfg.CriticalDiastolic,
		logger:            cfg.Logger,
	}
}

// Rule returns the rule for a metric type, if one is configured.
func (e *Evaluator) Rule(t metric.Type) (Rule, bool) {
	r, ok := e.table[t]
	return r, ok
}

type direction string

const (
	directionHigh direction = "high"
	directionLow  direction = "low"
)

// Evaluate returns a decision when the reading is out of range, or nil.
func (e *Evaluator) Evaluate(r *metric.Reading) *Decision {
	if r == nil {
		return nil
	}
	rule, ok := e.table[r.MetricType]
	if !ok {
		return nil
	}
	if r.Value.IsZero() {
		e.logger.Debug().
			Str("metric_id", r.ID).
			Str("metric_type", string(r.MetricType)).
			Msg("reading has no value, skipping evaluation")
		return nil
	}

	var (
		severity alert.Severity
		dir      direction
	)
	if rule.IsCompound() && r.Value.IsCompound() {
		severity, dir = e.evaluateBloodPressure(rule, *r.Value.BloodPressure)
	} else {
		v, _ := r.Value.Scalar()
		severity, dir = e.evaluateScalar(rule, v)
	}
	if severity == "" {
		return nil
	}

	unit := r.Unit
	if unit == "" {
		unit = rule.Unit
	}

	return &Decision{
		Severity: severity,
		Title:    title(dir, r.MetricType),
		Message: fmt.Sprintf("Your %s reading of %s %s is %s (normal range %s %s).",
			r.MetricType, r.Value.String(), unit, dir, rule.RangeString(), rule.Unit),
		Snapshot: alert.MetricSnapshot{
			MetricType: r.MetricType,
			Value:      r.Value,
			Unit:       unit,
			Threshold:  rule.Snapshot(),
			ReadingID:  r.ID,
			RecordedAt: r.Timestamp,
		},
	}
}

func (e *Evaluator) evaluateScalar(rule Rule, v float64) (alert.Severity, direction) {
	if rule.IsCompound() {
		// Scalar value against a compound rule is compared to systolic.
		rule = Rule{Min: rule.Systolic.Min, Max: rule.Systolic.Max}
	}
	switch {
	case v > rule.Max:
		if v > rule.Max*e.highFactor {
			return alert.SeverityHigh, directionHigh
		}
		return alert.SeverityMedium, directionHigh
	case v < rule.Min:
		if v < rule.Min*e.lowFactor {
			return alert.SeverityHigh, directionLow
		}
		return alert.SeverityMedium, directionLow
	}
	return "", ""
}

func (e *Evaluator) evaluateBloodPressure(rule Rule, bp metric.BloodPressure) (alert.Severity, direction) {
	over := bp.Systolic > rule.Systolic.Max || bp.Diastolic > rule.Diastolic.Max
	under := bp.Systolic < rule.Systolic.Min || bp.Diastolic < rule.Diastolic.Min

	switch {
	case over:
		if bp.Systolic > e.criticalSystolic || bp.Diastolic > e.criticalDiastolic {
			return alert.SeverityCritical, directionHigh
		}
		return alert.SeverityMedium, directionHigh
	case under:
		return alert.SeverityMedium, directionLow
	}
	return "", ""
}

func title(dir direction, t metric.Type) string {
	if dir == directionHigh {
		return fmt.Sprintf("High %s reading", t)
	}
	return fmt.Sprintf("Low %s reading", t)
}
