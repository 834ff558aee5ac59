package threshold

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/telecare/telecare/internal/metric"
)

// ErrInvalidRule is returned when an override file contains an unusable rule.
var ErrInvalidRule = errors.New("invalid threshold rule")

type fileRule struct {
	Min       *float64 `mapstructure:"min"`
	Max       *float64 `mapstructure:"max"`
	Unit      string   `mapstructure:"unit"`
	Systolic  *Range   `mapstructure:"systolic"`
	Diastolic *Range   `mapstructure:"diastolic"`
	Disabled  bool     `mapstructure:"disabled"`
}

// LoadTable reads rule overrides from a YAML, JSON or TOML file and merges
// them over DefaultTable. The file layout is:
//
//	thresholds:
//	  heartRate:
//	    min: 50
//	    max: 110
//	  bloodPressure:
//	    systolic: {min: 90, max: 135}
//	    diastolic: {min: 60, max: 85}
//	  temperature:
//	    disabled: true
func LoadTable(path string) (Table, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading threshold file: %w", err)
	}

	var raw map[string]fileRule
	if err := v.UnmarshalKey("thresholds", &raw); err != nil {
		return nil, fmt.Errorf("decoding thresholds: %w", err)
	}

	return mergeRules(DefaultTable(), raw)
}

func mergeRules(table Table, raw map[string]fileRule) (Table, error) {
	for name, fr := range raw {
		// viper lower-cases keys, so match metric types case-insensitively.
		t, ok := metric.ParseType(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown metric type %q", ErrInvalidRule, name)
		}
		if fr.Disabled {
			delete(table, t)
			continue
		}

		rule := table[t]
		if fr.Unit != "" {
			rule.Unit = fr.Unit
		}
		if rule.Unit == "" {
			rule.Unit = t.DefaultUnit()
		}

		if t == metric.TypeBloodPressure {
			if fr.Systolic != nil {
				rule.Systolic = fr.Systolic
			}
			if fr.Diastolic != nil {
				rule.Diastolic = fr.Diastolic
			}
			if !rule.IsCompound() {
				return nil, fmt.Errorf("%w: %s requires systolic and diastolic ranges", ErrInvalidRule, t)
			}
			if err := checkRange(t, *rule.Systolic); err != nil {
				return nil, err
			}
			if err := checkRange(t, *rule.Diastolic); err != nil {
				return nil, err
			}
		} else {
			if fr.Min != nil {
				rule.Min = *fr.Min
			}
			if fr.Max != nil {
				rule.Max = *fr.Max
			}
			if err := checkRange(t, Range{Min: rule.Min, Max: rule.Max}); err != nil {
				return nil, err
			}
		}

		table[t] = rule
	}
	return table, nil
}

func checkRange(t metric.Type, r Range) error {
	if r.Min >= r.Max {
		return fmt.Errorf("%w: %s min %s must be below max %s",
			ErrInvalidRule, t, metric.FormatNumber(r.Min), metric.FormatNumber(r.Max))
	}
	return nil
}
