// Package featureflags provides runtime kill switches for alert delivery side effects.
package featureflags

import (
	"sort"
	"time"
)

// Well-known feature flag keys.
const (
	// FlagDisableAlertEmails stops the dispatcher from emailing high and critical alerts.
	FlagDisableAlertEmails = "disable_alert_emails"

	// FlagDisableRealtimePush stops websocket pushes of new alerts and unread counts.
	FlagDisableRealtimePush = "disable_realtime_push"

	// FlagDisableGamification skips the points award after a reading is stored.
	FlagDisableGamification = "disable_gamification"

	// FlagDisableAlertDedup bypasses the dedup gate even when one is configured.
	FlagDisableAlertDedup = "disable_alert_dedup"
)

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (f *Flag) clone() *Flag {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// BoolValue returns the flag value as a boolean, or defaultValue when the
// flag is nil or not boolean-like.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON numbers
		return v != 0
	case string:
		switch v {
		case "true", "on", "1":
			return true
		case "false", "off", "0":
			return false
		}
	}
	return defaultValue
}

// StringValue returns the flag value as a string.
func (f *Flag) StringValue(defaultValue string) string {
	if f == nil {
		return defaultValue
	}
	if v, ok := f.Value.(string); ok {
		return v
	}
	return defaultValue
}

// IntValue returns the flag value as an integer.
func (f *Flag) IntValue(defaultValue int) int {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return defaultValue
}

// DefaultFlags returns the default feature flags. Every kill switch is off.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	flags := make(map[string]*Flag, 4)
	for _, key := range KnownKeys() {
		flags[key] = &Flag{Key: key, Value: false, UpdatedAt: now}
	}
	return flags
}

// KnownKeys returns the well-known flag keys in sorted order.
func KnownKeys() []string {
	keys := []string{
		FlagDisableAlertEmails,
		FlagDisableRealtimePush,
		FlagDisableGamification,
		FlagDisableAlertDedup,
	}
	sort.Strings(keys)
	return keys
}

// IsKnown reports whether key is a well-known flag.
func IsKnown(key string) bool {
	for _, k := range KnownKeys() {
		if k == key {
			return true
		}
	}
	return false
}
