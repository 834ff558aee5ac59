package models

import (
	"github.com/telecare/telecare/internal/featureflags"
)

// FeatureFlags lists the well-known flags with their current values.
type FeatureFlags struct {
	Flags []*featureflags.Flag `json:"flags"`
}

// FeatureFlagInput sets one flag.
type FeatureFlagInput struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// FeatureFlagsInput is the request body for updating flags.
type FeatureFlagsInput struct {
	Flags []FeatureFlagInput `json:"flags"`
}
