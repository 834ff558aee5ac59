package featureflags

import (
	"context"
	"errors"
)

// ErrFlagNotFound is returned when no override is stored for a key.
var ErrFlagNotFound = errors.New("feature flag not found")

// Repository stores flag overrides. A key without a stored override
// evaluates to its default.
type Repository interface {
	GetFlag(ctx context.Context, key string) (*Flag, error)
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)

	// SetFlags upserts overrides atomically: all are stored or none.
	SetFlags(ctx context.Context, flags []*Flag) error

	// DeleteFlag removes the override for key, returning ErrFlagNotFound
	// when none is stored.
	DeleteFlag(ctx context.Context, key string) error
}
