package featureflags

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnknownFlag is returned when updating a key that is not a well-known flag.
var ErrUnknownFlag = errors.New("unknown feature flag")

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	CacheTTL     time.Duration
	DefaultFlags map[string]*Flag
}

// Service evaluates feature flags with a TTL cache and falls back to
// defaults when the repository is unavailable.
type Service struct {
	repo         Repository
	logger       zerolog.Logger
	cacheTTL     time.Duration
	defaultFlags map[string]*Flag

	mu          sync.RWMutex
	cache       map[string]*Flag
	cacheExpiry time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = time.Minute
	}
	defaultFlags := cfg.DefaultFlags
	if defaultFlags == nil {
		defaultFlags = DefaultFlags()
	}
	return &Service{
		repo:         cfg.Repository,
		logger:       cfg.Logger,
		cacheTTL:     cacheTTL,
		defaultFlags: defaultFlags,
		cache:        make(map[string]*Flag),
	}
}

// GetFlag returns the flag for key from cache, repository or defaults,
// in that order. Returns nil for an unknown key.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if flag, ok := s.getCached(key); ok {
		return flag
	}

	flag, err := s.repo.GetFlag(ctx, key)
	if err == nil {
		s.setCached(flag)
		return flag.clone()
	}
	if !errors.Is(err, ErrFlagNotFound) {
		s.logger.Warn().Err(err).Str("flag", key).Msg("failed to get feature flag from repository")
	}
	return s.defaultFlags[key].clone()
}

// GetAllFlags returns repository flags merged over defaults, sorted by key.
func (s *Service) GetAllFlags(ctx context.Context) []*Flag {
	merged := make(map[string]*Flag, len(s.defaultFlags))
	for k, v := range s.defaultFlags {
		merged[k] = v.clone()
	}

	flags, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to get feature flags from repository, using defaults")
	} else {
		s.mu.Lock()
		s.cache = make(map[string]*Flag, len(flags))
		for k, v := range flags {
			merged[k] = v.clone()
			s.cache[k] = v.clone()
		}
		s.cacheExpiry = time.Now().Add(s.cacheTTL)
		s.mu.Unlock()
	}

	out := make([]*Flag, 0, len(merged))
	for _, f := range merged {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// SetFlags updates well-known flags atomically.
func (s *Service) SetFlags(ctx context.Context, flags []*Flag) error {
	now := time.Now()
	for _, flag := range flags {
		if !IsKnown(flag.Key) {
			return fmt.Errorf("%w: %s", ErrUnknownFlag, flag.Key)
		}
		flag.UpdatedAt = now
	}

	if err := s.repo.SetFlags(ctx, flags); err != nil {
		return fmt.Errorf("storing flags: %w", err)
	}
	for _, flag := range flags {
		s.setCached(flag)
		s.logger.Info().
			Str("flag", flag.Key).
			Interface("value", flag.Value).
			Msg("feature flag updated")
	}
	return nil
}

// ResetFlag removes a stored override so the flag reverts to its default.
func (s *Service) ResetFlag(ctx context.Context, key string) error {
	if !IsKnown(key) {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}
	if err := s.repo.DeleteFlag(ctx, key); err != nil && !errors.Is(err, ErrFlagNotFound) {
		return fmt.Errorf("resetting flag %s: %w", key, err)
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	s.logger.Info().Str("flag", key).Msg("feature flag reset to default")
	return nil
}

// InvalidateCache clears the cached flags, forcing a refresh on next access.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Flag)
	s.cacheExpiry = time.Time{}
}

// IsEnabled returns true if the flag with the given key is truthy.
// A nil service reports every flag as off.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	if s == nil || s.repo == nil {
		return false
	}
	return s.GetFlag(ctx, key).BoolValue(false)
}

// AlertEmailsDisabled reports whether alert emails are switched off.
func (s *Service) AlertEmailsDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableAlertEmails)
}

// RealtimePushDisabled reports whether websocket pushes are switched off.
func (s *Service) RealtimePushDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableRealtimePush)
}

func (s *Service) getCached(key string) (*Flag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if time.Now().After(s.cacheExpiry) {
		return nil, false
	}
	flag, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	return flag.clone(), true
}

func (s *Service) setCached(flag *Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cacheExpiry.Before(time.Now()) {
		s.cache = make(map[string]*Flag)
		s.cacheExpiry = time.Now().Add(s.cacheTTL)
	}
	s.cache[flag.Key] = flag.clone()
}
