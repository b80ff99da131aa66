// Package userprops serves user attributes for event enrichment from Postgres
// behind a Redis read-through cache.
package userprops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	pkgredis "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/redis"
	"github.com/goccy/go-json"
)

// Store answers getUserProperties. ok is false when the user has no profile.
type Store interface {
	GetUserProperties(ctx context.Context, userID string) (props map[string]any, ok bool, err error)
}

type profileSource interface {
	Find(ctx context.Context, userID string) (map[string]any, error)
	Upsert(ctx context.Context, userID string, props map[string]any) error
}

type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ProfileCacheKey(userID string) string
}

// missingMarker caches the absence of a profile.
const missingMarker = "null"

// CachedStore serves profiles from Redis, falling back to the repository.
type CachedStore struct {
	source profileSource
	cache  cache
	ttl    time.Duration
	logg   *logger.Logger
}

func NewCachedStore(source profileSource, c cache, ttl time.Duration, logg *logger.Logger) (*CachedStore, error) {
	if source == nil {
		return nil, errors.New("profile source required")
	}
	return &CachedStore{source: source, cache: c, ttl: ttl, logg: logg}, nil
}

func (s *CachedStore) GetUserProperties(ctx context.Context, userID string) (map[string]any, bool, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, s.cache.ProfileCacheKey(userID))
		switch {
		case err == nil:
			if raw == missingMarker {
				return nil, false, nil
			}
			var props map[string]any
			if err := json.Unmarshal([]byte(raw), &props); err == nil {
				return props, true, nil
			}
		case !pkgredis.IsNil(err) && s.logg != nil:
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "profile cache read failed")
		}
	}

	props, err := s.source.Find(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	s.fill(ctx, userID, props)
	return props, props != nil, nil
}

// Put stores new properties and drops the cached copy.
func (s *CachedStore) Put(ctx context.Context, userID string, props map[string]any) error {
	if err := s.source.Upsert(ctx, userID, props); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, s.cache.ProfileCacheKey(userID)); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "profile cache invalidation failed")
		}
	}
	return nil
}

func (s *CachedStore) fill(ctx context.Context, userID string, props map[string]any) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	value := missingMarker
	if props != nil {
		raw, err := json.Marshal(props)
		if err != nil {
			return
		}
		value = string(raw)
	}
	if err := s.cache.Set(ctx, s.cache.ProfileCacheKey(userID), value, s.ttl); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "profile cache write failed")
	}
}
