package sessions

import (
	"context"
	"fmt"
	"sort"
	"time"

	pkgredis "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/redis"
	"github.com/goccy/go-json"
)

type kv interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key string, members ...any) error
	SRem(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SessionKey(sessionID string) string
	OpenSessionKey(userID string) string
	OpenSessionIndexKey() string
}

var _ kv = (*pkgredis.Client)(nil)

// RedisStore shares open sessions across collector instances. Each session is
// stored as JSON with a TTL, alongside a user pointer and an index set.
type RedisStore struct {
	kv  kv
	ttl time.Duration
}

func NewRedisStore(client kv, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{kv: client, ttl: ttl}, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.kv.Get(ctx, r.kv.SessionKey(id))
	if err != nil {
		if pkgredis.IsNil(err) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	if err := r.kv.Set(ctx, r.kv.SessionKey(s.ID), payload, r.ttl); err != nil {
		return fmt.Errorf("store session %s: %w", s.ID, err)
	}
	if err := r.kv.Set(ctx, r.kv.OpenSessionKey(s.UserID), s.ID, r.ttl); err != nil {
		return fmt.Errorf("store open session pointer: %w", err)
	}
	return r.kv.SAdd(ctx, r.kv.OpenSessionIndexKey(), s.ID)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return r.kv.SRem(ctx, r.kv.OpenSessionIndexKey(), id)
		}
		return err
	}
	keys := []string{r.kv.SessionKey(id)}
	if current, err := r.kv.Get(ctx, r.kv.OpenSessionKey(s.UserID)); err == nil && current == id {
		keys = append(keys, r.kv.OpenSessionKey(s.UserID))
	}
	if err := r.kv.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return r.kv.SRem(ctx, r.kv.OpenSessionIndexKey(), id)
}

func (r *RedisStore) OpenForUser(ctx context.Context, userID string) (*Session, error) {
	id, err := r.kv.Get(ctx, r.kv.OpenSessionKey(userID))
	if err != nil {
		if pkgredis.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get open session for %s: %w", userID, err)
	}
	s, err := r.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			// pointer outlived the session payload
			_ = r.kv.Del(ctx, r.kv.OpenSessionKey(userID))
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListOpen returns every indexed session ordered by id, pruning expired entries.
func (r *RedisStore) ListOpen(ctx context.Context) ([]*Session, error) {
	ids, err := r.kv.SMembers(ctx, r.kv.OpenSessionIndexKey())
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	sort.Strings(ids)
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if err != nil {
			if isNotFound(err) {
				_ = r.kv.SRem(ctx, r.kv.OpenSessionIndexKey(), id)
				continue
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
