package userprops

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/db"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

type mapCache struct {
	data    map[string]string
	getErr  error
	getHits int
}

func (m *mapCache) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	m.getHits++
	return v, nil
}

func (m *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *mapCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mapCache) ProfileCacheKey(userID string) string { return "zb:profile:" + userID }

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	conn, err := db.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())))
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&Profile{}))
	return NewRepository(conn)
}

func TestRepositoryUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	props, err := r.Find(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, props)

	require.NoError(t, r.Upsert(ctx, "u1", map[string]any{"tier": "gold", "city": "Pune"}))
	require.NoError(t, r.Upsert(ctx, "u1", map[string]any{"tier": "platinum"}))

	props, err = r.Find(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"tier": "platinum"}, props)
}

func TestCachedStoreReadThrough(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	require.NoError(t, r.Upsert(ctx, "u1", map[string]any{"tier": "gold"}))

	c := &mapCache{data: map[string]string{}}
	store, err := NewCachedStore(r, c, time.Minute, nil)
	require.NoError(t, err)

	props, ok, err := store.GetUserProperties(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "gold", props["tier"])
	require.Contains(t, c.data, "zb:profile:u1")

	props, ok, err = store.GetUserProperties(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "gold", props["tier"])
	require.Equal(t, 1, c.getHits)

	_, ok, err = store.GetUserProperties(ctx, "ghost")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, missingMarker, c.data["zb:profile:ghost"])
}

func TestCachedStorePutInvalidates(t *testing.T) {
	ctx := context.Background()
	c := &mapCache{data: map[string]string{"zb:profile:u1": `{"tier":"gold"}`}}
	store, err := NewCachedStore(newTestRepo(t), c, time.Minute, nil)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "u1", map[string]any{"tier": "silver"}))
	require.NotContains(t, c.data, "zb:profile:u1")

	props, _, err := store.GetUserProperties(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "silver", props["tier"])
}

func TestCachedStoreFallsBackWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	require.NoError(t, r.Upsert(ctx, "u1", map[string]any{"tier": "gold"}))

	store, err := NewCachedStore(r, &mapCache{data: map[string]string{}, getErr: errors.New("redis down")}, time.Minute, nil)
	require.NoError(t, err)

	props, ok, err := store.GetUserProperties(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "gold", props["tier"])
}
