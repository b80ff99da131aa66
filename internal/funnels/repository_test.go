package funnels

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/db"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	conn, err := db.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())))
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&Record{}))
	return NewRepository(conn)
}

func TestRepositoryCreateAndGet(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	f, err := NewFunnel("coupon", couponSteps(), 72*time.Hour)
	require.NoError(t, err)
	require.NoError(t, r.Create(ctx, &f))
	require.False(t, f.CreatedAt.IsZero())

	got, err := r.Get(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, f.Name, got.Name)
	require.Equal(t, f.TimeWindow, got.TimeWindow)
	require.Equal(t, f.Steps, got.Steps)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestRepositoryRejectsDuplicateName(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	first, err := NewFunnel("coupon", couponSteps(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, r.Create(ctx, &first))

	second, err := NewFunnel("coupon", couponSteps(), time.Hour)
	require.NoError(t, err)
	err = r.Create(ctx, &second)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestRepositoryGetMissing(t *testing.T) {
	r := newTestRepository(t)
	_, err := r.Get(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFunnelNotFound), "got %v", err)
}
