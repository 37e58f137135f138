package controllers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseLockout(t *testing.T, l LoginLockout, expire func()) {
	ctx := context.Background()

	for i := 0; i < MaxFailedLogins-1; i++ {
		require.NoError(t, l.Fail(ctx, "clerk@city.gov"))
	}
	locked, err := l.Locked(ctx, "clerk@city.gov")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, l.Fail(ctx, "Clerk@City.gov"))
	locked, err = l.Locked(ctx, "clerk@city.gov")
	require.NoError(t, err)
	assert.True(t, locked, "email is case-insensitive")

	locked, err = l.Locked(ctx, "other@city.gov")
	require.NoError(t, err)
	assert.False(t, locked)

	expire()
	locked, err = l.Locked(ctx, "clerk@city.gov")
	require.NoError(t, err)
	assert.False(t, locked, "window elapsed")

	require.NoError(t, l.Fail(ctx, "clerk@city.gov"))
	require.NoError(t, l.Reset(ctx, "clerk@city.gov"))
	for i := 0; i < MaxFailedLogins-1; i++ {
		require.NoError(t, l.Fail(ctx, "clerk@city.gov"))
	}
	locked, err = l.Locked(ctx, "clerk@city.gov")
	require.NoError(t, err)
	assert.False(t, locked, "reset clears earlier failures")
}

func TestMemoryLockout(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLockout()
	l.now = func() time.Time { return now }

	exerciseLockout(t, l, func() { now = now.Add(LockoutWindow) })
}

func TestRedisLockout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRedisLockout(client, "test")
	exerciseLockout(t, l, func() { mr.FastForward(LockoutWindow + time.Second) })
	assert.True(t, mr.Exists("test:lockout:clerk@city.gov"))
}
