package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	l, err := NewRedisLocker(RedisConfig{
		Addr:   srv.Addr(),
		Prefix: "test:lock",
		TTL:    ttl,
		Retry:  5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, srv
}

func TestRedisLockerExclusive(t *testing.T) {
	l, srv := newTestRedisLocker(t, time.Second)

	unlock, err := l.Lock(context.Background(), "mechanic-1")
	require.NoError(t, err)
	require.True(t, srv.Exists("test:lock:mechanic-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "mechanic-1")
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	unlock()
	require.False(t, srv.Exists("test:lock:mechanic-1"))

	again, err := l.Lock(context.Background(), "mechanic-1")
	require.NoError(t, err)
	again()
}

func TestRedisLockerReleaseKeepsSuccessorLock(t *testing.T) {
	l, srv := newTestRedisLocker(t, time.Second)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// Simulate expiry and a new holder taking over.
	srv.FastForward(2 * time.Second)
	successor, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	unlock()
	require.True(t, srv.Exists("test:lock:k"), "stale unlock must not free successor's lock")
	successor()
	require.False(t, srv.Exists("test:lock:k"))
}

func TestRedisLockerFailsFastOnRedisError(t *testing.T) {
	l, srv := newTestRedisLocker(t, time.Second)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := l.Lock(ctx, "k")
	require.Error(t, err)
	require.False(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewRedisLockerRequiresAddr(t *testing.T) {
	l, err := NewRedisLocker(RedisConfig{})
	require.Error(t, err)
	require.Nil(t, l)
}

func TestRedisLockerExtendsLeaseWhileHeld(t *testing.T) {
	l, srv := newTestRedisLocker(t, 300*time.Millisecond)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	srv.SetTTL("test:lock:k", 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return srv.TTL("test:lock:k") == 300*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond)

	unlock()
	unlock()
	require.False(t, srv.Exists("test:lock:k"))
}

func TestRedisLockerStopsExtendingLostLease(t *testing.T) {
	l, srv := newTestRedisLocker(t, 300*time.Millisecond)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	require.NoError(t, srv.Set("test:lock:k", "someone-else"))
	srv.SetTTL("test:lock:k", 5*time.Second)

	time.Sleep(250 * time.Millisecond)
	require.Equal(t, 5*time.Second, srv.TTL("test:lock:k"))

	unlock()
	got, err := srv.Get("test:lock:k")
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}
