package payments

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"

	"github.com/etruckzm/etruck-go/libs/logging"
)

func newTestReconciler(t *testing.T, interval time.Duration, attempts int, poll PollFunc, expire ExpireFunc, lease Lease) (context.Context, *Reconciler) {
	t.Helper()

	ctx, _ := logging.SetupLogger(context.Background())

	if expire == nil {
		expire = func(context.Context, string) error { return nil }
	}

	r := NewReconciler(ctx, interval, attempts, poll, expire, lease)
	t.Cleanup(r.Stop)

	return ctx, r
}

func TestReconciler_Singleton(t *testing.T) {
	release := make(chan struct{})

	var polls int64
	poll := func(ctx context.Context, ref string) (bool, error) {
		atomic.AddInt64(&polls, 1)

		select {
		case <-release:
		case <-ctx.Done():
		}

		return true, nil
	}

	ctx, r := newTestReconciler(t, time.Millisecond, 5, poll, nil, nil)

	must.True(t, r.Start(ctx, "ref-1"))
	should.False(t, r.Start(ctx, "ref-1"))
	should.True(t, r.Start(ctx, "ref-2"))

	close(release)

	must.Eventually(t, func() bool { return !r.Active("ref-1") && !r.Active("ref-2") }, time.Second, time.Millisecond)
	should.Equal(t, int64(2), atomic.LoadInt64(&polls))

	should.True(t, r.Start(ctx, "ref-1"))
}

func TestReconciler_ExpiresAfterAttempts(t *testing.T) {
	var (
		polls   int64
		expired int64
	)

	poll := func(context.Context, string) (bool, error) {
		if atomic.AddInt64(&polls, 1)%2 == 0 {
			return false, errors.New("gateway slow")
		}
		return false, nil
	}
	expire := func(_ context.Context, ref string) error {
		should.Equal(t, "ref-1", ref)
		atomic.AddInt64(&expired, 1)
		return nil
	}

	ctx, r := newTestReconciler(t, time.Millisecond, 4, poll, expire, nil)

	must.True(t, r.Start(ctx, "ref-1"))
	must.Eventually(t, func() bool { return !r.Active("ref-1") }, time.Second, time.Millisecond)

	should.Equal(t, int64(4), atomic.LoadInt64(&polls))
	should.Equal(t, int64(1), atomic.LoadInt64(&expired))
}

func TestReconciler_Cancel(t *testing.T) {
	var (
		polls   int64
		expired int64
	)

	poll := func(context.Context, string) (bool, error) {
		atomic.AddInt64(&polls, 1)
		return false, nil
	}
	expire := func(context.Context, string) error {
		atomic.AddInt64(&expired, 1)
		return nil
	}

	ctx, r := newTestReconciler(t, time.Hour, 3, poll, expire, nil)

	must.True(t, r.Start(ctx, "ref-1"))
	should.True(t, r.Cancel("ref-1"))
	should.False(t, r.Cancel("ref-1"))

	must.Eventually(t, func() bool { return !r.Active("ref-1") }, time.Second, time.Millisecond)

	should.Equal(t, int64(0), atomic.LoadInt64(&polls))
	should.Equal(t, int64(0), atomic.LoadInt64(&expired))
}

func TestReconciler_Stop(t *testing.T) {
	poll := func(context.Context, string) (bool, error) { return false, nil }

	ctx, r := newTestReconciler(t, time.Hour, 3, poll, nil, nil)

	must.True(t, r.Start(ctx, "ref-1"))

	r.Stop()

	should.False(t, r.Active("ref-1"))
	should.False(t, r.Start(ctx, "ref-2"))
}

func TestReconciler_Lease(t *testing.T) {
	mr := miniredis.RunT(t)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	lease := NewRedisLease(rc, "test:")

	release := make(chan struct{})
	poll := func(ctx context.Context, _ string) (bool, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return true, nil
	}

	ctx, first := newTestReconciler(t, time.Millisecond, 5, poll, nil, lease)
	_, second := newTestReconciler(t, time.Millisecond, 5, poll, nil, lease)

	must.True(t, first.Start(ctx, "ref-1"))
	should.True(t, mr.Exists("test:"+leasePrefix+"ref-1"))

	should.False(t, second.Start(ctx, "ref-1"))
	should.False(t, second.Active("ref-1"))

	close(release)

	must.Eventually(t, func() bool { return !first.Active("ref-1") }, time.Second, time.Millisecond)
	should.False(t, mr.Exists("test:"+leasePrefix+"ref-1"))

	should.True(t, second.Start(ctx, "ref-1"))
}

func TestReconciler_CancelOnOtherInstance(t *testing.T) {
	mr := miniredis.RunT(t)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	lease := NewRedisLease(rc, "test:")

	var polls int64
	poll := func(context.Context, string) (bool, error) {
		atomic.AddInt64(&polls, 1)
		return false, nil
	}

	var expired int64
	expire := func(context.Context, string) error {
		atomic.AddInt64(&expired, 1)
		return nil
	}

	ctx, owner := newTestReconciler(t, 5*time.Millisecond, 10000, poll, expire, lease)
	_, other := newTestReconciler(t, 5*time.Millisecond, 10000, poll, expire, lease)

	must.True(t, owner.Start(ctx, "ref-1"))

	should.False(t, other.Active("ref-1"))
	should.True(t, other.Running(ctx, "ref-1"))
	should.False(t, other.Running(ctx, "ref-2"))

	should.True(t, other.Cancel("ref-1"))

	must.Eventually(t, func() bool { return !owner.Active("ref-1") }, 2*time.Second, time.Millisecond)
	should.False(t, other.Running(ctx, "ref-1"))
	should.Equal(t, int64(0), atomic.LoadInt64(&expired))

	should.False(t, other.Cancel("ref-1"))
}

func TestReconciler_Running_LeaseUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rc.Close() })

	mr.Close()

	poll := func(context.Context, string) (bool, error) { return true, nil }
	ctx, r := newTestReconciler(t, time.Hour, 1, poll, nil, NewRedisLease(rc, "test:"))

	should.True(t, r.Running(ctx, "ref-1"))
	should.False(t, r.Cancel("ref-1"))
}

func TestReconciler_LeaseUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rc.Close() })

	mr.Close()

	poll := func(context.Context, string) (bool, error) { return true, nil }

	ctx, r := newTestReconciler(t, time.Millisecond, 5, poll, nil, NewRedisLease(rc, "test:"))

	should.True(t, r.Start(ctx, "ref-1"))
	must.Eventually(t, func() bool { return !r.Active("ref-1") }, 2*time.Second, time.Millisecond)
}
