package payments

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	uuid "github.com/satori/go.uuid"
)

// Lease makes a reconciliation loop a singleton across service instances.
type Lease interface {
	// Acquire returns false when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error)
	// Held reports whether any instance owns key.
	Held(ctx context.Context, key string) (bool, error)
	// Revoke asks the holder of key to give it up, the holder learns about it through Revoked.
	Revoke(ctx context.Context, key string, ttl time.Duration) error
	// Revoked reports whether the current holder of key was asked to give it up.
	Revoked(ctx context.Context, key string) (bool, error)
}

// unlock deletes KEYS[1] and its revocation KEYS[2] only while KEYS[1] still holds ARGV[1].
var unlock = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1]
	then
		return redis.call("del", KEYS[1], KEYS[2])
	else
		return 0
	end
`)

const revokedSuffix = ":revoked"

// RedisLease implements Lease with SET NX PX and a compare-and-delete release.
type RedisLease struct {
	rc     redis.UniversalClient
	prefix string
}

// NewRedisLease returns a lease namespaced under prefix.
func NewRedisLease(rc redis.UniversalClient, prefix string) *RedisLease {
	return &RedisLease{rc: rc, prefix: prefix}
}

// NewRedisClient connects to addr and checks it answers.
func NewRedisClient(ctx context.Context, addr, user, pass string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("no redis address configured")
	}

	rc := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     user,
		Password:     pass,
		DialTimeout:  15 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		MaxRetries:   5,
	})

	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return rc, nil
}

func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	k := l.prefix + key
	token := uuid.NewV4().String()

	ok, err := l.rc.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}

	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) {
		_ = unlock.Run(ctx, l.rc, []string{k, k + revokedSuffix}, token).Err()
	}

	return release, true, nil
}

func (l *RedisLease) Held(ctx context.Context, key string) (bool, error) {
	n, err := l.rc.Exists(ctx, l.prefix+key).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (l *RedisLease) Revoke(ctx context.Context, key string, ttl time.Duration) error {
	return l.rc.Set(ctx, l.prefix+key+revokedSuffix, "1", ttl).Err()
}

func (l *RedisLease) Revoked(ctx context.Context, key string) (bool, error) {
	n, err := l.rc.Exists(ctx, l.prefix+key+revokedSuffix).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}
