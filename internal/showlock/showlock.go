// Package showlock serializes runs per show.
//
// Only one process may work a show at a time: the feed document is updated
// with a read-modify-write, so two writers could drop each other's entries.
// The file backend uses an advisory flock in the state directory and suits a
// single host. The redis backend uses SET NX PX with a random token and a
// token-checked release so cron jobs on several hosts can share shows.
package showlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"feedcaster/internal/config"
	"feedcaster/internal/textutil"
)

// ErrHeld reports that another run holds the show's lock.
var ErrHeld = errors.New("show lock is held by another run")

// Lock is a held show lock.
type Lock interface {
	// Refresh extends the lock lease where the backend has one.
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// Locker acquires show locks without waiting.
type Locker interface {
	Acquire(ctx context.Context, showID string) (Lock, error)
	Close() error
}

// New returns the locker selected by cfg.Lock.Backend.
func New(cfg *config.Config) (Locker, error) {
	switch cfg.Lock.Backend {
	case "", "file":
		return NewFileLocker(filepath.Join(cfg.Paths.StateDir, "locks"))
	case "redis":
		opts, err := redis.ParseURL(cfg.Lock.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse lock.redis_url: %w", err)
		}
		return NewRedisLocker(redis.NewClient(opts), cfg.LockTTL()), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend %q", cfg.Lock.Backend)
	}
}

// FileLocker keeps one lock file per show.
type FileLocker struct {
	dir string
}

func NewFileLocker(dir string) (*FileLocker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &FileLocker{dir: dir}, nil
}

func (l *FileLocker) Acquire(_ context.Context, showID string) (Lock, error) {
	path := filepath.Join(l.dir, "show-"+textutil.SanitizeToken(showID)+".lock")
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, showID)
	}
	return &fileLock{fl: fl}, nil
}

func (l *FileLocker) Close() error { return nil }

type fileLock struct {
	fl *flock.Flock
}

func (f *fileLock) Refresh(context.Context) error { return nil }

func (f *fileLock) Release(context.Context) error {
	return f.fl.Unlock()
}

const keyPrefix = "feedcaster:lock:show:"

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// ErrLost reports a redis lock that expired or was taken over before it was
// refreshed or released.
var ErrLost = errors.New("show lock lost")

// RedisLocker holds show locks as expiring redis keys.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, showID string) (Lock, error) {
	key := keyPrefix + showID
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, showID)
	}
	return &redisLock{client: l.client, key: key, token: token, ttl: l.ttl}, nil
}

func (l *RedisLocker) Close() error { return l.client.Close() }

type redisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func (r *redisLock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, r.client, []string{r.key}, r.token, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("refresh %s: %w", r.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLost, r.key)
	}
	return nil
}

func (r *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", r.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLost, r.key)
	}
	return nil
}
