package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"FileShare/config"
	"FileShare/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when another holder owns the lock.
var ErrLockBusy = errors.New("lock is busy")

type RedisLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// NewRedis connects to Redis and checks the connection.
func NewRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// EnableKeyspaceNotifications turns on expired-key events.
func EnableKeyspaceNotifications(ctx context.Context, rdb *redis.Client) error {
	return rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// NewRedisLock creates a Redis lock helper.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb: rdb,
		key: key,
		ttl: ttl,
	}
}

// Lock acquires a Redis-based lock.
func (l *RedisLock) Lock(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockBusy
	}
	l.token = token
	return nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock releases the lock if this holder still owns it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	_, err := unlockScript.Run(
		ctx,
		l.rdb,
		[]string{l.key},
		l.token,
	).Result()
	l.token = ""
	return err
}

// RedisExpiryScheduler arms a key that expires together with a share.
type RedisExpiryScheduler struct {
	rdb *redis.Client
}

func NewRedisExpiryScheduler(rdb *redis.Client) *RedisExpiryScheduler {
	return &RedisExpiryScheduler{rdb: rdb}
}

// Schedule sets share:expire:<id> so it expires at the share's expiry.
func (s *RedisExpiryScheduler) Schedule(ctx context.Context, id string, at time.Time) error {
	ttl := time.Until(at)
	if ttl < time.Second {
		ttl = time.Second
	}
	key := utils.BuildCacheKey(utils.CacheKeyShareExpire, id)
	return s.rdb.Set(ctx, key, 1, ttl).Err()
}

// ExpiredShareHandler is invoked once per expired share id.
type ExpiredShareHandler func(ctx context.Context, shareID string) error

// ExpiryListener turns Redis expired events into ExpiredShareHandler calls.
type ExpiryListener struct {
	rdb     *redis.Client
	db      int
	handler ExpiredShareHandler
	logger  *slog.Logger
	lockTTL time.Duration
}

func NewExpiryListener(rdb *redis.Client, db int, handler ExpiredShareHandler, logger *slog.Logger) *ExpiryListener {
	return &ExpiryListener{
		rdb:     rdb,
		db:      db,
		handler: handler,
		logger:  logger,
		lockTTL: time.Minute,
	}
}

// Listen subscribes to expired events and blocks until ctx is done.
// ready is closed once the subscription is confirmed.
func (l *ExpiryListener) Listen(ctx context.Context, ready chan<- struct{}) error {
	pubsub := l.rdb.Subscribe(ctx, fmt.Sprintf("__keyevent@%d__:expired", l.db))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe expired events: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.handleExpiredKey(ctx, msg.Payload)
		}
	}
}

// handleExpiredKey dispatches expired-key handlers.
func (l *ExpiryListener) handleExpiredKey(ctx context.Context, key string) {
	prefix := utils.CacheKeyShareExpire + ":"
	switch {
	case strings.HasPrefix(key, prefix):
		l.handleShareExpired(ctx, strings.TrimPrefix(key, prefix))
	default:
	}
}

// handleShareExpired runs the handler under a lock so a single instance
// reclaims each share.
func (l *ExpiryListener) handleShareExpired(ctx context.Context, shareID string) {
	lock := NewRedisLock(l.rdb, "lock:share:reclaim:"+shareID, l.lockTTL)
	if err := lock.Lock(ctx); err != nil {
		if !errors.Is(err, ErrLockBusy) {
			l.logger.Warn("reclaim lock failed", slog.String("share_id", shareID), slog.Any("error", err))
		}
		return
	}
	if err := l.handler(ctx, shareID); err != nil {
		l.logger.Error("reclaim expired share failed", slog.String("share_id", shareID), slog.Any("error", err))
		if err := lock.Unlock(ctx); err != nil {
			l.logger.Warn("reclaim unlock failed", slog.String("share_id", shareID), slog.Any("error", err))
		}
		return
	}
	// On success the lock is left to expire so duplicate events on other
	// instances skip.
	l.logger.Info("share expired", slog.String("share_id", shareID))
}
