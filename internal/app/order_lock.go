package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// RedisOrderLocker holds a short-lived distributed mutex per user while an order
// is being created, so two concurrent submissions cannot both reach the gateway.
type RedisOrderLocker struct {
	rs     *redsync.Redsync
	prefix string
	ttl    time.Duration
}

func NewRedisOrderLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisOrderLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisOrderLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: redisKeyPrefix(prefix) + ":order_lock",
		ttl:    ttl,
	}
}

// Acquire takes the user's lock with a single try. A lock held by someone else
// yields ErrOrderInProgress; any other failure is returned as is.
func (l *RedisOrderLocker) Acquire(ctx context.Context, userID string) (func(), error) {
	mutex := l.rs.NewMutex(
		fmt.Sprintf("%s:%s", l.prefix, userID),
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isLockTaken(err) {
			return nil, ErrOrderInProgress
		}
		return nil, err
	}

	release := func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			log.Printf("level=warn component=order_lock msg=\"failed to release order lock\" user_id=%s err=%v", userID, err)
		}
	}
	return release, nil
}

func isLockTaken(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}
	var taken *redsync.ErrTaken
	return errors.As(err, &taken)
}
