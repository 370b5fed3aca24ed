package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// releaseScript deletes the lock only when still held by the releasing
// owner, so an expired lock re-acquired by another process is never freed by
// the original holder.
var releaseScript = goredis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// MatterLock serialises rule-engine runs per matter across processes.  SET
// NX with a TTL so a crashed holder cannot block a matter forever.
type MatterLock struct {
	client     *Client
	ttl        time.Duration
	retryDelay time.Duration
	logger     logging.Logger
}

// NewMatterLock wires the lock with the configured TTL.
func NewMatterLock(client *Client, ttl time.Duration, logger logging.Logger) *MatterLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MatterLock{
		client:     client,
		ttl:        ttl,
		retryDelay: 100 * time.Millisecond,
		logger:     logger.Named("matter-lock"),
	}
}

// Lock blocks until the per-matter lock is acquired or ctx is done.  The
// returned function releases the lock; release failures are logged only, the
// TTL is the backstop.
func (l *MatterLock) Lock(ctx context.Context, matterID int64) (func(), error) {
	key := l.client.Key("lock", "matter", matterID)
	token := uuid.NewString()

	for {
		ok, err := l.client.Redis().SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "acquire matter lock")
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "waiting for matter lock")
		case <-time.After(l.retryDelay):
		}
	}

	release := func() {
		// Release must survive caller cancellation.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client.Redis(), []string{key}, token).Err(); err != nil {
			l.logger.Warn("matter lock release failed",
				logging.Int64("matter_id", matterID),
				logging.Err(err))
		}
	}
	return release, nil
}
