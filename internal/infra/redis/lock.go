package redis

import (
	"context"
	"time"

	"script-breakdown/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DocumentLocker is the fast path of the per-document mutual exclusion
// around job kickoff. The job table remains the source of truth; the
// lock only narrows the race window between the active-job check and
// the insert.
type DocumentLocker struct {
	cli *redis.Client
}

func NewDocumentLocker(c *redClient) *DocumentLocker {
	return &DocumentLocker{cli: c.cli}
}

func (l *DocumentLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrJobAlreadyActive
	}
	return token, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *DocumentLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
