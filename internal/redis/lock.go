package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired holder never releases a lock taken over by another replica.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CycleLock is a per-agent mutual-exclusion lock shared by every replica
// running the same agent. It keeps two schedulers from submitting outfits
// for one agent at the same time.
type CycleLock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewCycleLock creates a lock for agentID. ttl bounds how long a crashed
// holder can block other replicas.
func NewCycleLock(client redis.Cmdable, agentID uuid.UUID, ttl time.Duration) *CycleLock {
	return &CycleLock{
		client: client,
		key:    fmt.Sprintf("bnv:cycle-lock:%s", agentID),
		ttl:    ttl,
	}
}

// TryAcquire takes the lock without waiting. When ok is true the caller
// must invoke release once its cycle is done.
func (l *CycleLock) TryAcquire(ctx context.Context) (release func(), ok bool, err error) {
	token := ulid.Make().String()
	ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// The cycle context may already be done; releasing must still happen.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			slog.Warn("releasing cycle lock", "key", l.key, "error", err)
		}
	}
	return release, true, nil
}
