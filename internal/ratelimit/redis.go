package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript opens the window on the first hit and returns {count, pttl}.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if count == 1 or ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

var _ Counter = (*RedisCounter)(nil)

// RedisCounter shares windows across all instances using the same Redis.
type RedisCounter struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisCounter(client redis.UniversalClient) (*RedisCounter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	return &RedisCounter{client: client, now: time.Now}, nil
}

func (r *RedisCounter) Incr(ctx context.Context, key string, length time.Duration) (int64, time.Time, error) {
	res, err := incrScript.Run(ctx, r.client, []string{key}, length.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected rate limit script reply %v", res)
	}
	return res[0], r.now().Add(time.Duration(res[1]) * time.Millisecond), nil
}
