package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fixedWindowScript increments the counter, starts the window on the first
// hit and returns {count, remaining_window_ms}.  Running it as one script
// keeps consult-and-increment atomic across app instances.
var fixedWindowScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return { count, ttl }
`)

// RedisThrottle shares login counters between instances through Redis.
// When Redis fails it counts in process instead of letting attempts through.
type RedisThrottle struct {
	rdb      *redis.Client
	max      int
	window   time.Duration
	prefix   string
	fallback *MemoryThrottle
	logger   *zap.Logger
}

func NewRedisThrottle(rdb *redis.Client, max int, window time.Duration, prefix string, logger *zap.Logger) *RedisThrottle {
	return &RedisThrottle{
		rdb:      rdb,
		max:      max,
		window:   window,
		prefix:   prefix,
		fallback: NewMemoryThrottle(max, window),
		logger:   logger,
	}
}

func (r *RedisThrottle) Hit(ctx context.Context, key string) (ThrottleDecision, error) {
	rkey := r.prefix + ":" + key
	vals, err := fixedWindowScript.Run(ctx, r.rdb, []string{rkey}, r.window.Milliseconds()).Result()
	if err != nil {
		r.logger.Warn("login throttle: redis unavailable, counting in memory", zap.Error(err))
		return r.fallback.Hit(ctx, key)
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 2 {
		r.logger.Warn("login throttle: unexpected script result", zap.String("result", fmt.Sprintf("%#v", vals)))
		return r.fallback.Hit(ctx, key)
	}
	count := int(asInt64(arr[0]))
	d := ThrottleDecision{Allowed: count <= r.max, Count: count, Limit: r.max}
	if !d.Allowed {
		d.RetryAfter = time.Duration(asInt64(arr[1])) * time.Millisecond
	}
	return d, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
