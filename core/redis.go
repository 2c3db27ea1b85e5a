package core

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginRateKeyPrefix = "accounts:login_attempts:"

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// loginAttemptScript increments the attempt counter and starts the window on the
// first attempt. It returns {count, remaining window in ms}.
var loginAttemptScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// LoginLimiter counts login attempts per client key in fixed windows stored in redis.
type LoginLimiter struct {
	client redis.Scripter
	limit  int64
	window time.Duration
}

func NewLoginLimiter(client redis.Scripter, limit int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{client: client, limit: int64(limit), window: window}
}

// Allow records one attempt for key and reports whether it is within the limit,
// along with the time left in the current window.
func (l *LoginLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := loginAttemptScript.Run(ctx, l.client, []string{loginRateKeyPrefix + key}, l.window.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, errors.New("unexpected rate limit response type")
	}
	count, ok1 := vals[0].(int64)
	pttl, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, errors.New("unexpected rate limit response values")
	}

	retryAfter := time.Duration(pttl) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = l.window
	}
	return count <= l.limit, retryAfter, nil
}
