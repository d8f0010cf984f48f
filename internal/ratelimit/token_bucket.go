package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// refillScript keeps one hash per bucket holding the fractional token count
// and the last refill time in milliseconds. Redis TIME is the only clock so
// every API node agrees on the refill.
const refillScript = `
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local t = redis.call("TIME")
local now_ms = t[1] * 1000 + math.floor(t[2] / 1000)

local tokens = tonumber(redis.call("HGET", KEYS[1], "tokens"))
local last_ms = tonumber(redis.call("HGET", KEYS[1], "last_ms"))
if tokens == nil or last_ms == nil then
  tokens = capacity
else
  local elapsed = math.max(0, now_ms - last_ms)
  tokens = math.min(capacity, tokens + elapsed * rate / 1000)
end

local granted = 0
if tokens >= 1 then
  tokens = tokens - 1
  granted = 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "last_ms", now_ms)
redis.call("PEXPIRE", KEYS[1], ttl_ms)
return {granted, tostring(tokens)}
`

// Decision is the outcome of taking one token from a bucket.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// batchBucket is a Redis token bucket refilled at rate tokens per second up
// to capacity.
type batchBucket struct {
	client   *redis.Client
	script   *redis.Script
	rate     float64
	capacity int
}

func newBatchBucket(client *redis.Client, rate float64, capacity int) (*batchBucket, error) {
	if client == nil {
		return nil, errors.New("token bucket requires a redis client")
	}
	if rate <= 0 || capacity <= 0 {
		return nil, errors.New("sync batch rate limit must be positive")
	}
	return &batchBucket{
		client:   client,
		script:   redis.NewScript(refillScript),
		rate:     rate,
		capacity: capacity,
	}, nil
}

func (b *batchBucket) take(ctx context.Context, key string) (*Decision, error) {
	if key == "" {
		return nil, errors.New("token bucket key is empty")
	}
	reply, err := b.script.Run(ctx, b.client, []string{key},
		b.rate, b.capacity, bucketTTL(b.rate, b.capacity).Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}
	return decide(reply, b.rate, b.capacity)
}

// decide turns the script reply into a Decision. A denied caller waits for
// the missing fraction of a token.
func decide(reply []any, rate float64, capacity int) (*Decision, error) {
	if len(reply) != 2 {
		return nil, fmt.Errorf("token bucket: unexpected reply of %d values", len(reply))
	}
	granted, ok := reply[0].(int64)
	if !ok {
		return nil, fmt.Errorf("token bucket: granted flag is %T", reply[0])
	}
	raw, ok := reply[1].(string)
	if !ok {
		return nil, fmt.Errorf("token bucket: token count is %T", reply[1])
	}
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("token bucket: token count %q: %w", raw, err)
	}

	d := &Decision{
		Allowed:   granted == 1,
		Limit:     capacity,
		Remaining: int(math.Floor(tokens)),
	}
	if !d.Allowed && rate > 0 {
		d.RetryAfter = time.Duration((1 - tokens) / rate * float64(time.Second))
	}
	return d, nil
}

// bucketTTL keeps an idle bucket around for two full refills.
func bucketTTL(rate float64, capacity int) time.Duration {
	if rate <= 0 || capacity <= 0 {
		return time.Second
	}
	return time.Duration(math.Max(1, math.Ceil(2*float64(capacity)/rate))) * time.Second
}
