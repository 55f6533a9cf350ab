package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisIngestScript runs the token bucket atomically in Redis so that every
// ingest gateway replica sees the same bucket.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (epochs per second)
// ARGV[2] = capacity
// ARGV[3] = cost
// ARGV[4] = current unix time (seconds, fractional)
var redisIngestScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisLimiterStore implements LimiterStore on Redis for multi-replica
// ingest gateways.
type RedisLimiterStore struct {
	client *redis.Client
}

func NewRedisLimiterStore(addr, password string, db int) *RedisLimiterStore {
	return &RedisLimiterStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *RedisLimiterStore) Allow(ctx context.Context, subjectID string, policy IngestPolicy, cost int) (bool, error) {
	key := fmt.Sprintf("neurogate:ingest:%s", subjectID)

	perSec := float64(policy.EpochsPerMinute) / 60.0
	if perSec <= 0 {
		perSec = 1.0
	}
	burst := policy.Burst
	if burst <= 0 {
		burst = 1
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := redisIngestScript.Run(ctx, s.client, []string{key}, perSec, burst, cost, now).Result()
	if err != nil {
		return false, fmt.Errorf("redis limiter error: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("invalid response from lua script")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}
