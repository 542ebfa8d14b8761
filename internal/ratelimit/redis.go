package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bucket operations run as Lua scripts so the read-modify-write cycle is
// atomic server-side; Redis's single-threaded execution gives the same
// per-identifier serialization the in-process actor provides.
var redisCheckAndLockScript = redis.NewScript(`
local tokens = tonumber(redis.call("HGET", KEYS[1], "tokens"))
local last = tonumber(redis.call("HGET", KEYS[1], "last_ms"))
local locked = tonumber(redis.call("HGET", KEYS[1], "locked_ms"))
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local lock_ms = tonumber(ARGV[4])
local min_admit = tonumber(ARGV[5])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end
if now > last then
  tokens = tokens + (now - last) * rate
  last = now
end
if tokens > capacity then tokens = capacity end
if tokens < 0 then tokens = 0 end
if locked ~= nil and locked > now then
  redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "last_ms", tostring(last))
  return {"locked", tostring(tokens)}
end
if tokens < min_admit then
  redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "last_ms", tostring(last))
  redis.call("HDEL", KEYS[1], "locked_ms")
  return {"empty", tostring(tokens)}
end
redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "last_ms", tostring(last), "locked_ms", tostring(now + lock_ms))
return {"ok", tostring(tokens)}
`)

var redisSettleScript = redis.NewScript(`
local tokens = tonumber(redis.call("HGET", KEYS[1], "tokens"))
local last = tonumber(redis.call("HGET", KEYS[1], "last_ms"))
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end
if now > last then
  tokens = tokens + (now - last) * rate
  last = now
end
if tokens > capacity then tokens = capacity end
tokens = tokens - cost
if tokens < 0 then tokens = 0 end
redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "last_ms", tostring(last))
redis.call("HDEL", KEYS[1], "locked_ms")
return tostring(tokens)
`)

// RedisLimiter enforces the pollen bucket in Redis, shared across nodes.
type RedisLimiter struct {
	client   *redis.Client
	prefix   string
	provider SettingsProvider
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string, provider SettingsProvider) *RedisLimiter {
	if provider == nil {
		provider = LoadSettingsConfig
	}
	return &RedisLimiter{
		client:   client,
		prefix:   strings.TrimSpace(prefix),
		provider: provider,
	}
}

// CheckAndLock runs the atomic bucket check in Redis.
func (l *RedisLimiter) CheckAndLock(ctx context.Context, identifier string, now time.Time) (Result, error) {
	if l == nil || l.client == nil {
		return Result{}, fmt.Errorf("%w: redis limiter not initialized", ErrUnavailable)
	}
	if identifier == "" {
		return Result{}, fmt.Errorf("rate limit: missing identifier")
	}
	cfg := l.provider()
	res, errEval := redisCheckAndLockScript.Run(ctx, l.client,
		[]string{l.buildKey(identifier)},
		now.UnixMilli(),
		cfg.Capacity,
		cfg.RefillPerMs(),
		cfg.MaxRequestDuration.Milliseconds(),
		minAdmitTokens,
	).Result()
	if errEval != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, errEval)
	}
	status, tokens, errParse := parseBucketReply(res)
	if errParse != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, errParse)
	}
	switch status {
	case "ok":
		return Result{Allowed: true, Remaining: tokens, Limit: cfg.Capacity}, nil
	case "locked":
		return Result{Denial: DenialConcurrency, Remaining: tokens, Limit: cfg.Capacity}, nil
	case "empty":
		return Result{
			Denial:    DenialBudget,
			Remaining: tokens,
			Limit:     cfg.Capacity,
			Wait:      timeToAccumulate(tokens, cfg.RefillPerMs()),
		}, nil
	default:
		return Result{}, fmt.Errorf("%w: unexpected bucket status %q", ErrUnavailable, status)
	}
}

// Settle runs the atomic lock release and deduction in Redis.
func (l *RedisLimiter) Settle(ctx context.Context, identifier string, actualCost float64, now time.Time) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("%w: redis limiter not initialized", ErrUnavailable)
	}
	if identifier == "" {
		return fmt.Errorf("rate limit: missing identifier")
	}
	if actualCost < 0 {
		actualCost = 0
	}
	cfg := l.provider()
	if errEval := redisSettleScript.Run(ctx, l.client,
		[]string{l.buildKey(identifier)},
		now.UnixMilli(),
		cfg.Capacity,
		cfg.RefillPerMs(),
		actualCost,
	).Err(); errEval != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, errEval)
	}
	return nil
}

func (l *RedisLimiter) buildKey(identifier string) string {
	if l.prefix == "" {
		return identifier
	}
	return l.prefix + ":" + identifier
}

// parseBucketReply decodes the {status, tokens} array returned by the
// check-and-lock script.
func parseBucketReply(res any) (string, float64, error) {
	arr, ok := res.([]any)
	if !ok || len(arr) != 2 {
		return "", 0, fmt.Errorf("unexpected script reply %T", res)
	}
	status, ok := arr[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("unexpected status type %T", arr[0])
	}
	raw, ok := arr[1].(string)
	if !ok {
		return "", 0, fmt.Errorf("unexpected tokens type %T", arr[1])
	}
	tokens, errParse := strconv.ParseFloat(raw, 64)
	if errParse != nil {
		return "", 0, fmt.Errorf("parse tokens: %w", errParse)
	}
	return status, tokens, nil
}

var _ Limiter = (*RedisLimiter)(nil)
