package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

type redisConfig struct {
	addr     string
	password string
	prefix   string
	db       int
}

// Manager routes bucket operations to the best available backend: the shared
// Redis limiter when settings enable it, otherwise the local actor limiter.
// A Redis failure trips a breaker and falls back to the local limiter; it
// never silently admits, because a failed local store still denies.
type Manager struct {
	provider       SettingsProvider
	nowFn          func() time.Time
	localLimiter   Limiter
	newRedisClient RedisClientFactory

	mu           sync.Mutex
	redisLimiter *RedisLimiter
	redisCfg     redisConfig
	breakerUntil time.Time
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(provider SettingsProvider, nowFn func() time.Time, localLimiter Limiter, newRedisClient RedisClientFactory) *Manager {
	if provider == nil {
		provider = LoadSettingsConfig
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if localLimiter == nil {
		localLimiter = NewActorLimiter(NewMemoryStore(), provider)
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		provider:       provider,
		nowFn:          nowFn,
		localLimiter:   localLimiter,
		newRedisClient: newRedisClient,
	}
}

// CheckAndLock admits or denies the request using the selected backend.
//
// Backends do not share state: a lock taken in Redis is invisible to the
// local limiter and vice versa, so per-identifier mutual exclusion is not
// guaranteed across a breaker transition. The lock expiry bounds how long
// that window can last.
func (m *Manager) CheckAndLock(ctx context.Context, identifier string) (Result, error) {
	if m == nil {
		return Result{}, errors.New("rate limit: nil manager")
	}
	now := m.nowFn()
	cfg := m.provider()
	if cfg.RedisEnabled {
		if limiter := m.redisBackend(ctx, cfg, now); limiter != nil {
			result, errCheck := limiter.CheckAndLock(ctx, identifier, now)
			if errCheck == nil {
				return result, nil
			}
			m.tripBreaker(errCheck, now)
		}
	}
	return m.localLimiter.CheckAndLock(ctx, identifier, now)
}

// Settle clears the lock and deducts cost using the selected backend.
func (m *Manager) Settle(ctx context.Context, identifier string, actualCost float64) error {
	if m == nil {
		return errors.New("rate limit: nil manager")
	}
	now := m.nowFn()
	cfg := m.provider()
	if cfg.RedisEnabled {
		if limiter := m.redisBackend(ctx, cfg, now); limiter != nil {
			errSettle := limiter.Settle(ctx, identifier, actualCost, now)
			if errSettle == nil {
				return nil
			}
			m.tripBreaker(errSettle, now)
		}
	}
	return m.localLimiter.Settle(ctx, identifier, actualCost, now)
}

// redisBackend returns the Redis limiter when usable, nil otherwise.
func (m *Manager) redisBackend(ctx context.Context, cfg SettingsConfig, now time.Time) *RedisLimiter {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.isBreakerActive(now) {
		return nil
	}
	limiter, errEnsure := m.ensureRedis(ctx, cfg)
	if errEnsure != nil {
		m.tripBreaker(errEnsure, now)
		return nil
	}
	return limiter
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	if err == nil || m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to local limiter")
}

func (m *Manager) ensureRedis(ctx context.Context, cfg SettingsConfig) (*RedisLimiter, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}

	nextCfg := redisConfig{
		addr:     addr,
		password: strings.TrimSpace(cfg.RedisPassword),
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
		db:       cfg.RedisDB,
	}
	if nextCfg.db < 0 {
		nextCfg.db = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redisLimiter != nil && m.redisCfg == nextCfg {
		return m.redisLimiter, nil
	}
	if m.redisLimiter != nil {
		_ = m.redisLimiter.client.Close()
		m.redisLimiter = nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     nextCfg.addr,
		Password: nextCfg.password,
		DB:       nextCfg.db,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisLimiter = NewRedisLimiter(client, nextCfg.prefix, m.provider)
	m.redisCfg = nextCfg
	return m.redisLimiter, nil
}
