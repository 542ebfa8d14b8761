package settings

// DB config keys and defaults for admission settings.
const (
	// BucketCapacityKey controls the token bucket capacity in pollen.
	BucketCapacityKey = "POLLEN_BUCKET_CAPACITY"
	// RefillPerHourKey controls the bucket refill rate in pollen per hour.
	RefillPerHourKey = "POLLEN_REFILL_PER_HOUR"
	// MaxRequestSecondsKey bounds how long the concurrency lock is held.
	MaxRequestSecondsKey = "MAX_REQUEST_SECONDS"
	// ReservationTTLSecondsKey bounds how long a spend hold may live.
	ReservationTTLSecondsKey = "RESERVATION_TTL_SECONDS"
	// RateLimitRedisEnabledKey toggles Redis-backed bucket storage.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for bucket storage.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for bucket storage.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for bucket storage.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for bucket storage.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"

	// DefaultBucketCapacity is the fallback bucket capacity in pollen.
	DefaultBucketCapacity = 0.1
	// DefaultRefillPerHour is the fallback refill rate in pollen per hour.
	DefaultRefillPerHour = 1.0
	// DefaultMaxRequestSeconds is the fallback concurrency lock duration.
	DefaultMaxRequestSeconds = 120
	// DefaultReservationTTLSeconds is the fallback spend hold lifetime.
	DefaultReservationTTLSeconds = 300
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "pg:rl"
)
