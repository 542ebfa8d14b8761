package ratelimit

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	internalsettings "github.com/pollengate/pollengate/internal/settings"
)

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// SettingsConfig captures admission settings stored in DB config.
type SettingsConfig struct {
	Capacity           float64
	RefillPerHour      float64
	MaxRequestDuration time.Duration
	RedisEnabled       bool
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisPrefix        string
}

// RefillPerMs converts the hourly refill rate to tokens per millisecond.
func (c SettingsConfig) RefillPerMs() float64 {
	if c.RefillPerHour <= 0 {
		return 0
	}
	return c.RefillPerHour / float64(time.Hour/time.Millisecond)
}

// LoadSettingsConfig loads the current admission settings snapshot.
func LoadSettingsConfig() SettingsConfig {
	cfg := SettingsConfig{
		Capacity:           internalsettings.DefaultBucketCapacity,
		RefillPerHour:      internalsettings.DefaultRefillPerHour,
		MaxRequestDuration: internalsettings.DefaultMaxRequestSeconds * time.Second,
		RedisPrefix:        internalsettings.DefaultRateLimitRedisPrefix,
	}

	if raw, ok := internalsettings.DBConfigValue(internalsettings.BucketCapacityKey); ok {
		if capacity, okParse := parsePositiveFloat(raw); okParse {
			cfg.Capacity = capacity
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RefillPerHourKey); ok {
		if refill, okParse := parsePositiveFloat(raw); okParse {
			cfg.RefillPerHour = refill
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.MaxRequestSecondsKey); ok {
		if seconds, okParse := parseNonNegativeInt(raw); okParse && seconds > 0 {
			cfg.MaxRequestDuration = time.Duration(seconds) * time.Second
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisEnabledKey); ok {
		if enabled, okParse := parseBool(raw); okParse {
			cfg.RedisEnabled = enabled
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisAddrKey); ok {
		if addr, okParse := parseString(raw); okParse {
			cfg.RedisAddr = addr
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisPasswordKey); ok {
		if password, okParse := parseString(raw); okParse {
			cfg.RedisPassword = password
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisDBKey); ok {
		if db, okParse := parseNonNegativeInt(raw); okParse {
			cfg.RedisDB = db
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisPrefixKey); ok {
		if prefix, okParse := parseString(raw); okParse {
			cfg.RedisPrefix = prefix
		}
	}

	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.RedisPassword = strings.TrimSpace(cfg.RedisPassword)
	cfg.RedisPrefix = strings.TrimSpace(cfg.RedisPrefix)
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	if cfg.RedisDB < 0 {
		cfg.RedisDB = 0
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = internalsettings.DefaultBucketCapacity
	}
	if cfg.MaxRequestDuration <= 0 {
		cfg.MaxRequestDuration = internalsettings.DefaultMaxRequestSeconds * time.Second
	}
	return cfg
}

func parseBool(raw json.RawMessage) (bool, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false, false
	}
	var parsedBool bool
	if errUnmarshalBool := json.Unmarshal(raw, &parsedBool); errUnmarshalBool == nil {
		return parsedBool, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		switch strings.ToLower(strings.TrimSpace(parsedString)) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		default:
			return false, false
		}
	}
	return false, false
}

func parseString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		return strings.TrimSpace(parsedString), true
	}
	return "", false
}

func parseNonNegativeInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, parsedInt >= 0
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, parsed >= 0
	}
	return 0, false
}

func parsePositiveFloat(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) || parsedFloat <= 0 {
			return 0, false
		}
		return parsedFloat, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.ParseFloat(strings.TrimSpace(parsedString), 64)
		if errParse != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed <= 0 {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
