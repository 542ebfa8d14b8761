package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath     = "CONFIG_PATH"
	EnvDBConnection   = "DB_CONNECTION"
	EnvBalanceTTL     = "BALANCE_CACHE_TTL"
	EnvPendingWindow  = "PENDING_SPEND_WINDOW"
	EnvReservationTTL = "RESERVATION_TTL"
	EnvBillingBaseURL = "BILLING_BASE_URL"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// ErrMissingBillingBaseURL indicates no billing service URL is present in the config file.
var ErrMissingBillingBaseURL = errors.New("missing billing base url (set `billing.base-url` in config file)")

// LoadBillingBaseURL reads the billing service base URL from the YAML config file.
func LoadBillingBaseURL(configPath string) (string, error) {
	if baseURL := strings.TrimSpace(os.Getenv(EnvBillingBaseURL)); baseURL != "" {
		return baseURL, nil
	}

	// fileConfig maps the YAML fields needed for billing resolution.
	type fileConfig struct {
		Billing struct {
			BaseURL string `yaml:"base-url"`
		} `yaml:"billing"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if baseURL := strings.TrimSpace(cfg.Billing.BaseURL); baseURL != "" {
		return strings.TrimRight(baseURL, "/"), nil
	}
	return "", ErrMissingBillingBaseURL
}

// Defaults used when the config omits or invalidates admission timings.
const (
	defaultBalanceCacheTTL = 3 * time.Minute
	defaultPendingWindow   = 24 * time.Hour
	defaultReservationTTL  = 5 * time.Minute
)

// AdmissionConfig holds timing settings for the admission pipeline.
type AdmissionConfig struct {
	BalanceCacheTTL time.Duration `yaml:"balance-cache-ttl"`
	PendingWindow   time.Duration `yaml:"pending-spend-window"`
	ReservationTTL  time.Duration `yaml:"reservation-ttl"`
	SweepSchedule   string        `yaml:"sweep-schedule"`
}

// LoadAdmissionConfig loads admission timing settings from the YAML config
// file, with environment overrides.
func LoadAdmissionConfig(configPath string) (AdmissionConfig, error) {
	// fileConfig maps the YAML fields needed for admission settings.
	type fileConfig struct {
		Admission AdmissionConfig `yaml:"admission"`
	}

	result := AdmissionConfig{
		BalanceCacheTTL: defaultBalanceCacheTTL,
		PendingWindow:   defaultPendingWindow,
		ReservationTTL:  defaultReservationTTL,
		SweepSchedule:   "@every 1m",
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			if cfg.Admission.BalanceCacheTTL > 0 {
				result.BalanceCacheTTL = cfg.Admission.BalanceCacheTTL
			}
			if cfg.Admission.PendingWindow > 0 {
				result.PendingWindow = cfg.Admission.PendingWindow
			}
			if cfg.Admission.ReservationTTL > 0 {
				result.ReservationTTL = cfg.Admission.ReservationTTL
			}
			if schedule := strings.TrimSpace(cfg.Admission.SweepSchedule); schedule != "" {
				result.SweepSchedule = schedule
			}
		}
	}

	if raw := strings.TrimSpace(os.Getenv(EnvBalanceTTL)); raw != "" {
		if ttl, errParse := time.ParseDuration(raw); errParse == nil && ttl > 0 {
			result.BalanceCacheTTL = ttl
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvPendingWindow)); raw != "" {
		if window, errParse := time.ParseDuration(raw); errParse == nil && window > 0 {
			result.PendingWindow = window
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvReservationTTL)); raw != "" {
		if ttl, errParse := time.ParseDuration(raw); errParse == nil && ttl > 0 {
			result.ReservationTTL = ttl
		}
	}
	return result, nil
}
