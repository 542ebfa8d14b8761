package db

import (
	"fmt"

	"github.com/pollengate/pollengate/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.RateBucket{},
		&models.PendingSpend{},
		&models.Setting{},
		&models.UsageRecord{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	// AutoMigrate covers columns and plain indexes on both dialects; the
	// lock-expiry lookup additionally wants a partial index in Postgres.
	if !IsSQLite(conn) {
		if errIdx := conn.Exec(`
			CREATE INDEX IF NOT EXISTS idx_rate_buckets_locked
			ON rate_buckets (locked_until)
			WHERE locked_until IS NOT NULL
		`).Error; errIdx != nil {
			return fmt.Errorf("db: create locked bucket index: %w", errIdx)
		}
	}
	return nil
}
