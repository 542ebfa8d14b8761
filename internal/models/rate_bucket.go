package models

import "time"

// RateBucket stores the durable token bucket state for one rate-limit identifier.
type RateBucket struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Identifier string `gorm:"type:text;not null;uniqueIndex"` // Composite API key + client IP key.

	Tokens       float64    `gorm:"type:decimal(20,10);not null;default:0"` // Current spendable pollen.
	LastRefillAt time.Time  `gorm:"not null"`                               // Last refill computation time.
	LockedUntil  *time.Time `gorm:"index"`                                  // Concurrency lock expiry, nil when unlocked.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
