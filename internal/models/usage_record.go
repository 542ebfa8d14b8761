package models

import "time"

// UsageRecord is the audit row for a settled generation: what was
// estimated at admission, what was billed at completion, and against
// which meter source.
type UsageRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index:idx_usage_records_user_completed"` // Billed user ID.

	APIKeyID uint64 `gorm:"not null;index"` // API key that made the request.

	Identifier string `gorm:"size:128;not null"` // Rate limit identifier.

	MeterSourceID string `gorm:"size:64"` // Meter source charged, empty when none.

	EstimatedCost float64 `gorm:"type:decimal(20,10);not null"` // Worst-case cost reserved at admission.

	ActualCost float64 `gorm:"type:decimal(20,10);not null"` // Cost billed at completion.

	Failed bool `gorm:"not null"` // Whether the generation failed.

	CompletedAt time.Time `gorm:"not null;index:idx_usage_records_user_completed"` // Settlement time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
