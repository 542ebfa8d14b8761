package models

import "time"

// PendingSpend records spend billed locally but not yet reflected in the
// externally reported meter balance. Rows are append-only; reconciliation
// against the upstream ledger happens outside this service.
type PendingSpend struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index:idx_pending_spend_user_recorded"` // Spending user ID.

	Amount float64 `gorm:"type:decimal(20,10);not null"` // Spend amount in pollen.

	RecordedAt time.Time `gorm:"not null;index:idx_pending_spend_user_recorded"` // Billing time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
