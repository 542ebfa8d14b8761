// Package ledger persists spend that has been billed locally but is not yet
// visible in the externally reported meter balances.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/pollengate/pollengate/internal/models"
	"gorm.io/gorm"
)

// Store appends and sums pending spend rows via GORM.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store.
func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// Append records amount pollen of billed-but-unsynced spend for userID.
// Non-positive amounts are ignored.
func (s *Store) Append(ctx context.Context, userID uint64, amount float64, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("pending spend: store not initialized")
	}
	if userID == 0 {
		return fmt.Errorf("pending spend: missing user id")
	}
	if amount <= 0 {
		return nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	row := models.PendingSpend{
		UserID:     userID,
		Amount:     amount,
		RecordedAt: at.UTC(),
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("pending spend: append: %w", errCreate)
	}
	return nil
}

// Sum returns the total pending spend recorded for userID since the given
// time. A zero since returns the all-time total.
func (s *Store) Sum(ctx context.Context, userID uint64, since time.Time) (float64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("pending spend: store not initialized")
	}
	if userID == 0 {
		return 0, nil
	}
	q := s.db.WithContext(ctx).
		Model(&models.PendingSpend{}).
		Where("user_id = ?", userID)
	if !since.IsZero() {
		q = q.Where("recorded_at >= ?", since.UTC())
	}
	var total float64
	if errSum := q.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error; errSum != nil {
		return 0, fmt.Errorf("pending spend: sum: %w", errSum)
	}
	return total, nil
}
