package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pollengate/pollengate/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists bucket state one row per identifier.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a GormStore.
func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

// Load reads the bucket row for identifier.
func (s *GormStore) Load(ctx context.Context, identifier string) (BucketState, bool, error) {
	if s == nil || s.db == nil {
		return BucketState{}, false, fmt.Errorf("gorm bucket store: not initialized")
	}
	var row models.RateBucket
	errFind := s.db.WithContext(ctx).
		Where("identifier = ?", identifier).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return BucketState{}, false, nil
		}
		return BucketState{}, false, fmt.Errorf("gorm bucket store: load: %w", errFind)
	}
	return BucketState{
		Tokens:       row.Tokens,
		LastRefillAt: row.LastRefillAt,
		LockedUntil:  row.LockedUntil,
	}, true, nil
}

// Save upserts the bucket row for identifier.
func (s *GormStore) Save(ctx context.Context, identifier string, state BucketState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm bucket store: not initialized")
	}
	now := time.Now().UTC()
	row := models.RateBucket{
		Identifier:   identifier,
		Tokens:       state.Tokens,
		LastRefillAt: state.LastRefillAt,
		LockedUntil:  state.LockedUntil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identifier"}},
		DoUpdates: clause.AssignmentColumns([]string{"tokens", "last_refill_at", "locked_until", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("gorm bucket store: save: %w", errUpsert)
	}
	return nil
}

var _ BucketStore = (*GormStore)(nil)
