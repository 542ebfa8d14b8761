// Package usage persists an audit trail of settled generations. Recording
// is best effort: a failed insert is logged and never blocks settlement.
package usage

import (
	"context"
	"time"

	"github.com/pollengate/pollengate/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Record describes one settled generation.
type Record struct {
	UserID        uint64
	APIKeyID      uint64
	Identifier    string
	MeterSourceID string
	EstimatedCost float64
	ActualCost    float64
	Failed        bool
	CompletedAt   time.Time
}

// GormRecorder persists usage records through GORM.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder constructs a GormRecorder.
func NewGormRecorder(db *gorm.DB) *GormRecorder { return &GormRecorder{db: db} }

// Handle inserts one usage row. The write uses its own timeout so a
// cancelled request context cannot drop the audit record.
func (r *GormRecorder) Handle(ctx context.Context, rec Record) {
	if r == nil || r.db == nil {
		return
	}

	dbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	completedAt := rec.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	row := models.UsageRecord{
		UserID:        rec.UserID,
		APIKeyID:      rec.APIKeyID,
		Identifier:    rec.Identifier,
		MeterSourceID: rec.MeterSourceID,
		EstimatedCost: rec.EstimatedCost,
		ActualCost:    rec.ActualCost,
		Failed:        rec.Failed,
		CompletedAt:   completedAt.UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	if errCreate := r.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Warn("usage recorder: failed to persist record")
	}
}
