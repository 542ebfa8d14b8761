package usage

import (
	"context"
	"testing"
	"time"

	"github.com/pollengate/pollengate/internal/db"
	"github.com/pollengate/pollengate/internal/models"
)

func openTestRecorder(t *testing.T) *GormRecorder {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewGormRecorder(conn)
}

func TestHandlePersistsRecord(t *testing.T) {
	recorder := openTestRecorder(t)
	completedAt := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	recorder.Handle(context.Background(), Record{
		UserID:        7,
		APIKeyID:      3,
		Identifier:    "3:ip:10.0.0.1",
		MeterSourceID: "src-1",
		EstimatedCost: 0.01,
		ActualCost:    0.0042,
		CompletedAt:   completedAt,
	})

	var row models.UsageRecord
	if errTake := recorder.db.Take(&row).Error; errTake != nil {
		t.Fatalf("take usage record: %v", errTake)
	}
	if row.UserID != 7 || row.APIKeyID != 3 {
		t.Fatalf("unexpected identity: user=%d key=%d", row.UserID, row.APIKeyID)
	}
	if row.ActualCost != 0.0042 {
		t.Fatalf("unexpected actual cost: %v", row.ActualCost)
	}
	if row.Failed {
		t.Fatalf("expected successful record")
	}
	if !row.CompletedAt.Equal(completedAt) {
		t.Fatalf("unexpected completed at: %v", row.CompletedAt)
	}
}

func TestHandleFailedGeneration(t *testing.T) {
	recorder := openTestRecorder(t)

	recorder.Handle(context.Background(), Record{
		UserID:     1,
		APIKeyID:   1,
		Identifier: "1:ip:10.0.0.2",
		Failed:     true,
	})

	var row models.UsageRecord
	if errTake := recorder.db.Take(&row).Error; errTake != nil {
		t.Fatalf("take usage record: %v", errTake)
	}
	if !row.Failed {
		t.Fatalf("expected failed record")
	}
	if row.CompletedAt.IsZero() {
		t.Fatalf("expected completed at to be defaulted")
	}
}

func TestHandleNilRecorder(t *testing.T) {
	var recorder *GormRecorder
	recorder.Handle(context.Background(), Record{UserID: 1})
}
