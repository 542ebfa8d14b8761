package settings

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pollengate/pollengate/internal/models"
	"gorm.io/gorm"
)

var (
	dbConfigMu     sync.RWMutex
	dbConfigValues map[string]json.RawMessage
)

// DBConfigValue returns the raw JSON value stored for key, if any.
func DBConfigValue(key string) (json.RawMessage, bool) {
	dbConfigMu.RLock()
	defer dbConfigMu.RUnlock()
	raw, ok := dbConfigValues[key]
	return raw, ok
}

// ReplaceDBConfig swaps the settings snapshot wholesale.
func ReplaceDBConfig(values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		next[k] = cp
	}
	dbConfigMu.Lock()
	dbConfigValues = next
	dbConfigMu.Unlock()
}

// RefreshFromDB loads all settings rows into the in-process snapshot.
func RefreshFromDB(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return nil
	}
	var rows []models.Setting
	if errFind := conn.WithContext(ctx).Find(&rows).Error; errFind != nil {
		return errFind
	}
	values := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		values[row.Key] = json.RawMessage(row.Value)
	}
	ReplaceDBConfig(values)
	return nil
}
