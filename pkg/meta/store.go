// Package meta holds the key/value tables that carry device identity, pairing
// state, operating mode and the sync cursor. Components receive a Store through
// their constructors; nothing reads these values from package globals.
package meta

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KeyDeviceID      = "device_id"
	KeyBranchID      = "branch_id"
	KeyBranchName    = "branch_name"
	KeyBaseURL       = "base_url"
	KeyDeviceName    = "device_name"
	KeyPairingState  = "pairing_state"
	KeyOperatingMode = "operating_mode"
	KeySessionUserID = "session_user_id"

	KeyCatalogCursor     = "catalog_cursor"
	KeyLastPullAt        = "last_pull_at"
	KeyLastPushAt        = "last_push_at"
	KeyLastSyncError     = "last_sync_error"
	KeyLastSyncSuccessAt = "last_sync_success_at"
	KeyLastBootstrapAt   = "last_bootstrap_at"
)

// Store is a string key/value map backed by one table.
type Store interface {
	WithTx(tx *gorm.DB) Store
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type gormStore struct {
	db    *gorm.DB
	table string
	now   func() time.Time
}

// NewStore returns the device metadata store backed by the meta table.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db, table: models.MetaEntry{}.TableName(), now: time.Now}
}

// NewSyncState returns the store backed by the sync_state table.
func NewSyncState(db *gorm.DB) Store {
	return &gormStore{db: db, table: models.SyncStateEntry{}.TableName(), now: time.Now}
}

func (s *gormStore) WithTx(tx *gorm.DB) Store {
	if tx == nil {
		return s
	}
	return &gormStore{db: tx, table: s.table, now: s.now}
}

func (s *gormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry models.MetaEntry
	err := s.db.WithContext(ctx).Table(s.table).Where("key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (s *gormStore) Set(ctx context.Context, key, value string) error {
	entry := models.MetaEntry{Key: key, Value: value, UpdatedAt: s.now().UnixMilli()}
	return s.db.WithContext(ctx).Table(s.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (s *gormStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Table(s.table).Where("key IN ?", keys).Delete(&models.MetaEntry{}).Error
}
