package models

// MetaEntry is a row of the meta key/value table.
type MetaEntry struct {
	Key       string `gorm:"column:key;primaryKey"`
	Value     string `gorm:"column:value;not null"`
	UpdatedAt int64  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (MetaEntry) TableName() string {
	return "meta"
}

// SyncStateEntry is a row of the sync_state key/value table.
type SyncStateEntry struct {
	Key       string `gorm:"column:key;primaryKey"`
	Value     string `gorm:"column:value;not null"`
	UpdatedAt int64  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (SyncStateEntry) TableName() string {
	return "sync_state"
}
