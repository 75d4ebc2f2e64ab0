package models

// PosActionLog is an append-only audit row.
type PosActionLog struct {
	ID        int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Action    string  `gorm:"column:action;not null"`
	OrderID   *string `gorm:"column:order_id"`
	UserID    *string `gorm:"column:user_id"`
	Metadata  string  `gorm:"column:metadata;not null"`
	CreatedAt int64   `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (PosActionLog) TableName() string {
	return "pos_action_log"
}
