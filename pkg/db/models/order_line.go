package models

import (
	dbtypes "github.com/angelmondragon/packfinderz-pos/pkg/db/types"
)

// OrderLine snapshots the item name and price at the time it was rung up, so later
// catalog edits never rewrite historical receipts.
type OrderLine struct {
	ID          string             `gorm:"column:id;primaryKey"`
	OrderID     string             `gorm:"column:order_id;not null"`
	ItemID      *string            `gorm:"column:item_id"`
	VariationID *string            `gorm:"column:variation_id"`
	Name        string             `gorm:"column:name;not null"`
	UnitPrice   float64            `gorm:"column:unit_price;not null"`
	Qty         int                `gorm:"column:qty;not null"`
	AddonIDs    dbtypes.StringList `gorm:"column:addon_ids;not null"`
	AddonNames  dbtypes.StringList `gorm:"column:addon_names;not null"`
	AddonPrices dbtypes.FloatList  `gorm:"column:addon_prices;not null"`
	LineTotal   float64            `gorm:"column:line_total;not null"`
	Notes       *string            `gorm:"column:notes"`
	CreatedAt   int64              `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt   int64              `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (OrderLine) TableName() string {
	return "order_lines"
}
