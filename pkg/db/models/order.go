package models

import (
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
)

// Order is the till's record of a sale. Totals are owned by the totals engine and
// rewritten on every mutation.
type Order struct {
	ID                    string            `gorm:"column:id;primaryKey"`
	Number                string            `gorm:"column:number;not null"`
	Status                enums.OrderStatus `gorm:"column:status;not null;default:'draft'"`
	OrderType             enums.OrderType   `gorm:"column:order_type;not null;default:'pickup'"`
	CustomerName          *string           `gorm:"column:customer_name"`
	CustomerPhone         *string           `gorm:"column:customer_phone"`
	StateID               *string           `gorm:"column:state_id"`
	CityID                *string           `gorm:"column:city_id"`
	BlockID               *string           `gorm:"column:block_id"`
	AddressLine           *string           `gorm:"column:address_line"`
	AddressNotes          *string           `gorm:"column:address_notes"`
	TableID               *string           `gorm:"column:table_id"`
	PaymentMethodID       *string           `gorm:"column:payment_method_id"`
	PaymentRef            *string           `gorm:"column:payment_ref"`
	Subtotal              float64           `gorm:"column:subtotal;not null;default:0"`
	DiscountTotal         float64           `gorm:"column:discount_total;not null;default:0"`
	DiscountAmount        float64           `gorm:"column:discount_amount;not null;default:0"`
	ManualDiscountAmount  float64           `gorm:"column:manual_discount_amount;not null;default:0"`
	ManualDiscountPercent float64           `gorm:"column:manual_discount_percent;not null;default:0"`
	DeliveryFee           float64           `gorm:"column:delivery_fee;not null;default:0"`
	VoidDeliveryFee       bool              `gorm:"column:void_delivery_fee;not null;default:false"`
	TaxTotal              float64           `gorm:"column:tax_total;not null;default:0"`
	GrandTotal            float64           `gorm:"column:grand_total;not null;default:0"`
	Promocode             *string           `gorm:"column:promocode"`
	Locked                bool              `gorm:"column:locked;not null;default:false"`
	Notes                 *string           `gorm:"column:notes"`
	CreatedByUserID       *string           `gorm:"column:created_by_user_id"`
	CompletedByUserID     *string           `gorm:"column:completed_by_user_id"`
	PrintedByUserID       *string           `gorm:"column:printed_by_user_id"`
	CreatedAt             int64             `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt             int64             `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	CompletedAt           *int64            `gorm:"column:completed_at"`
	SyncedAt              *int64            `gorm:"column:synced_at"`
	Lines                 []OrderLine       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string {
	return "orders"
}

// IsSynced reports whether the server acknowledged the order.
func (o Order) IsSynced() bool {
	return o.SyncedAt != nil && *o.SyncedAt > 0
}
