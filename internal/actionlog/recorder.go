// Package actionlog writes the append-only pos_action_log audit trail.
// Recording never fails the caller: errors are logged and dropped here.
package actionlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"gorm.io/gorm"
)

const (
	ActionOrderStart          = "order.start"
	ActionOrderAddLine        = "order.add_line"
	ActionOrderSetQty         = "order.set_qty"
	ActionOrderRemoveLine     = "order.remove_line"
	ActionOrderApplyPromo     = "order.apply_promo"
	ActionOrderManualDiscount = "order.manual_discount"
	ActionOrderVoidDelivery   = "order.void_delivery_fee"
	ActionOrderCustomer       = "order.set_customer"
	ActionOrderAddress        = "order.set_address"
	ActionOrderType           = "order.set_type"
	ActionOrderSetTable       = "order.set_table"
	ActionOrderAdvance        = "order.advance"
	ActionOrderComplete       = "order.complete"
	ActionOrderCancel         = "order.cancel"
	ActionOrderPrinted        = "order.printed"
	ActionOrderRelabel        = "order.number_relabel"
	ActionDevicePaired        = "device.paired"
	ActionDeviceUnpaired      = "device.unpaired"
	ActionDeviceRevoked       = "device.revoked"
	ActionCatalogBootstrap    = "catalog.bootstrap"
)

type Entry struct {
	Action   string
	OrderID  string
	UserID   string
	Metadata map[string]any
}

// Recorder appends audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

type recorder struct {
	db   *gorm.DB
	logg *logger.Logger
	now  func() time.Time
}

func NewRecorder(db *gorm.DB, logg *logger.Logger) Recorder {
	return &recorder{db: db, logg: logg, now: time.Now}
}

func (r *recorder) Record(ctx context.Context, entry Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logg.Warn(r.logg.WithField(ctx, "action", entry.Action), "action log panicked")
		}
	}()

	metadata := "{}"
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err == nil {
			metadata = string(raw)
		}
	}

	row := models.PosActionLog{
		Action:    entry.Action,
		OrderID:   optional(entry.OrderID),
		UserID:    optional(entry.UserID),
		Metadata:  metadata,
		CreatedAt: r.now().UnixMilli(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		fields := map[string]any{"action": entry.Action, "error": err.Error()}
		r.logg.Warn(r.logg.WithFields(ctx, fields), "action log write dropped")
	}
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// ForOrder lists the entries recorded against orderID, oldest first.
func ForOrder(ctx context.Context, db *gorm.DB, orderID string) ([]models.PosActionLog, error) {
	var rows []models.PosActionLog
	err := db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&rows).Error
	return rows, err
}
