package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/numbering"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"gorm.io/gorm"
)

// OrdersSeedKey is the catalog entry holding recent server orders.
const OrdersSeedKey = "orders_seed"

// millis accepts unix milliseconds or an RFC3339 timestamp.
type millis int64

func (m *millis) UnmarshalJSON(raw []byte) error {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*m = millis(n)
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			*m = millis(t.UnixMilli())
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

type seedOrder struct {
	ID            string  `json:"id"`
	Number        string  `json:"number"`
	Status        string  `json:"status"`
	OrderType     string  `json:"order_type"`
	CustomerName  *string `json:"customer_name"`
	CustomerPhone *string `json:"customer_phone"`
	StateID       *string `json:"state_id"`
	CityID        *string `json:"city_id"`
	BlockID       *string `json:"block_id"`
	AddressLine   *string `json:"address_line"`
	AddressNotes  *string `json:"address_notes"`
	Subtotal      float64 `json:"subtotal"`
	Discount      float64 `json:"discount_amount"`
	DeliveryFee   float64 `json:"delivery_fee"`
	GrandTotal    float64 `json:"grand_total"`
	CreatedAt     millis  `json:"created_at"`
	CompletedAt   millis  `json:"completed_at"`
}

// seedOrders inserts server orders that are not yet local. Local rows win on
// id; a seeded number claims its value from any local holder.
func seedOrders(ctx context.Context, tx *gorm.DB, raw json.RawMessage, limit int, now int64) (int, []numbering.Relabel, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil, nil
	}
	var rows []seedOrder
	if err := json.Unmarshal(raw, &rows); err != nil {
		return 0, nil, fmt.Errorf("decode %s: %w", OrdersSeedKey, err)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	seeded := 0
	var relabels []numbering.Relabel
	for _, row := range rows {
		if row.ID == "" || row.Number == "" {
			continue
		}
		var count int64
		if err := tx.WithContext(ctx).Model(&models.Order{}).Where("id = ?", row.ID).Count(&count).Error; err != nil {
			return seeded, relabels, err
		}
		if count > 0 {
			continue
		}
		moved, err := numbering.Claim(ctx, tx, row.ID, row.Number)
		if err != nil {
			return seeded, relabels, err
		}
		relabels = append(relabels, moved...)

		order := row.toModel(now)
		if err := tx.WithContext(ctx).Omit("Lines").Create(&order).Error; err != nil {
			return seeded, relabels, fmt.Errorf("seed order %s: %w", row.ID, err)
		}
		seeded++
	}
	return seeded, relabels, nil
}

func (s seedOrder) toModel(now int64) models.Order {
	status, err := enums.ParseOrderStatus(s.Status)
	if err != nil {
		status = enums.OrderStatusCompleted
	}
	orderType, err := enums.ParseOrderType(s.OrderType)
	if err != nil {
		orderType = enums.OrderTypePickup
	}
	created := int64(s.CreatedAt)
	if created == 0 {
		created = now
	}
	synced := now
	order := models.Order{
		ID:             s.ID,
		Number:         s.Number,
		Status:         status,
		OrderType:      orderType,
		CustomerName:   s.CustomerName,
		CustomerPhone:  s.CustomerPhone,
		StateID:        s.StateID,
		CityID:         s.CityID,
		BlockID:        s.BlockID,
		AddressLine:    s.AddressLine,
		AddressNotes:   s.AddressNotes,
		Subtotal:       s.Subtotal,
		DiscountAmount: s.Discount,
		DiscountTotal:  s.Discount,
		DeliveryFee:    s.DeliveryFee,
		GrandTotal:     s.GrandTotal,
		Locked:         true,
		CreatedAt:      created,
		UpdatedAt:      created,
		SyncedAt:       &synced,
	}
	if s.CompletedAt > 0 {
		completed := int64(s.CompletedAt)
		order.CompletedAt = &completed
	}
	return order
}
