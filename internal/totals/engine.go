package totals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettingTaxInclusiveRate is the settings key holding the inclusive tax rate.
const SettingTaxInclusiveRate = "tax_inclusive_rate"

// Engine recomputes and persists order totals.
type Engine struct {
	scale int32
	now   func() time.Time
}

type EngineParams struct {
	Scale int32
	Now   func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Scale < 0 || params.Scale > 6 {
		return nil, fmt.Errorf("money scale %d out of range", params.Scale)
	}
	e := &Engine{scale: params.Scale, now: params.Now}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Scale is the number of decimal places kept on money values.
func (e *Engine) Scale() int32 {
	return e.scale
}

// Round applies the engine's money scale.
func (e *Engine) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(e.scale)
}

// Recalc derives the totals of orderID from the rows visible through tx and
// writes them back with a fresh updated_at.
func (e *Engine) Recalc(ctx context.Context, tx *gorm.DB, orderID string) (Totals, error) {
	in, err := e.Load(ctx, tx, orderID)
	if err != nil {
		return Totals{}, err
	}
	out := Compute(in)

	updates := map[string]any{
		"subtotal":        out.Subtotal.InexactFloat64(),
		"discount_amount": out.DiscountAmount.InexactFloat64(),
		"discount_total":  out.DiscountTotal.InexactFloat64(),
		"delivery_fee":    out.DeliveryFee.InexactFloat64(),
		"tax_total":       out.TaxTotal.InexactFloat64(),
		"grand_total":     out.GrandTotal.InexactFloat64(),
		"updated_at":      in.Now.UnixMilli(),
	}
	if err := tx.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Updates(updates).Error; err != nil {
		return Totals{}, fmt.Errorf("persist totals: %w", err)
	}
	return out, nil
}

// Load gathers the Compute input for orderID without writing anything.
func (e *Engine) Load(ctx context.Context, tx *gorm.DB, orderID string) (Input, error) {
	db := tx.WithContext(ctx)

	var order models.Order
	if err := db.Where("id = ?", orderID).Take(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Input{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").WithDetails(map[string]any{"order_id": orderID})
		}
		return Input{}, fmt.Errorf("load order: %w", err)
	}

	var lines []models.OrderLine
	if err := db.Where("order_id = ?", orderID).Order("created_at ASC, id ASC").Find(&lines).Error; err != nil {
		return Input{}, fmt.Errorf("load lines: %w", err)
	}

	in := Input{
		Lines:           make([]Line, 0, len(lines)),
		ManualAmount:    decimal.NewFromFloat(order.ManualDiscountAmount),
		ManualPercent:   decimal.NewFromFloat(order.ManualDiscountPercent),
		OrderType:       order.OrderType,
		VoidDeliveryFee: order.VoidDeliveryFee,
		Now:             e.now(),
		Scale:           e.scale,
	}
	for _, l := range lines {
		itemID := ""
		if l.ItemID != nil {
			itemID = *l.ItemID
		}
		in.Lines = append(in.Lines, Line{ItemID: itemID, LineTotal: decimal.NewFromFloat(l.LineTotal)})
	}

	if order.Promocode != nil && strings.TrimSpace(*order.Promocode) != "" {
		promo, err := e.loadPromo(ctx, db, *order.Promocode)
		if err != nil {
			return Input{}, err
		}
		in.Promo = promo
	}

	if order.OrderType == enums.OrderTypeDelivery && order.CityID != nil && *order.CityID != "" {
		var city models.City
		err := db.Where("id = ?", *order.CityID).Take(&city).Error
		switch {
		case err == nil:
			fee := decimal.NewFromFloat(city.DeliveryFee)
			in.CityFee = &fee
		case errors.Is(err, gorm.ErrRecordNotFound):
			// dangling city reference: no fee
		default:
			return Input{}, fmt.Errorf("load city: %w", err)
		}
	}

	rate, err := taxRate(db)
	if err != nil {
		return Input{}, err
	}
	in.TaxRate = rate
	return in, nil
}

func (e *Engine) loadPromo(ctx context.Context, db *gorm.DB, code string) (*Promo, error) {
	var row models.Promo
	err := db.Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		Order("active DESC, updated_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load promo: %w", err)
	}

	promo := &Promo{
		Code:     row.Code,
		Type:     normalizePromoType(string(row.Type)),
		Value:    decimal.NewFromFloat(row.Value),
		MinTotal: decimal.NewFromFloat(row.MinTotal),
		Active:   row.Active,
		Excluded: map[string]bool{},
	}
	if row.MaxDiscount != nil && *row.MaxDiscount > 0 {
		capped := decimal.NewFromFloat(*row.MaxDiscount)
		promo.MaxDiscount = &capped
	}
	if row.StartAt != nil {
		promo.StartAt = *row.StartAt
	}
	if row.EndAt != nil {
		promo.EndAt = *row.EndAt
	}

	var excluded []string
	if err := db.Model(&models.PromoExclusion{}).Where("promo_id = ?", row.ID).Pluck("item_id", &excluded).Error; err != nil {
		return nil, fmt.Errorf("load promo exclusions: %w", err)
	}
	for _, id := range excluded {
		promo.Excluded[id] = true
	}
	return promo, nil
}

func normalizePromoType(raw string) enums.PromoType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "percent", "percentage", "pct":
		return enums.PromoTypePercent
	case "flat", "fixed", "amount":
		return enums.PromoTypeFlat
	}
	return enums.PromoType(raw)
}

func taxRate(db *gorm.DB) (decimal.Decimal, error) {
	var setting models.Setting
	err := db.Where("key = ?", SettingTaxInclusiveRate).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load tax rate: %w", err)
	}
	rate, perr := decimal.NewFromString(strings.TrimSpace(setting.Value))
	if perr != nil || rate.IsNegative() {
		return decimal.Zero, nil
	}
	return rate, nil
}
