// Package totals derives an order's money fields from its lines and configuration.
// Compute is pure; Engine loads the inputs inside a transaction and persists the result.
package totals

import (
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/shopspring/decimal"
)

// DefaultScale keeps three decimal places (minor unit of 1000).
const DefaultScale int32 = 3

type Line struct {
	ItemID    string
	LineTotal decimal.Decimal
}

// Promo is a promo row resolved for the order's code. A nil or non-positive
// MaxDiscount means the discount is not capped.
type Promo struct {
	Code        string
	Type        enums.PromoType
	Value       decimal.Decimal
	MinTotal    decimal.Decimal
	MaxDiscount *decimal.Decimal
	StartAt     string
	EndAt       string
	Active      bool
	Excluded    map[string]bool
}

type Input struct {
	Lines           []Line
	Promo           *Promo
	ManualAmount    decimal.Decimal
	ManualPercent   decimal.Decimal
	OrderType       enums.OrderType
	VoidDeliveryFee bool
	// CityFee is nil when the order has no city or the city is not in the catalog.
	CityFee *decimal.Decimal
	// TaxRate is the inclusive tax rate (0.15 for 15%); it only feeds TaxTotal.
	TaxRate decimal.Decimal
	Now     time.Time
	Scale   int32
}

type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	DiscountTotal  decimal.Decimal
	DeliveryFee    decimal.Decimal
	TaxTotal       decimal.Decimal
	GrandTotal     decimal.Decimal
	PromoApplied   bool
}

// Compute runs the totals pipeline: subtotal, promo, manual discount fallback,
// delivery fee and grand total.
func Compute(in Input) Totals {
	scale := in.Scale
	if scale < 0 {
		scale = DefaultScale
	}
	round := func(d decimal.Decimal) decimal.Decimal { return d.Round(scale) }

	subtotal := decimal.Zero
	for _, l := range in.Lines {
		subtotal = subtotal.Add(l.LineTotal)
	}
	subtotal = round(subtotal)

	var out Totals
	out.Subtotal = subtotal

	discount, applied := promoDiscount(in.Promo, in.Lines, subtotal, in.Now)
	if !applied {
		discount = manualDiscount(in.ManualAmount, in.ManualPercent, subtotal)
	}
	discount = round(clamp(discount, subtotal))
	out.DiscountAmount = discount
	out.DiscountTotal = discount
	out.PromoApplied = applied

	if in.OrderType == enums.OrderTypeDelivery && !in.VoidDeliveryFee && in.CityFee != nil && in.CityFee.IsPositive() {
		out.DeliveryFee = round(*in.CityFee)
	} else {
		out.DeliveryFee = decimal.Zero
	}

	out.GrandTotal = round(subtotal.Sub(discount).Add(out.DeliveryFee))

	if in.TaxRate.IsPositive() {
		// tax is already inside the prices; report the included share only
		divisor := decimal.NewFromInt(1).Add(in.TaxRate)
		out.TaxTotal = round(out.GrandTotal.Mul(in.TaxRate).Div(divisor))
	} else {
		out.TaxTotal = decimal.Zero
	}
	return out
}

// LineTotal returns unit price times quantity at the given scale.
func LineTotal(unitPrice decimal.Decimal, qty int, scale int32) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(qty))).Round(scale)
}

func promoDiscount(p *Promo, lines []Line, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, bool) {
	if p == nil || !p.Active || !inWindow(p.StartAt, p.EndAt, now) {
		return decimal.Zero, false
	}
	if subtotal.LessThan(p.MinTotal) {
		return decimal.Zero, false
	}

	var discount decimal.Decimal
	switch p.Type {
	case enums.PromoTypeFlat:
		discount = p.Value
	case enums.PromoTypePercent:
		base := subtotal
		for _, l := range lines {
			if l.ItemID != "" && p.Excluded[l.ItemID] {
				base = base.Sub(l.LineTotal)
			}
		}
		discount = base.Mul(p.Value).Div(decimal.NewFromInt(100))
	default:
		return decimal.Zero, false
	}

	if p.MaxDiscount != nil && p.MaxDiscount.IsPositive() && discount.GreaterThan(*p.MaxDiscount) {
		discount = *p.MaxDiscount
	}
	return clamp(discount, subtotal), true
}

func manualDiscount(amount, percent, subtotal decimal.Decimal) decimal.Decimal {
	if amount.IsPositive() {
		return amount
	}
	if percent.IsPositive() {
		return subtotal.Mul(percent).Div(decimal.NewFromInt(100))
	}
	return decimal.Zero
}

func clamp(d, ceiling decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(ceiling) {
		return ceiling
	}
	return d
}

// inWindow checks [start, end). Missing bounds are open; unreadable bounds make the promo inactive.
func inWindow(start, end string, now time.Time) bool {
	if s := strings.TrimSpace(start); s != "" {
		t, ok := parseBound(s)
		if !ok || now.Before(t) {
			return false
		}
	}
	if e := strings.TrimSpace(end); e != "" {
		t, ok := parseBound(e)
		if !ok || !now.Before(t) {
			return false
		}
	}
	return true
}

var boundLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseBound(v string) (time.Time, bool) {
	for _, layout := range boundLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
