package totals

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(EngineParams{Scale: 3, Now: func() time.Time { return now }})
	require.NoError(t, err)
	return e
}

func seedOrder(t *testing.T, conn *gorm.DB, order models.Order, lines ...models.OrderLine) {
	t.Helper()
	require.NoError(t, conn.Create(&order).Error)
	for _, l := range lines {
		l.OrderID = order.ID
		require.NoError(t, conn.Create(&l).Error)
	}
}

func scenarioOrderLines() []models.OrderLine {
	return []models.OrderLine{
		{ID: "l1", ItemID: strPtr("item-a"), Name: "Tea", UnitPrice: 1.5, Qty: 2, LineTotal: 3.0, CreatedAt: 1},
		{ID: "l2", ItemID: strPtr("item-b"), Name: "Cake", UnitPrice: 3.25, Qty: 1, LineTotal: 3.25, CreatedAt: 2},
	}
}

func reload(t *testing.T, conn *gorm.DB, id string) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, conn.Where("id = ?", id).Take(&o).Error)
	return o
}

func TestRecalcPersistsPromoScenario(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	ctx := context.Background()

	maxDiscount := 1.0
	require.NoError(t, conn.Create(&models.Promo{ID: "p1", Code: "TEN", Type: enums.PromoTypePercent, Value: 10, MaxDiscount: &maxDiscount, Active: true}).Error)
	seedOrder(t, conn, models.Order{
		ID: "o1", Number: "P1", Status: enums.OrderStatusOpen, OrderType: enums.OrderTypePickup,
		Promocode: strPtr("ten"), ManualDiscountAmount: 2, CreatedAt: 1, UpdatedAt: 1,
	}, scenarioOrderLines()...)

	engine := newEngine(t)
	var out Totals
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = engine.Recalc(ctx, tx, "o1")
		return err
	}))
	assert.True(t, out.PromoApplied)

	order := reload(t, conn, "o1")
	assert.InDelta(t, 6.25, order.Subtotal, 0.0005)
	assert.InDelta(t, 0.625, order.DiscountAmount, 0.0005)
	assert.InDelta(t, 0.625, order.DiscountTotal, 0.0005)
	assert.InDelta(t, 5.625, order.GrandTotal, 0.0005)
	assert.Equal(t, now.UnixMilli(), order.UpdatedAt)

	again, err := engine.Recalc(ctx, conn, "o1")
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestRecalcZeroMaxDiscountMeansNoCap(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	ctx := context.Background()

	zero := 0.0
	require.NoError(t, conn.Create(&models.Promo{ID: "p1", Code: "HALF", Type: enums.PromoTypePercent, Value: 50, MaxDiscount: &zero, Active: true}).Error)
	seedOrder(t, conn, models.Order{
		ID: "o1", Number: "P1", Status: enums.OrderStatusOpen, OrderType: enums.OrderTypePickup,
		Promocode: strPtr("half"), CreatedAt: 1, UpdatedAt: 1,
	}, scenarioOrderLines()...)

	out, err := newEngine(t).Recalc(ctx, conn, "o1")
	require.NoError(t, err)
	assert.True(t, out.PromoApplied)
	assertMoney(t, "3.125", out.DiscountAmount)
	assertMoney(t, "3.125", out.GrandTotal)
}

func TestRecalcDeliveryFeeImmutableOnceVoided(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	ctx := context.Background()
	engine := newEngine(t)

	require.NoError(t, conn.Create(&models.City{ID: "c1", Name: "Center", DeliveryFee: 2, Active: true}).Error)
	seedOrder(t, conn, models.Order{
		ID: "o1", Number: "P1", Status: enums.OrderStatusOpen, OrderType: enums.OrderTypeDelivery,
		CityID: strPtr("c1"), CreatedAt: 1, UpdatedAt: 1,
	}, scenarioOrderLines()...)

	_, err := engine.Recalc(ctx, conn, "o1")
	require.NoError(t, err)
	order := reload(t, conn, "o1")
	assert.InDelta(t, 2.0, order.DeliveryFee, 0.0005)
	assert.InDelta(t, 8.25, order.GrandTotal, 0.0005)

	require.NoError(t, conn.Model(&models.Order{}).Where("id = ?", "o1").
		Updates(map[string]any{"void_delivery_fee": true, "status": enums.OrderStatusCompleted}).Error)
	_, err = engine.Recalc(ctx, conn, "o1")
	require.NoError(t, err)

	require.NoError(t, conn.Model(&models.City{}).Where("id = ?", "c1").Update("delivery_fee", 5.0).Error)
	_, err = engine.Recalc(ctx, conn, "o1")
	require.NoError(t, err)

	order = reload(t, conn, "o1")
	assert.Zero(t, order.DeliveryFee)
	assert.InDelta(t, 6.25, order.GrandTotal, 0.0005)
}

func TestRecalcToleratesDanglingCity(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	seedOrder(t, conn, models.Order{
		ID: "o1", Number: "P1", Status: enums.OrderStatusOpen, OrderType: enums.OrderTypeDelivery,
		CityID: strPtr("missing"), CreatedAt: 1, UpdatedAt: 1,
	}, scenarioOrderLines()...)

	out, err := newEngine(t).Recalc(context.Background(), conn, "o1")
	require.NoError(t, err)
	assert.True(t, out.DeliveryFee.IsZero())
}

func TestRecalcUsesExclusionsAndTaxSetting(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	require.NoError(t, conn.Create(&models.Promo{ID: "p1", Code: "TEN", Type: "percentage", Value: 10, Active: true}).Error)
	require.NoError(t, conn.Create(&models.PromoExclusion{PromoID: "p1", ItemID: "item-b"}).Error)
	require.NoError(t, conn.Create(&models.Setting{Key: SettingTaxInclusiveRate, Value: "0.15"}).Error)
	seedOrder(t, conn, models.Order{
		ID: "o1", Number: "P1", Status: enums.OrderStatusOpen, OrderType: enums.OrderTypePickup,
		Promocode: strPtr("TEN"), CreatedAt: 1, UpdatedAt: 1,
	}, scenarioOrderLines()...)

	out, err := newEngine(t).Recalc(context.Background(), conn, "o1")
	require.NoError(t, err)
	assertMoney(t, "0.3", out.DiscountAmount)
	assertMoney(t, "5.950", out.GrandTotal)
	assertMoney(t, "0.776", out.TaxTotal)
}

func TestRecalcMissingOrder(t *testing.T) {
	client := dbtest.Open(t)
	_, err := newEngine(t).Recalc(context.Background(), client.DB(), "nope")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestNewEngineRejectsScale(t *testing.T) {
	_, err := NewEngine(EngineParams{Scale: 9})
	require.Error(t, err)
}
