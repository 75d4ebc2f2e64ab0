package catalog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/angelmondragon/packfinderz-pos/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func decodeRow(t *testing.T, raw string) Row {
	t.Helper()
	var row Row
	require.NoError(t, json.Unmarshal([]byte(raw), &row))
	return row
}

func TestUpsertInsertsThenUpdatesPreservingLocalColumns(t *testing.T) {
	conn := dbtest.Open(t).DB()
	ctx := context.Background()
	a := NewApplier(nil)

	ok, err := a.Upsert(ctx, conn, "items", decodeRow(t, `{"id":"i1","name":"Tea","price":1.5,"active":true,"updated_at":"v1"}`))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, conn.Exec(`UPDATE items SET image_local_path = ? WHERE id = ?`, "/cache/i1.png", "i1").Error)

	_, err = a.Upsert(ctx, conn, "items", decodeRow(t, `{"id":"i1","name":"Green tea","price":1.75,"image_local_path":"/evil","unknown_field":1,"updated_at":"v2"}`))
	require.NoError(t, err)

	var item models.Item
	require.NoError(t, conn.First(&item, "id = ?", "i1").Error)
	assert.Equal(t, "Green tea", item.Name)
	assert.InDelta(t, 1.75, item.Price, 1e-9)
	require.NotNil(t, item.ImageLocalPath)
	assert.Equal(t, "/cache/i1.png", *item.ImageLocalPath)
	assert.True(t, item.Active)
	assert.Equal(t, "v2", *item.UpdatedAt)
}

func TestUpsertIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t).DB()
	ctx := context.Background()
	a := NewApplier(nil)
	row := decodeRow(t, `{"id":"c1","name":"Zone A","delivery_fee":2,"state_id":"s1"}`)

	for i := 0; i < 2; i++ {
		_, err := a.Upsert(ctx, conn, "cities", row)
		require.NoError(t, err)
	}
	var cities []models.City
	require.NoError(t, conn.Find(&cities).Error)
	require.Len(t, cities, 1)
	assert.InDelta(t, 2.0, cities[0].DeliveryFee, 1e-9)
}

func TestUpsertNumericIDsStoredAsText(t *testing.T) {
	conn := dbtest.Open(t).DB()
	ctx := context.Background()
	a := NewApplier(nil)

	_, err := a.Upsert(ctx, conn, "tables", decodeRow(t, `{"id":7,"name":"T7","seats":4}`))
	require.NoError(t, err)

	var table models.Table
	require.NoError(t, conn.First(&table, "id = ?", "7").Error)
	assert.Equal(t, "T7", table.Name)

	ok, err := a.Delete(ctx, conn, "tables", json.RawMessage(`7`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, conn.First(&models.Table{}, "id = ?", "7").Error, gorm.ErrRecordNotFound)
}

func TestUpsertRejectsMissingKey(t *testing.T) {
	conn := dbtest.Open(t).DB()
	_, err := NewApplier(nil).Upsert(context.Background(), conn, "promo_exclusions", Row{"promo_id": "p1"})
	assert.Error(t, err)
}

func TestCompositeDeleteMatchesAllKeys(t *testing.T) {
	conn := dbtest.Open(t).DB()
	ctx := context.Background()
	a := NewApplier(nil)

	for _, item := range []string{"i1", "i2"} {
		_, err := a.Upsert(ctx, conn, "promo_exclusions", Row{"promo_id": "p1", "item_id": item})
		require.NoError(t, err)
	}

	_, err := a.Delete(ctx, conn, "promo_exclusions", json.RawMessage(`"p1"`))
	assert.Error(t, err)

	ok, err := a.Delete(ctx, conn, "promo_exclusions", json.RawMessage(`{"promo_id":"p1","item_id":"i1"}`))
	require.NoError(t, err)
	assert.True(t, ok)

	var rest []models.PromoExclusion
	require.NoError(t, conn.Find(&rest).Error)
	require.Len(t, rest, 1)
	assert.Equal(t, "i2", rest[0].ItemID)
}

func TestApplyIgnoresUnknownTables(t *testing.T) {
	conn := dbtest.Open(t).DB()
	ctx := context.Background()
	a := NewApplier(nil)

	ok, err := a.Apply(ctx, conn, Change{Table: "loyalty_cards", Op: enums.ChangeOpUpsert, Data: Row{"id": "x"}})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.Apply(ctx, conn, Change{Table: "loyalty_cards", Op: "merge"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.Apply(ctx, conn, Change{Table: "settings", Op: enums.ChangeOpUpsert, Data: Row{"key": "tax_inclusive_rate", "value": "0.15"}})
	require.NoError(t, err)
	assert.True(t, ok)

	var setting models.Setting
	require.NoError(t, conn.First(&setting, "key = ?", "tax_inclusive_rate").Error)
	assert.Equal(t, "0.15", setting.Value)
}

func TestApplyDeleteFallsBackToData(t *testing.T) {
	conn := dbtest.Open(t).DB()
	ctx := context.Background()
	a := NewApplier(nil)
	_, err := a.Upsert(ctx, conn, "item_addon_groups", Row{"item_id": "i1", "group_id": "g1"})
	require.NoError(t, err)

	_, err = a.Apply(ctx, conn, Change{Table: "item_addon_groups", Op: enums.ChangeOpDelete, Data: Row{"item_id": "i1", "group_id": "g1"}})
	require.NoError(t, err)

	var count int64
	require.NoError(t, conn.Table("item_addon_groups").Count(&count).Error)
	assert.Zero(t, count)
}

func TestRegistryValidatesSpecs(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(TableSpec{Name: "x"}))
	assert.Error(t, r.Register(TableSpec{Name: "x", Keys: []string{"id"}, Columns: []string{"name"}}))
	require.NoError(t, r.Register(TableSpec{Name: "x", Keys: []string{"id"}, Columns: []string{"id"}}))
	assert.Equal(t, []string{"x"}, r.Tables())

	tables := DefaultRegistry().Tables()
	assert.Contains(t, tables, "promo_exclusions")
	assert.Contains(t, tables, "users")
	spec, ok := DefaultRegistry().Lookup("items")
	require.True(t, ok)
	assert.False(t, spec.hasColumn("image_local_path"))
}

func TestUpsertNullWritesColumnDefault(t *testing.T) {
	conn := dbtest.Open(t).DB()
	ctx := context.Background()
	a := NewApplier(nil)

	_, err := a.Upsert(ctx, conn, "promos", decodeRow(t, `{"id":"p1","code":"TEN","type":"percent","value":10,"min_total":25,"max_discount":5}`))
	require.NoError(t, err)
	_, err = a.Upsert(ctx, conn, "promos", decodeRow(t, `{"id":"p1","code":"TEN","type":"percent","value":10,"min_total":null,"max_discount":null}`))
	require.NoError(t, err)

	var promo models.Promo
	require.NoError(t, conn.First(&promo, "id = ?", "p1").Error)
	assert.Zero(t, promo.MinTotal)
	assert.Nil(t, promo.MaxDiscount)

	_, err = a.Upsert(ctx, conn, "cities", decodeRow(t, `{"id":"c1","name":"Zone A","delivery_fee":null}`))
	require.NoError(t, err)
	var city models.City
	require.NoError(t, conn.First(&city, "id = ?", "c1").Error)
	assert.Zero(t, city.DeliveryFee)
	assert.True(t, city.Active)

	_, err = a.Upsert(ctx, conn, "items", decodeRow(t, `{"id":"i1","name":null,"price":null,"sort_order":null,"active":null}`))
	require.NoError(t, err)
	var item models.Item
	require.NoError(t, conn.First(&item, "id = ?", "i1").Error)
	assert.Equal(t, "", item.Name)
	assert.Zero(t, item.SortOrder)
	assert.True(t, item.Active)
}

func TestRegistryRejectsDefaultsForUnknownColumns(t *testing.T) {
	r := NewRegistry()
	err := r.Register(TableSpec{Name: "x", Keys: []string{"id"}, Columns: []string{"id"}, Defaults: map[string]any{"name": ""}})
	assert.Error(t, err)
}
