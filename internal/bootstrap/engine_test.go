package bootstrap

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/remote"
	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `{
  "branch": {"id": "br-1", "name": "Main street"},
  "cursor": 42,
  "catalog": {
    "items": [
      {"id": "i1", "name": "Tea", "price": 1.5, "active": true, "updated_at": "2026-03-01T10:00:00Z"},
      {"id": "i2", "name": "Cake", "price": 3.25, "active": true}
    ],
    "cities": [{"id": "c1", "name": "Zone A", "delivery_fee": 2}],
    "promo_exclusions": [{"promo_id": "p1", "item_id": "i2"}],
    "tables": [{"id": "t1", "name": "Patio", "seats": 4}],
    "settings": [{"key": "tax_inclusive_rate", "value": "0.15"}],
    "loyalty_cards": [{"id": "x"}],
    "orders_seed": [
      {"id": "srv-1", "number": "P0001AAAA", "status": "completed", "order_type": "delivery",
       "customer_phone": "5551234", "grand_total": 7.5, "created_at": "2026-02-28T12:00:00Z"},
      {"id": "srv-2", "number": "P0001BBBB", "status": "completed", "order_type": "pickup",
       "grand_total": 3, "created_at": 1772280000000}
    ]
  }
}`

type fakeRemote struct {
	body  string
	err   error
	calls int
	last  remote.Request
}

func (f *fakeRemote) Do(_ context.Context, req remote.Request, out any) error {
	f.calls++
	f.last = req
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.body), out)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, client *db.Client, rem *fakeRemote) *Engine {
	t.Helper()
	e, err := NewEngine(EngineParams{
		Remote:    rem,
		Tx:        client,
		Meta:      meta.NewStore(client.DB()),
		SyncState: meta.NewSyncState(client.DB()),
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return e
}

func TestRunAppliesSnapshot(t *testing.T) {
	client := dbtest.Open(t)
	rem := &fakeRemote{body: payload}
	e := newEngine(t, client, rem)
	ctx := context.Background()

	snap, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Path, rem.last.Path)
	assert.Equal(t, "42", snap.Cursor)
	assert.Equal(t, 2, snap.Rows["items"])
	assert.Equal(t, 2, snap.Seeded)
	assert.Equal(t, []string{"loyalty_cards"}, snap.Skipped)

	cursor, _, err := meta.NewSyncState(client.DB()).Get(ctx, meta.KeyCatalogCursor)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor)
	branch, _, err := meta.NewStore(client.DB()).Get(ctx, meta.KeyBranchName)
	require.NoError(t, err)
	assert.Equal(t, "Main street", branch)

	var seeded models.Order
	require.NoError(t, client.DB().First(&seeded, "id = ?", "srv-1").Error)
	assert.True(t, seeded.IsSynced())
	assert.True(t, seeded.Locked)
	assert.Equal(t, enums.OrderTypeDelivery, seeded.OrderType)
	assert.Equal(t, time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC).UnixMilli(), seeded.CreatedAt)

	var other models.Order
	require.NoError(t, client.DB().First(&other, "id = ?", "srv-2").Error)
	assert.Equal(t, int64(1772280000000), other.CreatedAt)
}

func TestRunIsIdempotentAndKeepsLocalColumns(t *testing.T) {
	client := dbtest.Open(t)
	e := newEngine(t, client, &fakeRemote{body: payload})
	ctx := context.Background()

	_, err := e.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, client.DB().Exec(`UPDATE tables SET current_order_id = 'local-order' WHERE id = 't1'`).Error)
	require.NoError(t, client.DB().Exec(`UPDATE items SET image_local_path = '/cache/i1.png' WHERE id = 'i1'`).Error)

	snap, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Seeded)

	var items []models.Item
	require.NoError(t, client.DB().Order("id").Find(&items).Error)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].ImageLocalPath)
	assert.Equal(t, "/cache/i1.png", *items[0].ImageLocalPath)

	var table models.Table
	require.NoError(t, client.DB().First(&table, "id = ?", "t1").Error)
	require.NotNil(t, table.CurrentOrderID)
	assert.Equal(t, "local-order", *table.CurrentOrderID)

	var orders int64
	require.NoError(t, client.DB().Model(&models.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(2), orders)
}

func TestRunRollsBackOnBadRow(t *testing.T) {
	client := dbtest.Open(t)
	ctx := context.Background()
	require.NoError(t, meta.NewSyncState(client.DB()).Set(ctx, meta.KeyCatalogCursor, "7"))

	bad := `{"branch":{"id":"br-1"},"cursor":"99","catalog":{
	  "items":[{"id":"i1","name":"Tea"}],
	  "promo_exclusions":[{"promo_id":"p1"}]}}`
	e := newEngine(t, client, &fakeRemote{body: bad})

	_, err := e.Run(ctx)
	require.Error(t, err)

	var count int64
	require.NoError(t, client.DB().Model(&models.Item{}).Count(&count).Error)
	assert.Zero(t, count)
	cursor, _, err := meta.NewSyncState(client.DB()).Get(ctx, meta.KeyCatalogCursor)
	require.NoError(t, err)
	assert.Equal(t, "7", cursor)
}

func TestRunPropagatesRemoteErrors(t *testing.T) {
	client := dbtest.Open(t)
	e := newEngine(t, client, &fakeRemote{err: pkgerrors.New(pkgerrors.CodeAuthRevoked, "revoked")})

	_, err := e.Run(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAuthRevoked))

	_, ok, err := meta.NewSyncState(client.DB()).Get(context.Background(), meta.KeyLastBootstrapAt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunRequiresCatalog(t *testing.T) {
	client := dbtest.Open(t)
	e := newEngine(t, client, &fakeRemote{body: `{"branch":{"id":"b"}}`})
	_, err := e.Run(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProtocol))
}

func TestSeedClaimsNumberFromLocalOrder(t *testing.T) {
	client := dbtest.Open(t)
	ctx := context.Background()
	local := models.Order{ID: "local-1", Number: "P0001AAAA", Status: enums.OrderStatusOpen, CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, client.DB().Create(&local).Error)

	e := newEngine(t, client, &fakeRemote{body: payload})
	snap, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Relabeled)

	var relabeled models.Order
	require.NoError(t, client.DB().First(&relabeled, "id = ?", "local-1").Error)
	assert.Contains(t, relabeled.Number, "DUP-P0001AAAA-")
}
