package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/remote"
	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	dbtypes "github.com/angelmondragon/packfinderz-pos/pkg/db/types"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	req  remote.Request
	body []byte
}

// scriptedRemote replies from a queue and records every request body.
type scriptedRemote struct {
	replies []string
	err     error
	calls   []call
	before  func()
}

func (r *scriptedRemote) Do(_ context.Context, req remote.Request, out any) error {
	body, _ := json.Marshal(req.Body)
	r.calls = append(r.calls, call{req: req, body: body})
	if r.before != nil {
		r.before()
	}
	if r.err != nil {
		return r.err
	}
	if len(r.replies) == 0 {
		return errors.New("no scripted reply")
	}
	reply := r.replies[0]
	r.replies = r.replies[1:]
	return json.Unmarshal([]byte(reply), out)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, client *db.Client, rem *scriptedRemote) *Service {
	t.Helper()
	ctx := context.Background()
	metaStore := meta.NewStore(client.DB())
	require.NoError(t, meta.SaveIdentity(ctx, metaStore, meta.Identity{
		DeviceID: "dev-1", BranchID: "br-1", BaseURL: "http://pos.test", State: enums.PairingStatePaired,
	}))
	svc, err := NewService(ServiceParams{
		DB:        client.DB(),
		Tx:        client,
		Remote:    rem,
		Meta:      metaStore,
		SyncState: meta.NewSyncState(client.DB()),
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc
}

func ptr[T any](v T) *T { return &v }

func insertCompleted(t *testing.T, client *db.Client, id string, updatedAt int64) {
	t.Helper()
	completed := updatedAt
	order := models.Order{
		ID:              id,
		Number:          "N-" + id,
		Status:          enums.OrderStatusCompleted,
		OrderType:       enums.OrderTypeDelivery,
		CustomerName:    ptr("Dana"),
		CustomerPhone:   ptr("5551234"),
		CityID:          ptr("c1"),
		AddressLine:     ptr("12 Main"),
		PaymentMethodID: ptr("cash"),
		Subtotal:        6.25,
		DiscountAmount:  0.625,
		DiscountTotal:   0.625,
		DeliveryFee:     2,
		GrandTotal:      7.625,
		CreatedAt:       updatedAt - 1000,
		UpdatedAt:       updatedAt,
		CompletedAt:     &completed,
	}
	require.NoError(t, client.DB().Omit("Lines").Create(&order).Error)
	line := models.OrderLine{
		ID:          id + "-l1",
		OrderID:     id,
		ItemID:      ptr("i1"),
		Name:        "Tea",
		UnitPrice:   1.5,
		Qty:         2,
		AddonIDs:    dbtypes.StringList{"a1"},
		AddonNames:  dbtypes.StringList{"Milk"},
		AddonPrices: dbtypes.FloatList{0.25},
		LineTotal:   3,
		CreatedAt:   updatedAt - 1000,
		UpdatedAt:   updatedAt - 1000,
	}
	require.NoError(t, client.DB().Create(&line).Error)
}

func syncedAt(t *testing.T, client *db.Client, id string) *int64 {
	t.Helper()
	var order models.Order
	require.NoError(t, client.DB().First(&order, "id = ?", id).Error)
	return order.SyncedAt
}

func TestPullAppliesChangesAndCursor(t *testing.T) {
	client := dbtest.Open(t)
	rem := &scriptedRemote{replies: []string{
		`{"changes":[
		  {"table":"items","op":"upsert","data":{"id":"i1","name":"Tea","price":1.5}},
		  {"table":"promo_exclusions","op":"upsert","data":{"promo_id":"p1","item_id":"i1"}},
		  {"table":"kiosk_banners","op":"upsert","data":{"id":"b1"}}
		],"cursor":"c2","has_more":true}`,
		`{"changes":[
		  {"table":"promo_exclusions","op":"delete","pk":{"promo_id":"p1","item_id":"i1"}},
		  {"table":"items","op":"upsert","data":{"id":"i1","name":"Green tea"}}
		],"cursor":"c3"}`,
	}}
	svc := newService(t, client, rem)
	ctx := context.Background()
	require.NoError(t, meta.NewSyncState(client.DB()).Set(ctx, meta.KeyCatalogCursor, "c1"))

	result, err := svc.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, PullResult{Applied: 4, Ignored: 1, Pages: 2, Cursor: "c3"}, result)

	require.Len(t, rem.calls, 2)
	assert.JSONEq(t, `{"cursor":"c1"}`, string(rem.calls[0].body))
	assert.JSONEq(t, `{"cursor":"c2"}`, string(rem.calls[1].body))
	assert.Equal(t, PullPath, rem.calls[0].req.Path)

	var item models.Item
	require.NoError(t, client.DB().First(&item, "id = ?", "i1").Error)
	assert.Equal(t, "Green tea", item.Name)
	var exclusions int64
	require.NoError(t, client.DB().Model(&models.PromoExclusion{}).Count(&exclusions).Error)
	assert.Zero(t, exclusions)

	cursor, _, err := meta.NewSyncState(client.DB()).Get(ctx, meta.KeyCatalogCursor)
	require.NoError(t, err)
	assert.Equal(t, "c3", cursor)
}

func TestPullCommitsPageWithNullOptionalFields(t *testing.T) {
	client := dbtest.Open(t)
	rem := &scriptedRemote{replies: []string{
		`{"changes":[
		  {"table":"promos","op":"upsert","data":{"id":"p1","code":"OPEN","type":"flat","value":2,"min_total":null,"max_discount":null}},
		  {"table":"cities","op":"upsert","data":{"id":"c1","name":"Zone A","delivery_fee":null}},
		  {"table":"items","op":"upsert","data":{"id":"i1","name":"Tea","price":1.5,"sort_order":null}}
		],"cursor":"c2"}`,
	}}
	svc := newService(t, client, rem)
	ctx := context.Background()

	result, err := svc.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Applied)
	assert.Equal(t, "c2", result.Cursor)

	cursor, _, err := meta.NewSyncState(client.DB()).Get(ctx, meta.KeyCatalogCursor)
	require.NoError(t, err)
	assert.Equal(t, "c2", cursor)

	var promo models.Promo
	require.NoError(t, client.DB().First(&promo, "id = ?", "p1").Error)
	assert.Zero(t, promo.MinTotal)
}

func TestPullFailureKeepsCursorAndHidesBatch(t *testing.T) {
	client := dbtest.Open(t)
	rem := &scriptedRemote{replies: []string{
		`{"changes":[
		  {"table":"items","op":"upsert","data":{"id":"i1","name":"Tea"}},
		  {"table":"item_addon_groups","op":"delete","pk":"i1"}
		],"cursor":"c2"}`,
	}}
	svc := newService(t, client, rem)
	ctx := context.Background()
	require.NoError(t, meta.NewSyncState(client.DB()).Set(ctx, meta.KeyCatalogCursor, "c1"))

	_, err := svc.Pull(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProtocol))

	var items int64
	require.NoError(t, client.DB().Model(&models.Item{}).Count(&items).Error)
	assert.Zero(t, items)
	cursor, _, err := meta.NewSyncState(client.DB()).Get(ctx, meta.KeyCatalogCursor)
	require.NoError(t, err)
	assert.Equal(t, "c1", cursor)
}

func TestPullNetworkErrorLeavesStateAlone(t *testing.T) {
	client := dbtest.Open(t)
	svc := newService(t, client, &scriptedRemote{err: pkgerrors.New(pkgerrors.CodeTransient, "offline")})

	_, err := svc.Pull(context.Background())
	assert.True(t, pkgerrors.IsRetryable(err))
	_, ok, err := meta.NewSyncState(client.DB()).Get(context.Background(), meta.KeyLastPullAt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlushPushesEnvelopeAndMarksSynced(t *testing.T) {
	client := dbtest.Open(t)
	rem := &scriptedRemote{replies: []string{`{"ok":true}`}}
	svc := newService(t, client, rem)
	ctx := context.Background()
	insertCompleted(t, client, "o1", 1000)
	insertCompleted(t, client, "o2", 2000)
	open := models.Order{ID: "o3", Number: "N-o3", Status: enums.OrderStatusOpen, CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, client.DB().Create(&open).Error)

	result, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pushed)
	assert.Zero(t, result.Stale)

	require.Len(t, rem.calls, 1)
	c := rem.calls[0]
	assert.Equal(t, PushPath, c.req.Path)
	assert.Equal(t, result.ClientMsgID, c.req.IdempotencyKey)

	var sent PushRequest
	require.NoError(t, json.Unmarshal(c.body, &sent))
	assert.Equal(t, result.ClientMsgID, sent.Envelope.ClientMsgID)
	assert.Equal(t, "dev-1", sent.Envelope.DeviceID)
	require.Len(t, sent.Orders, 2)
	first := sent.Orders[0]
	assert.Equal(t, "o1", first.ID)
	require.NotNil(t, first.Customer)
	assert.Equal(t, "5551234", first.Customer.Phone)
	require.NotNil(t, first.Address)
	assert.Equal(t, "c1", first.Address.CityID)
	assert.InDelta(t, 7.625, first.Totals.GrandTotal, 1e-9)
	require.Len(t, first.Lines, 1)
	assert.Equal(t, []AddonRef{{ID: "a1", Name: "Milk", Price: 0.25}}, first.Lines[0].Addons)
	require.Len(t, sent.Payments, 2)
	assert.Equal(t, "cash", sent.Payments[0].MethodID)

	assert.Equal(t, fixedNow.UnixMilli(), *syncedAt(t, client, "o1"))
	assert.Nil(t, syncedAt(t, client, "o3"))

	again, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, again.Pushed)
	assert.Len(t, rem.calls, 1)
}

func TestFlushFailureKeepsOrdersEligibleWithSameToken(t *testing.T) {
	client := dbtest.Open(t)
	rem := &scriptedRemote{err: pkgerrors.New(pkgerrors.CodeTransient, "dropped")}
	svc := newService(t, client, rem)
	ctx := context.Background()
	insertCompleted(t, client, "o1", 1000)

	first, err := svc.Flush(ctx, 10)
	require.Error(t, err)
	assert.Nil(t, syncedAt(t, client, "o1"))

	rem.err = nil
	rem.replies = []string{`{"ok":true,"duplicate":true}`}
	second, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, first.ClientMsgID, second.ClientMsgID)
	assert.True(t, second.Duplicate)
	assert.NotNil(t, syncedAt(t, client, "o1"))
}

func TestFlushSkipsOrdersEditedInFlight(t *testing.T) {
	client := dbtest.Open(t)
	rem := &scriptedRemote{replies: []string{`{"ok":true}`}}
	svc := newService(t, client, rem)
	ctx := context.Background()
	insertCompleted(t, client, "o1", 1000)
	insertCompleted(t, client, "o2", 2000)
	rem.before = func() {
		require.NoError(t, client.DB().Exec(`UPDATE orders SET updated_at = 5000 WHERE id = 'o2'`).Error)
	}

	result, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pushed)
	assert.Equal(t, 1, result.Stale)
	assert.NotNil(t, syncedAt(t, client, "o1"))
	assert.Nil(t, syncedAt(t, client, "o2"))

	rem.before = nil
	rem.replies = []string{`{"ok":true}`}
	next, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.NotEqual(t, result.ClientMsgID, next.ClientMsgID)
	assert.Equal(t, 1, next.Pushed)
}

func TestFlushHonoursAcceptedSubsetAndMonotonicStamp(t *testing.T) {
	client := dbtest.Open(t)
	rem := &scriptedRemote{replies: []string{`{"ok":true,"accepted":["o2"]}`, `{"ok":true}`}}
	svc := newService(t, client, rem)
	ctx := context.Background()
	insertCompleted(t, client, "o1", 1000)
	insertCompleted(t, client, "o2", 2000)

	result, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pushed)
	assert.Nil(t, syncedAt(t, client, "o1"))
	firstStamp := *syncedAt(t, client, "o2")

	_, err = svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Greater(t, *syncedAt(t, client, "o1"), firstStamp)
}

func TestFlushPushesCancellationOfSyncedOrder(t *testing.T) {
	client := dbtest.Open(t)
	rem := &scriptedRemote{replies: []string{`{"ok":true}`, `{"ok":true}`}}
	svc := newService(t, client, rem)
	ctx := context.Background()
	insertCompleted(t, client, "o1", 1000)
	neverCompleted := models.Order{ID: "o2", Number: "N-o2", Status: enums.OrderStatusCancelled, CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, client.DB().Create(&neverCompleted).Error)

	first, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Pushed)
	require.NotNil(t, syncedAt(t, client, "o1"))

	require.NoError(t, client.DB().Exec(
		`UPDATE orders SET status = ?, synced_at = NULL, updated_at = 3000 WHERE id = 'o1'`, enums.OrderStatusCancelled).Error)
	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Outbox)

	second, err := svc.Flush(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Pushed)
	require.Len(t, rem.calls, 2)
	var sent PushRequest
	require.NoError(t, json.Unmarshal(rem.calls[1].body, &sent))
	require.Len(t, sent.Orders, 1)
	assert.Equal(t, "o1", sent.Orders[0].ID)
	assert.Equal(t, string(enums.OrderStatusCancelled), sent.Orders[0].Status)
	assert.NotNil(t, syncedAt(t, client, "o1"))
	assert.Nil(t, syncedAt(t, client, "o2"))
}

func TestFlushRespectsLimit(t *testing.T) {
	client := dbtest.Open(t)
	rem := &scriptedRemote{replies: []string{`{"ok":true}`}}
	svc := newService(t, client, rem)
	insertCompleted(t, client, "o1", 1000)
	insertCompleted(t, client, "o2", 2000)

	result, err := svc.Flush(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pushed)
	assert.NotNil(t, syncedAt(t, client, "o1"))
	assert.Nil(t, syncedAt(t, client, "o2"))
}

func TestClientMsgIDIsDeterministic(t *testing.T) {
	a := []models.Order{{ID: "o1", UpdatedAt: 1}, {ID: "o2", UpdatedAt: 2}}
	b := []models.Order{{ID: "o2", UpdatedAt: 2}, {ID: "o1", UpdatedAt: 1}}
	assert.Equal(t, ClientMsgID("dev", a), ClientMsgID("dev", b))
	assert.NotEqual(t, ClientMsgID("dev", a), ClientMsgID("other", a))
	assert.NotEqual(t, ClientMsgID("dev", a), ClientMsgID("dev", []models.Order{{ID: "o1", UpdatedAt: 9}, {ID: "o2", UpdatedAt: 2}}))

	completed := []models.Order{{ID: "o1", UpdatedAt: 1, Status: enums.OrderStatusCompleted}}
	cancelled := []models.Order{{ID: "o1", UpdatedAt: 1, Status: enums.OrderStatusCancelled}}
	assert.NotEqual(t, ClientMsgID("dev", completed), ClientMsgID("dev", cancelled))
}

func TestStatusReportsOutboxAndCursor(t *testing.T) {
	client := dbtest.Open(t)
	svc := newService(t, client, &scriptedRemote{})
	ctx := context.Background()
	insertCompleted(t, client, "o1", 1000)
	state := meta.NewSyncState(client.DB())
	require.NoError(t, state.Set(ctx, meta.KeyCatalogCursor, "c9"))
	require.NoError(t, state.Set(ctx, meta.KeyLastPullAt, "1772366400000"))

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Paired)
	assert.Equal(t, enums.OperatingModeOnline, st.Mode)
	assert.Equal(t, "c9", st.Cursor)
	assert.Equal(t, int64(1), st.Outbox)
	require.NotNil(t, st.LastPullAt)
	assert.Equal(t, int64(1772366400000), st.LastPullAt.UnixMilli())
	assert.Nil(t, st.LastPushAt)
}
