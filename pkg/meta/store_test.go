package meta_test

import (
	"context"
	"testing"

	"github.com/angelmondragon/packfinderz-pos/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func stores(t *testing.T) map[string]meta.Store {
	client := dbtest.Open(t)
	return map[string]meta.Store{
		"gorm":   meta.NewStore(client.DB()),
		"memory": meta.NewMemory(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, meta.KeyDeviceID)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, meta.KeyDeviceID, "dev-1"))
			require.NoError(t, store.Set(ctx, meta.KeyDeviceID, "dev-2"))
			v, ok, err := store.Get(ctx, meta.KeyDeviceID)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "dev-2", v)

			require.NoError(t, store.Delete(ctx, meta.KeyDeviceID, "missing"))
			_, ok, err = store.Get(ctx, meta.KeyDeviceID)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSyncStateIsSeparateTable(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	metaStore := meta.NewStore(client.DB())
	syncState := meta.NewSyncState(client.DB())

	require.NoError(t, syncState.Set(ctx, meta.KeyCatalogCursor, "c-1"))
	_, ok, err := metaStore.Get(ctx, meta.KeyCatalogCursor)
	require.NoError(t, err)
	assert.False(t, ok)

	var count int64
	require.NoError(t, client.DB().Table("sync_state").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStoreWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	store := meta.NewSyncState(client.DB())
	require.NoError(t, store.Set(ctx, meta.KeyCatalogCursor, "before"))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := store.WithTx(tx).Set(ctx, meta.KeyCatalogCursor, "after"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	v, _, err := store.Get(ctx, meta.KeyCatalogCursor)
	require.NoError(t, err)
	assert.Equal(t, "before", v)
}

func TestIdentityHelpers(t *testing.T) {
	ctx := context.Background()
	store := meta.NewMemory()

	id, err := meta.LoadIdentity(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, enums.PairingStateUnpaired, id.State)
	assert.False(t, id.Complete())

	require.NoError(t, meta.SaveIdentity(ctx, store, meta.Identity{
		DeviceID: "dev-1",
		BranchID: "br-1",
		BaseURL:  "http://pos.local/api/",
		State:    enums.PairingStatePaired,
	}))
	id, err = meta.LoadIdentity(ctx, store)
	require.NoError(t, err)
	assert.True(t, id.Complete())
	assert.Equal(t, "http://pos.local/api", id.BaseURL)

	require.NoError(t, store.Delete(ctx, meta.IdentityKeys...))
	id, err = meta.LoadIdentity(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, meta.Identity{State: enums.PairingStateUnpaired}, id)
}

func TestOperatingMode(t *testing.T) {
	ctx := context.Background()
	store := meta.NewMemory()

	mode, err := meta.OperatingMode(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, enums.OperatingModeOnline, mode)

	require.NoError(t, meta.SetOperatingMode(ctx, store, enums.OperatingModeOffline))
	mode, err = meta.OperatingMode(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, enums.OperatingModeOffline, mode)

	require.Error(t, meta.SetOperatingMode(ctx, store, "sideways"))
}
