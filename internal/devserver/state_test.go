package devserver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-pos/internal/catalog"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
)

func newTestState(t *testing.T) *state {
	t.Helper()
	seed, err := DefaultSeed()
	require.NoError(t, err)
	st, err := newState(seed, catalog.DefaultRegistry())
	require.NoError(t, err)
	return st
}

func TestChangesSincePages(t *testing.T) {
	st := newTestState(t)
	for _, id := range []string{"a", "b", "c"} {
		_, err := st.publish(catalog.Change{Table: "tables", Op: enums.ChangeOpUpsert, Data: catalog.Row{"id": id, "name": id}})
		require.NoError(t, err)
	}

	changes, cursor, more, err := st.changesSince("", 2)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
	assert.Equal(t, "2", cursor)
	assert.True(t, more)

	changes, cursor, more, err = st.changesSince(cursor, 2)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
	assert.Equal(t, "3", cursor)
	assert.False(t, more)

	changes, cursor, more, err = st.changesSince(cursor, 2)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, "3", cursor)
	assert.False(t, more)

	_, _, _, err = st.changesSince("abc", 2)
	assert.Error(t, err)
}

func TestPublishDeleteUsesCompositeKey(t *testing.T) {
	st := newTestState(t)
	require.Len(t, st.rows["promo_exclusions"], 1)

	_, err := st.publish(catalog.Change{
		Table: "promo_exclusions",
		Op:    enums.ChangeOpDelete,
		Data:  catalog.Row{"promo_id": "promo-welcome", "item_id": "item-cake"},
	})
	require.NoError(t, err)
	assert.Empty(t, st.rows["promo_exclusions"])

	changes, _, _, err := st.changesSince("", 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	var pk map[string]string
	require.NoError(t, json.Unmarshal(changes[0].Key, &pk))
	assert.Equal(t, map[string]string{"promo_id": "promo-welcome", "item_id": "item-cake"}, pk)
}

func TestPublishRejectsMissingKey(t *testing.T) {
	st := newTestState(t)
	_, err := st.publish(catalog.Change{Table: "item_addon_groups", Op: enums.ChangeOpUpsert, Data: catalog.Row{"item_id": "x"}})
	assert.Error(t, err)
	_, err = st.publish(catalog.Change{Table: "items", Op: "merge", Data: catalog.Row{"id": "x"}})
	assert.Error(t, err)
	assert.Zero(t, st.seq)
}

func TestSnapshotIncludesEveryTable(t *testing.T) {
	st := newTestState(t)
	snap, cursor, err := st.snapshot("br-main", 10)
	require.NoError(t, err)
	assert.Equal(t, "0", cursor)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(snap["items"], &items))
	assert.Len(t, items, 3)
	assert.JSONEq(t, `[]`, string(snap["orders_seed"]))
}
