package migrate_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-pos/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, migrate.Validate())
}

func TestValidateFSRejectsMissingDown(t *testing.T) {
	fsys := fstest.MapFS{
		"m/20260101000000_broken.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
	}
	err := migrate.ValidateFS(fsys, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goose Down")
}

func TestUpCreatesSchemaAndRecordsVersion(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	require.NoError(t, migrate.Up(ctx, sqlDB))
	// re-running is a no-op
	require.NoError(t, migrate.Up(ctx, sqlDB))

	version, err := migrate.Version(ctx, sqlDB)
	require.NoError(t, err)
	latest, err := migrate.Latest()
	require.NoError(t, err)
	assert.Equal(t, latest, version)

	for _, table := range []string{"meta", "sync_state", "orders", "order_lines", "items", "promos", "pos_action_log"} {
		assert.True(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}
}
