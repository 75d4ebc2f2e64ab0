// Package dbtest opens migrated in-memory stores for package tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/angelmondragon/packfinderz-pos/pkg/migrate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// MemoryPath returns a DSN for a private in-memory database.
func MemoryPath() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
}

// Open returns a client over a fresh in-memory database with every migration applied.
func Open(t testing.TB) *db.Client {
	t.Helper()
	ctx := context.Background()

	client, err := db.New(ctx, config.StoreConfig{Path: MemoryPath(), BusyTimeout: time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	require.NoError(t, migrate.Up(ctx, sqlDB))
	return client
}
