// Package database provides test database clients backed by a shared
// PostgreSQL testcontainer with per-test schema isolation.
package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aetherfm/station/pkg/database"
	"github.com/aetherfm/station/test/util"
)

// NewTestClient creates a test database client on a fresh schema and runs the
// embedded migrations.
// In CI (when CI_DATABASE_URL is set): connects to an external PostgreSQL
// service container. In local dev: spins up a shared testcontainer.
// Schema and connections are cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	connStr := util.CreateTestSchema(t)

	client, err := database.NewClient(ctx, database.Config{
		URL:      connStr,
		Database: "test",
		MaxConns: 10,
		MinConns: 2,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}
