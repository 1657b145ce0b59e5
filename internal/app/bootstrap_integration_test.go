package app_test

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akbarharyadi/coding-test-3rd/internal/app"
	"github.com/akbarharyadi/coding-test-3rd/internal/testutils"
)

func TestBootstrap_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.GetAppConfig()
	_, b, _, _ := runtime.Caller(0)
	cfg.MigrationPath = fmt.Sprintf("file://%s/../../migrations", filepath.Dir(b))

	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.DB.Close()

	for _, table := range []string{"funds", "documents", "capital_calls", "distributions", "adjustments", "failed_jobs", "document_embeddings"} {
		var exists bool
		err = deps.DB.QueryRow("SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}
	assert.False(t, deps.SchemaRecreated)

	cfg.LocalEmbedDimension++
	again, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer again.DB.Close()
	assert.True(t, again.SchemaRecreated)

	assert.NoError(t, deps.NSQProducer.Ping())
}
