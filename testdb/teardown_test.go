package testdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b87/testdb-kit/database"
	"github.com/b87/testdb-kit/internal/pgtest"
	"github.com/b87/testdb-kit/testdb"
)

func TestListAndPrune(t *testing.T) {
	ctx := context.Background()
	config := pgtest.Require(t, server)
	config.Prefix = "prune_"

	first, err := testdb.New(ctx, config)
	require.NoError(t, err)
	second, err := testdb.New(ctx, config)
	require.NoError(t, err)

	other := testdb.NewT(t, pgtest.Require(t, server))

	names, err := testdb.List(ctx, config)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.Name(), second.Name()}, names)

	dropped, err := testdb.Prune(ctx, config)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.Name(), second.Name()}, dropped)

	names, err = testdb.List(ctx, config)
	require.NoError(t, err)
	assert.Empty(t, names)

	assert.True(t, databaseExists(t, config, other.Name()))
}

func TestDropMissingDatabase(t *testing.T) {
	config := pgtest.Require(t, server)

	err := testdb.Drop(context.Background(), config, testdb.GenerateName("gone_"))
	require.Error(t, err)
	assert.Equal(t, database.ErrCodeDropDatabaseFailed, database.GetErrorCode(err))
}
