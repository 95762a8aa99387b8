package repository

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/hirelens/hirelens/internal/plan"
	usagedomain "github.com/hirelens/hirelens/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupRepoTest(t *testing.T) (*gorm.DB, usagedomain.Repository, snowflake.ID) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&usagedomain.UsageCounter{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return db, Provide(), node.Generate()
}

func TestEnsureRowIsIdempotent(t *testing.T) {
	db, repo, orgID := setupRepoTest(t)
	ctx := context.Background()

	require.NoError(t, repo.EnsureRow(ctx, db, orgID, plan.FeatureShortlist, "2026-03-01"))
	require.NoError(t, repo.EnsureRow(ctx, db, orgID, plan.FeatureShortlist, "2026-03-01"))

	row, err := repo.Find(ctx, db, orgID, plan.FeatureShortlist, "2026-03-01")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(0), row.Used)
}

func TestIncrementIfBelowStopsAtLimit(t *testing.T) {
	db, repo, orgID := setupRepoTest(t)
	ctx := context.Background()
	day := "2026-03-01"

	require.NoError(t, repo.EnsureRow(ctx, db, orgID, plan.FeatureShortlist, day))

	for i := 0; i < 2; i++ {
		ok, err := repo.IncrementIfBelow(ctx, db, orgID, plan.FeatureShortlist, day, 2)
		require.NoError(t, err)
		assert.True(t, ok, "increment %d should land under the limit", i)
	}

	ok, err := repo.IncrementIfBelow(ctx, db, orgID, plan.FeatureShortlist, day, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	row, err := repo.Find(ctx, db, orgID, plan.FeatureShortlist, day)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(2), row.Used)
}

func TestIncrementIfBelowMissingRow(t *testing.T) {
	db, repo, orgID := setupRepoTest(t)

	ok, err := repo.IncrementIfBelow(context.Background(), db, orgID, plan.FeatureShortlist, "2026-03-01", 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteBeforeUsesLexicalDayOrder(t *testing.T) {
	db, repo, orgID := setupRepoTest(t)
	ctx := context.Background()

	for _, day := range []string{"2026-02-27", "2026-02-28", "2026-03-01"} {
		require.NoError(t, repo.EnsureRow(ctx, db, orgID, plan.FeatureShortlist, day))
	}

	removed, err := repo.DeleteBefore(ctx, db, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	rows, err := repo.ListByOrgAndDay(ctx, db, orgID, "2026-03-01")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
