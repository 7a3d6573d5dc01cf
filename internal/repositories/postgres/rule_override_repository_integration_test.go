package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/placement/internal/entities"
	"github.com/asakaida/placement/internal/repositories"
)

func TestPostgresRuleOverrideRepository_Integration(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresRuleOverrideRepository(db)
	ctx := context.Background()

	first := &entities.RuleOverride{Name: "admin_api", CheckStr: "role:admin or role:operator", UpdatedBy: "ops"}
	require.NoError(t, repo.Upsert(ctx, first))
	assert.False(t, first.CreatedAt.IsZero())

	second := &entities.RuleOverride{Name: "admin_api", CheckStr: "role:admin", UpdatedBy: "ops2"}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix(), "created_at survives an update")

	got, err := repo.Get(ctx, "admin_api")
	require.NoError(t, err)
	assert.Equal(t, "role:admin", got.CheckStr)
	assert.Equal(t, "ops2", got.UpdatedBy)

	require.NoError(t, repo.Upsert(ctx, &entities.RuleOverride{Name: "placement:reshaper", CheckStr: "rule:admin_api"}))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"admin_api":          "role:admin",
		"placement:reshaper": "rule:admin_api",
	}, repositories.ToMap(all))

	require.NoError(t, repo.Delete(ctx, "admin_api"))
	_, err = repo.Get(ctx, "admin_api")
	assert.ErrorIs(t, err, repositories.ErrOverrideNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "admin_api"), repositories.ErrOverrideNotFound)
}
