package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

func TestCategoryService_NavTreeCache(t *testing.T) {
	env := newTestEnv(t, "testdb_categories")
	ctx := context.Background()
	admin := env.admin(t, "admin")
	user := env.register(t, "notandi")

	cars, err := env.categories.Create(ctx, admin, &validation.CategoryInput{Section: "bilatorg", Slug: "Bilar", Name: "Bílar"})
	require.NoError(t, err)
	assert.Equal(t, "bilar", cars.Slug)

	tree, err := env.categories.NavTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 3)
	assert.Equal(t, models.SectionVehicles, tree[1].Section)
	require.Len(t, tree[1].Categories, 1)

	_, err = env.categories.Create(ctx, admin, &validation.CategoryInput{
		Section: "bilatorg", Slug: "jeppar", Name: "Jeppar", ParentID: cars.ID.String(),
	})
	require.NoError(t, err)
	tree, err = env.categories.NavTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree[1].Categories[0].Children, 1, "mutation invalidates the cached tree")

	_, err = env.categories.Create(ctx, user, &validation.CategoryInput{Section: "bilatorg", Slug: "vorubilar", Name: "Vörubílar"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.categories.Create(ctx, admin, &validation.CategoryInput{Section: "bilatorg", Slug: "bilar", Name: "Aftur"})
	errs, ok := validation.AsErrors(err)
	require.True(t, ok)
	assert.Contains(t, errs, "slug")

	_, err = env.categories.Create(ctx, admin, &validation.CategoryInput{
		Section: "solutorg", Slug: "bilahlutir", Name: "Bílahlutir", ParentID: cars.ID.String(),
	})
	errs, ok = validation.AsErrors(err)
	require.True(t, ok)
	assert.Contains(t, errs, "parent_id", "parent must be in the same section")

	err = env.categories.Delete(ctx, admin, cars.ID)
	errs, ok = validation.AsErrors(err)
	require.True(t, ok)
	assert.Contains(t, errs, "category")

	renamed, err := env.categories.Update(ctx, admin, cars.ID, &validation.CategoryInput{Section: "bilatorg", Slug: "bilar", Name: "Fólksbílar", Position: 2})
	require.NoError(t, err)
	assert.Equal(t, "Fólksbílar", renamed.Name)
}
