package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "duck-semantic/internal/db"
	"duck-semantic/internal/domain"
	"duck-semantic/internal/testutil"
)

func setupSemanticTableRepo(t *testing.T) *SemanticTableRepo {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	return NewSemanticTableRepo(writeDB)
}

func TestSemanticTableRepo_CreateAndGet(t *testing.T) {
	repo := setupSemanticTableRepo(t)
	ctx := context.Background()

	orders := testutil.SalesTable("orders")
	created, err := repo.Create(ctx, &orders)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Empty(t, orders.ID, "input must not be mutated")

	got, err := repo.GetByName(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, orders.PhysicalName, got.PhysicalName)
	assert.Equal(t, orders.Description, got.Description)
	assert.Equal(t, orders.Columns, got.Columns)
	assert.Equal(t, orders.Relationships, got.Relationships)
}

func TestSemanticTableRepo_CreateDuplicate(t *testing.T) {
	repo := setupSemanticTableRepo(t)
	ctx := context.Background()

	regions := testutil.SalesTable("regions")
	_, err := repo.Create(ctx, &regions)
	require.NoError(t, err)

	_, err = repo.Create(ctx, &regions)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, err.Error(), `"regions" already exists`)
}

func TestSemanticTableRepo_CreateInvalid(t *testing.T) {
	repo := setupSemanticTableRepo(t)
	_, err := repo.Create(context.Background(), &domain.TableDefinition{Name: "broken"})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestSemanticTableRepo_SaveReplaces(t *testing.T) {
	repo := setupSemanticTableRepo(t)
	ctx := context.Background()

	customers := testutil.SalesTable("customers")
	first, err := repo.Save(ctx, &customers)
	require.NoError(t, err)

	customers.Description = "Customer master data"
	customers.Columns = customers.Columns[:2]
	customers.Relationships = nil
	second, err := repo.Save(ctx, &customers)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := repo.GetByName(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, "Customer master data", got.Description)
	require.Len(t, got.Columns, 2)
	assert.Equal(t, "name", got.Columns[1].Name)
	assert.Empty(t, got.Relationships)
}

func TestSemanticTableRepo_ListAndDelete(t *testing.T) {
	repo := setupSemanticTableRepo(t)
	ctx := context.Background()

	for _, def := range testutil.SalesSchema() {
		def := def
		_, err := repo.Create(ctx, &def)
		require.NoError(t, err)
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	var names []string
	for _, d := range all {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"customers", "order_items", "orders", "products", "regions", "shipments"}, names)
	assert.Equal(t, testutil.SalesTable("shipments").Columns, all[5].Columns)
	assert.Equal(t, testutil.SalesTable("orders").Relationships, all[2].Relationships)

	require.NoError(t, repo.Delete(ctx, "shipments"))
	_, err = repo.GetByName(ctx, "shipments")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)

	err = repo.Delete(ctx, "shipments")
	require.ErrorAs(t, err, &nf)

	all, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestGrainsRoundTrip(t *testing.T) {
	assert.Nil(t, splitGrains(""))
	grains := []domain.TimeGrain{domain.TimeGrainDay, domain.TimeGrainMonth}
	assert.Equal(t, "DAY,MONTH", joinGrains(grains))
	assert.Equal(t, grains, splitGrains("DAY,MONTH"))
}
