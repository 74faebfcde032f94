package semantic

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "duck-semantic/internal/db"
	"duck-semantic/internal/db/repository"
	"duck-semantic/internal/declarative"
	"duck-semantic/internal/domain"
	"duck-semantic/internal/metrics"
	"duck-semantic/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func salesRepo() *testutil.MockSemanticTableRepo {
	return &testutil.MockSemanticTableRepo{
		ListFn: func(_ context.Context) ([]domain.TableDefinition, error) {
			return testutil.SalesSchema(), nil
		},
	}
}

func setupSemanticService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(salesRepo(), quietLogger(), Options{})
	require.NoError(t, svc.LoadFromMetastore(context.Background()))
	return svc
}

func statusAmount() *domain.QueryRequest {
	return &domain.QueryRequest{
		Table:      "orders",
		Dimensions: []domain.DimensionSelection{{Path: "status"}},
		Metrics:    []string{"amount"},
	}
}

const statusAmountSQL = "SELECT orders.status AS status, SUM(orders.amount) AS amount FROM sales.orders AS orders GROUP BY orders.status"

func TestService_CompileRequiresGraph(t *testing.T) {
	svc := NewService(nil, quietLogger(), Options{})
	_, err := svc.Compile(context.Background(), statusAmount())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no metadata graph is loaded")

	err = svc.LoadFromMetastore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository is not configured")
}

func TestService_LoadFromMetastore(t *testing.T) {
	ctx := context.Background()

	t.Run("compiles against stored tables", func(t *testing.T) {
		svc := setupSemanticService(t)
		before := promtest.ToFloat64(metrics.CompilationsTotal.WithLabelValues(metrics.OutcomeSuccess, ""))

		q, err := svc.Compile(ctx, statusAmount())
		require.NoError(t, err)
		assert.Equal(t, statusAmountSQL, q.SQL)

		after := promtest.ToFloat64(metrics.CompilationsTotal.WithLabelValues(metrics.OutcomeSuccess, ""))
		assert.Equal(t, before+1, after)
		assert.Equal(t, float64(6), promtest.ToFloat64(metrics.GraphTables))
	})

	t.Run("empty metastore", func(t *testing.T) {
		repo := &testutil.MockSemanticTableRepo{
			ListFn: func(_ context.Context) ([]domain.TableDefinition, error) { return nil, nil },
		}
		err := NewService(repo, quietLogger(), Options{}).LoadFromMetastore(ctx)
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("repository failure", func(t *testing.T) {
		repo := &testutil.MockSemanticTableRepo{
			ListFn: func(_ context.Context) ([]domain.TableDefinition, error) { return nil, errors.New("disk I/O error") },
		}
		err := NewService(repo, quietLogger(), Options{}).LoadFromMetastore(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list semantic tables: disk I/O error")
	})
}

func TestService_LoadFromDir(t *testing.T) {
	svc := NewService(nil, quietLogger(), Options{})
	require.NoError(t, svc.LoadFromDir("../../declarative/testdata/sales", declarative.LoadOptions{}))

	q, err := svc.Compile(context.Background(), statusAmount())
	require.NoError(t, err)
	assert.Equal(t, statusAmountSQL, q.SQL)

	err = svc.LoadFromDir("../../declarative/testdata/cyclic", declarative.LoadOptions{})
	var cyc *domain.CyclicDefinitionError
	require.ErrorAs(t, err, &cyc)
}

func TestService_FailedBindKeepsActiveGraph(t *testing.T) {
	svc := setupSemanticService(t)

	broken := testutil.SalesSchema()[:1] // orders without its relationship targets
	err := svc.Bind(broken, SourceInline)
	var pr *domain.PathResolutionError
	require.ErrorAs(t, err, &pr)

	q, err := svc.Compile(context.Background(), statusAmount())
	require.NoError(t, err)
	assert.Equal(t, statusAmountSQL, q.SQL)
}

func TestService_Options(t *testing.T) {
	svc := NewService(salesRepo(), quietLogger(), Options{MaxPageSize: 50})
	require.NoError(t, svc.LoadFromMetastore(context.Background()))

	req := statusAmount()
	req.Pagination = &domain.Pagination{Limit: 51}
	_, err := svc.Compile(context.Background(), req)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "must be <= 50")

	shallow := NewService(salesRepo(), quietLogger(), Options{MaxExpansionDepth: 1})
	err = shallow.LoadFromMetastore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum expansion depth")
}

func TestService_ExplainRecordsFailureKind(t *testing.T) {
	svc := setupSemanticService(t)
	counter := metrics.CompilationsTotal.WithLabelValues(metrics.OutcomeError, domain.KindPathResolution)
	before := promtest.ToFloat64(counter)

	_, err := svc.Explain(context.Background(), &domain.QueryRequest{
		Table:      "orders",
		Dimensions: []domain.DimensionSelection{{Path: "customer.nickname"}},
	})
	var pr *domain.PathResolutionError
	require.ErrorAs(t, err, &pr)
	assert.Equal(t, before+1, promtest.ToFloat64(counter))
}

func TestService_Explain(t *testing.T) {
	svc := setupSemanticService(t)
	plan, err := svc.Explain(context.Background(), &domain.QueryRequest{
		Table:      "orders",
		Dimensions: []domain.DimensionSelection{{Path: "customer.region.name"}},
		Metrics:    []string{"amount"},
	})
	require.NoError(t, err)
	require.Len(t, plan.Joins, 2)
	assert.Equal(t, "customer", plan.Joins[0].Path)
	assert.Equal(t, "customer.region", plan.Joins[1].Path)
	assert.Equal(t, "LEFT", plan.Joins[1].Kind)
	assert.True(t, plan.Aggregated)
}

func TestService_CompileBatch(t *testing.T) {
	svc := NewService(salesRepo(), quietLogger(), Options{Parallelism: 2})
	require.NoError(t, svc.LoadFromMetastore(context.Background()))

	reqs := []*domain.QueryRequest{
		statusAmount(),
		{Table: "missing", Metrics: []string{"amount"}},
		{Table: "orders", Dimensions: []domain.DimensionSelection{{Path: "customer.country"}}},
		nil,
	}
	items, err := svc.CompileBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, items, 4)

	for i, item := range items {
		assert.Equal(t, i, item.Index)
	}
	require.NoError(t, items[0].Err)
	assert.Equal(t, statusAmountSQL, items[0].Query.SQL)

	var nf *domain.NotFoundError
	require.ErrorAs(t, items[1].Err, &nf)
	assert.Nil(t, items[1].Query)

	require.NoError(t, items[2].Err)
	assert.Contains(t, items[2].Query.SQL, "orders_customer.country_code AS customer_country")

	var ve *domain.ValidationError
	require.ErrorAs(t, items[3].Err, &ve)
}

func TestService_CompileBatchCancelled(t *testing.T) {
	svc := setupSemanticService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CompileBatch(ctx, []*domain.QueryRequest{statusAmount(), statusAmount()})
	require.ErrorIs(t, err, context.Canceled)
}

func TestService_Run(t *testing.T) {
	ctx := context.Background()
	svc := setupSemanticService(t)

	_, err := svc.Run(ctx, statusAmount())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executor is not configured")

	exec := &testutil.MockQueryExecutor{
		ExecuteFn: func(_ context.Context, q *domain.CompiledQuery) (*domain.QueryResult, error) {
			return &domain.QueryResult{Columns: []string{"status", "amount"}, Rows: [][]interface{}{{"paid", 150.0}}, RowCount: 1}, nil
		},
	}
	svc.SetQueryExecutor(exec)

	res, err := svc.Run(ctx, statusAmount())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Result.RowCount)
	assert.Equal(t, statusAmountSQL, res.Plan.Query.SQL)
	require.NotNil(t, exec.LastQuery())
	assert.Same(t, res.Plan.Query, exec.LastQuery())

	// Compile errors never reach the executor.
	_, err = svc.Run(ctx, &domain.QueryRequest{Table: "orders"})
	require.Error(t, err)
	assert.Len(t, exec.Queries, 1)

	exec.ExecuteFn = func(_ context.Context, _ *domain.CompiledQuery) (*domain.QueryResult, error) {
		return nil, errors.New("connection reset")
	}
	_, err = svc.Run(ctx, statusAmount())
	require.EqualError(t, err, "connection reset")
}

func TestService_RunWhileSwappingExecutor(t *testing.T) {
	ctx := context.Background()
	svc := setupSemanticService(t)
	first, second := &testutil.MockQueryExecutor{}, &testutil.MockQueryExecutor{}
	svc.SetQueryExecutor(first)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Run(ctx, statusAmount())
			assert.NoError(t, err)
		}()
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				svc.SetQueryExecutor(second)
			} else {
				svc.SetQueryExecutor(first)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, len(first.Queries)+len(second.Queries))
}

func TestService_Import(t *testing.T) {
	ctx := context.Background()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	repo := repository.NewSemanticTableRepo(writeDB)
	svc := NewService(repo, quietLogger(), Options{})

	t.Run("broken schema is not stored", func(t *testing.T) {
		_, err := svc.Import(ctx, testutil.SalesSchema()[:2], false)
		var pr *domain.PathResolutionError
		require.ErrorAs(t, err, &pr)

		stored, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("create then conflict then replace", func(t *testing.T) {
		stored, err := svc.Import(ctx, testutil.SalesSchema(), false)
		require.NoError(t, err)
		require.Len(t, stored, 6)
		for _, d := range stored {
			assert.NotEmpty(t, d.ID)
		}

		_, err = svc.Import(ctx, testutil.SalesSchema(), false)
		var conflict *domain.ConflictError
		require.ErrorAs(t, err, &conflict)

		replaced, err := svc.Import(ctx, testutil.SalesSchema(), true)
		require.NoError(t, err)
		assert.Equal(t, stored[0].ID, replaced[0].ID)
	})

	t.Run("load back from metastore", func(t *testing.T) {
		require.NoError(t, svc.LoadFromMetastore(ctx))
		q, err := svc.Compile(ctx, statusAmount())
		require.NoError(t, err)
		assert.Equal(t, statusAmountSQL, q.SQL)
	})
}
