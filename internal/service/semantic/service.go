// Package semantic wires the metadata graph, the compiler and its
// collaborators into the operations exposed by the CLI.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"duck-semantic/internal/compiler"
	"duck-semantic/internal/declarative"
	"duck-semantic/internal/domain"
	"duck-semantic/internal/metadata"
	"duck-semantic/internal/metrics"
)

// DefaultParallelism bounds CompileBatch when no option overrides it.
const DefaultParallelism = 8

// Options configures a Service.
type Options struct {
	MaxExpansionDepth int
	MaxPageSize       int
	Parallelism       int
}

// Service provides compilation and execution of semantic queries against the
// currently loaded metadata graph.
type Service struct {
	tables domain.SemanticTableRepository
	logger *slog.Logger
	opts   Options

	// mu guards the active compiler and the executor.
	mu        sync.RWMutex
	compiler  *compiler.Compiler
	queryExec domain.QueryExecutor
}

// NewService creates a new semantic Service. tables may be nil when graphs are
// only loaded from directories.
func NewService(tables domain.SemanticTableRepository, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	return &Service{tables: tables, logger: logger, opts: opts}
}

// Bind builds a graph from defs and makes it the active one. On failure the
// previous graph stays active.
func (s *Service) Bind(defs []domain.TableDefinition, source GraphSource) error {
	g, err := metadata.Bind(defs, s.bindOptions()...)
	if err != nil {
		s.logger.Warn("bind metadata graph failed", "source", source, "error_kind", domain.ErrorKind(err), "error", err)
		return err
	}

	var compOpts []compiler.Option
	if s.opts.MaxPageSize > 0 {
		compOpts = append(compOpts, compiler.WithMaxPageSize(s.opts.MaxPageSize))
	}
	c := compiler.New(g, compOpts...)

	s.mu.Lock()
	s.compiler = c
	s.mu.Unlock()

	metrics.GraphTables.Set(float64(len(defs)))
	s.logger.Info("metadata graph bound", "source", source, "tables", len(defs))
	return nil
}

// LoadFromMetastore binds every table definition stored in the repository.
func (s *Service) LoadFromMetastore(ctx context.Context) error {
	if s.tables == nil {
		return fmt.Errorf("semantic table repository is not configured")
	}
	defs, err := s.tables.List(ctx)
	if err != nil {
		return fmt.Errorf("list semantic tables: %w", err)
	}
	if len(defs) == 0 {
		return domain.ErrNotFound("metastore holds no semantic tables; run import first")
	}
	return s.Bind(defs, SourceMetastore)
}

// LoadFromDir binds the YAML table definitions in dir.
func (s *Service) LoadFromDir(dir string, opts declarative.LoadOptions) error {
	defs, err := declarative.LoadSchemaDir(dir, opts)
	if err != nil {
		return err
	}
	return s.Bind(defs, SourceDirectory)
}

// Import stores defs in the metastore. Existing tables are replaced when
// replace is set and rejected with a ConflictError otherwise. The definitions
// are bound first so a broken schema never reaches the metastore.
func (s *Service) Import(ctx context.Context, defs []domain.TableDefinition, replace bool) ([]domain.TableDefinition, error) {
	if s.tables == nil {
		return nil, fmt.Errorf("semantic table repository is not configured")
	}
	if _, err := metadata.Bind(defs, s.bindOptions()...); err != nil {
		return nil, err
	}

	out := make([]domain.TableDefinition, 0, len(defs))
	for i := range defs {
		var (
			stored *domain.TableDefinition
			err    error
		)
		if replace {
			stored, err = s.tables.Save(ctx, &defs[i])
		} else {
			stored, err = s.tables.Create(ctx, &defs[i])
		}
		if err != nil {
			return out, err
		}
		s.logger.Debug("semantic table imported", "table", stored.Name, "id", stored.ID, "replace", replace)
		out = append(out, *stored)
	}
	return out, nil
}

// Compile compiles req against the active graph.
func (s *Service) Compile(ctx context.Context, req *domain.QueryRequest) (*domain.CompiledQuery, error) {
	plan, err := s.Explain(ctx, req)
	if err != nil {
		return nil, err
	}
	return plan.Query, nil
}

// Explain compiles req and returns the join plan alongside the artifact.
func (s *Service) Explain(ctx context.Context, req *domain.QueryRequest) (*compiler.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := s.active()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	plan, err := c.Explain(req)
	metrics.CompilationDuration.Observe(time.Since(start).Seconds())

	table := ""
	if req != nil {
		table = req.Table
	}
	if err != nil {
		kind := domain.ErrorKind(err)
		metrics.CompilationsTotal.WithLabelValues(metrics.OutcomeError, kind).Inc()
		s.logger.Warn("compile failed", "table", table, "error_kind", kind, "error", err)
		return nil, err
	}
	metrics.CompilationsTotal.WithLabelValues(metrics.OutcomeSuccess, "").Inc()
	s.logger.Debug("compiled query",
		"table", table,
		"joins", len(plan.Joins),
		"params", len(plan.Query.Parameters),
		"distinct", plan.Query.Distinct,
		"duration", time.Since(start))
	return plan, nil
}

// CompileBatch compiles reqs concurrently. Failures are reported per item and
// do not stop the batch; only cancellation of ctx does.
func (s *Service) CompileBatch(ctx context.Context, reqs []*domain.QueryRequest) ([]BatchItem, error) {
	if _, err := s.active(); err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)

	for i := range reqs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			q, err := s.Compile(gctx, reqs[i])
			items[i] = BatchItem{Index: i, Query: q, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compile batch: %w", err)
	}
	return items, nil
}

func (s *Service) bindOptions() []metadata.Option {
	if s.opts.MaxExpansionDepth > 0 {
		return []metadata.Option{metadata.WithMaxExpansionDepth(s.opts.MaxExpansionDepth)}
	}
	return nil
}

func (s *Service) active() (*compiler.Compiler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.compiler == nil {
		return nil, fmt.Errorf("no metadata graph is loaded")
	}
	return s.compiler, nil
}
