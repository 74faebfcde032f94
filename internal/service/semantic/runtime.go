package semantic

import (
	"context"
	"fmt"
	"time"

	"duck-semantic/internal/domain"
	"duck-semantic/internal/metrics"
)

// SetQueryExecutor wires the query execution dependency.
func (s *Service) SetQueryExecutor(exec domain.QueryExecutor) {
	s.mu.Lock()
	s.queryExec = exec
	s.mu.Unlock()
}

func (s *Service) executor() domain.QueryExecutor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryExec
}

// Run compiles req and executes it through the configured executor.
func (s *Service) Run(ctx context.Context, req *domain.QueryRequest) (*RunResult, error) {
	exec := s.executor()
	if exec == nil {
		return nil, fmt.Errorf("semantic query executor is not configured")
	}

	plan, err := s.Explain(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := exec.Execute(ctx, plan.Query)
	metrics.ExecutionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		s.logger.Warn("execute query failed", "table", req.Table, "error", err)
		return nil, err
	}
	metrics.ExecutionsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.logger.Debug("executed query", "table", req.Table, "rows", result.RowCount, "duration", time.Since(start))

	return &RunResult{Plan: plan, Result: result}, nil
}
