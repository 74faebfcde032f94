// Package testutil provides shared mock implementations of domain interfaces
// and schema fixtures for use in tests across the codebase. This follows the
// Go convention of a shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"

	"duck-semantic/internal/domain"
)

// === Semantic Table Repository Mock ===

// MockSemanticTableRepo implements domain.SemanticTableRepository for testing.
type MockSemanticTableRepo struct {
	CreateFn    func(ctx context.Context, def *domain.TableDefinition) (*domain.TableDefinition, error)
	SaveFn      func(ctx context.Context, def *domain.TableDefinition) (*domain.TableDefinition, error)
	GetByNameFn func(ctx context.Context, name string) (*domain.TableDefinition, error)
	ListFn      func(ctx context.Context) ([]domain.TableDefinition, error)
	DeleteFn    func(ctx context.Context, name string) error
}

// Create implements the interface method for testing.
func (m *MockSemanticTableRepo) Create(ctx context.Context, def *domain.TableDefinition) (*domain.TableDefinition, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, def)
	}
	panic("unexpected call to MockSemanticTableRepo.Create")
}

// Save implements the interface method for testing.
func (m *MockSemanticTableRepo) Save(ctx context.Context, def *domain.TableDefinition) (*domain.TableDefinition, error) {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, def)
	}
	panic("unexpected call to MockSemanticTableRepo.Save")
}

// GetByName implements the interface method for testing.
func (m *MockSemanticTableRepo) GetByName(ctx context.Context, name string) (*domain.TableDefinition, error) {
	if m.GetByNameFn != nil {
		return m.GetByNameFn(ctx, name)
	}
	panic("unexpected call to MockSemanticTableRepo.GetByName")
}

// List implements the interface method for testing.
func (m *MockSemanticTableRepo) List(ctx context.Context) ([]domain.TableDefinition, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}
	panic("unexpected call to MockSemanticTableRepo.List")
}

// Delete implements the interface method for testing.
func (m *MockSemanticTableRepo) Delete(ctx context.Context, name string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, name)
	}
	panic("unexpected call to MockSemanticTableRepo.Delete")
}

// === Query Executor Mock ===

// MockQueryExecutor implements domain.QueryExecutor for testing and records
// every query it receives.
type MockQueryExecutor struct {
	ExecuteFn func(ctx context.Context, q *domain.CompiledQuery) (*domain.QueryResult, error)

	mu      sync.Mutex
	Queries []*domain.CompiledQuery
}

// Execute implements the interface method for testing.
func (m *MockQueryExecutor) Execute(ctx context.Context, q *domain.CompiledQuery) (*domain.QueryResult, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, q)
	m.mu.Unlock()
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, q)
	}
	return &domain.QueryResult{}, nil
}

// LastQuery returns the last executed query, or nil if none.
func (m *MockQueryExecutor) LastQuery() *domain.CompiledQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Queries) == 0 {
		return nil
	}
	return m.Queries[len(m.Queries)-1]
}
