package domain

import "context"

// QueryExecutor runs a compiled statement and returns its rows.
// Implemented by engine.DuckDBExecutor.
type QueryExecutor interface {
	Execute(ctx context.Context, q *CompiledQuery) (*QueryResult, error)
}

// SemanticTableRepository persists table definitions for the metadata graph.
// Implemented by repository.SemanticTableRepo.
type SemanticTableRepository interface {
	// Create inserts a new definition; a duplicate name is a ConflictError.
	Create(ctx context.Context, def *TableDefinition) (*TableDefinition, error)
	// Save inserts or replaces the definition with the same name.
	Save(ctx context.Context, def *TableDefinition) (*TableDefinition, error)
	GetByName(ctx context.Context, name string) (*TableDefinition, error)
	List(ctx context.Context) ([]TableDefinition, error)
	Delete(ctx context.Context, name string) error
}
