// Package engine executes compiled statements against DuckDB.
package engine

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"duck-semantic/internal/domain"
)

// Compile-time check.
var _ domain.QueryExecutor = (*DuckDBExecutor)(nil)

// DuckDBExecutor wraps a *sql.DB to implement domain.QueryExecutor.
type DuckDBExecutor struct {
	db *sql.DB
}

// NewDuckDBExecutor creates a new DuckDBExecutor.
func NewDuckDBExecutor(db *sql.DB) *DuckDBExecutor {
	return &DuckDBExecutor{db: db}
}

// OpenDuckDB opens a DuckDB database. An empty path opens an in-memory database.
func OpenDuckDB(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return db, nil
}

// Execute runs q with its bound parameters. Hidden columns are dropped from
// the result, and the total is filled in when q carries a count statement.
func (e *DuckDBExecutor) Execute(ctx context.Context, q *domain.CompiledQuery) (*domain.QueryResult, error) {
	if q == nil || q.SQL == "" {
		return nil, domain.ErrValidation("compiled query is required")
	}
	args := q.Args()

	rows, err := e.db.QueryContext(ctx, q.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	result, err := scanRows(rows, hiddenColumns(q))
	if err != nil {
		return nil, fmt.Errorf("scan results: %w", err)
	}

	if q.CountSQL != "" {
		var total int64
		if err := e.db.QueryRowContext(ctx, q.CountSQL, args...).Scan(&total); err != nil {
			return nil, fmt.Errorf("count query: %w", err)
		}
		result.TotalCount = &total
	}
	return result, nil
}

func hiddenColumns(q *domain.CompiledQuery) map[string]bool {
	hidden := make(map[string]bool)
	for _, c := range q.Columns {
		if c.Hidden {
			hidden[c.Name] = true
		}
	}
	return hidden
}

func scanRows(rows *sql.Rows, hidden map[string]bool) (*domain.QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	keep := make([]int, 0, len(cols))
	visible := make([]string, 0, len(cols))
	for i, c := range cols {
		if hidden[c] {
			continue
		}
		keep = append(keep, i)
		visible = append(visible, c)
	}

	resultRows := make([][]interface{}, 0)
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		// Convert byte slices to strings for JSON serialization
		row := make([]interface{}, len(keep))
		for j, i := range keep {
			if b, ok := vals[i].([]byte); ok {
				row[j] = string(b)
			} else {
				row[j] = vals[i]
			}
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.QueryResult{
		Columns:  visible,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}
