package semantic

import (
	"duck-semantic/internal/compiler"
	"duck-semantic/internal/domain"
)

// BatchItem is the outcome of compiling one request of a batch. Exactly one of
// Query and Err is set.
type BatchItem struct {
	Index int
	Query *domain.CompiledQuery
	Err   error
}

// RunResult wraps execution output and the plan that produced it.
type RunResult struct {
	Plan   *compiler.Plan
	Result *domain.QueryResult
}

// GraphSource names where a graph was loaded from, for logs.
type GraphSource string

const (
	SourceMetastore GraphSource = "metastore"
	SourceDirectory GraphSource = "directory"
	SourceInline    GraphSource = "inline"
)
