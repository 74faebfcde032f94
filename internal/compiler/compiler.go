// Package compiler turns a declarative QueryRequest into one parameterized SQL
// statement against a bound metadata graph.
package compiler

import (
	"sync"

	"duck-semantic/internal/domain"
	"duck-semantic/internal/metadata"
)

// DefaultMaxPageSize is the largest pagination limit accepted by default.
const DefaultMaxPageSize = 10000

// Compiler compiles requests against one metadata graph. It is safe for
// concurrent use; compilation is pure and never blocks.
type Compiler struct {
	graph       *metadata.Graph
	maxPageSize int

	// memoized references keyed by refKey; aliases depend only on path
	// signatures, so entries are valid for every request.
	refs sync.Map
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithMaxPageSize overrides DefaultMaxPageSize. Zero disables the bound.
func WithMaxPageSize(n int) Option {
	return func(c *Compiler) {
		if n >= 0 {
			c.maxPageSize = n
		}
	}
}

// New returns a Compiler for graph.
func New(graph *metadata.Graph, opts ...Option) *Compiler {
	c := &Compiler{graph: graph, maxPageSize: DefaultMaxPageSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Graph returns the metadata graph the compiler resolves against.
func (c *Compiler) Graph() *metadata.Graph { return c.graph }

// JoinInfo describes one emitted join.
type JoinInfo struct {
	Path        string   `json:"path"`
	Alias       string   `json:"alias"`
	Kind        string   `json:"kind"`
	Duplicating bool     `json:"duplicating"`
	Condition   string   `json:"condition"`
	Sources     []string `json:"sources"`
}

// Plan is a compiled query together with the decisions that shaped it.
type Plan struct {
	Query                 *domain.CompiledQuery `json:"query"`
	Joins                 []JoinInfo            `json:"joins"`
	Aggregated            bool                  `json:"aggregated"`
	DeduplicationRequired bool                  `json:"deduplication_required"`
}

// Compile compiles req into a single statement. Any failure aborts with no
// artifact.
func (c *Compiler) Compile(req *domain.QueryRequest) (*domain.CompiledQuery, error) {
	plan, err := c.Explain(req)
	if err != nil {
		return nil, err
	}
	return plan.Query, nil
}

// Explain compiles req and reports the join plan.
func (c *Compiler) Explain(req *domain.QueryRequest) (*Plan, error) {
	if req == nil {
		return nil, domain.ErrValidation("request is required")
	}
	a, err := c.newAssembly(req)
	if err != nil {
		return nil, err
	}
	if err := a.run(); err != nil {
		return nil, err
	}
	return a.plan(), nil
}
