package domain

import "fmt"

// FilterOperator is the comparison applied by a FilterPredicate.
type FilterOperator string

const (
	OpEqual        FilterOperator = "EQ"
	OpNotEqual     FilterOperator = "NE"
	OpLessThan     FilterOperator = "LT"
	OpLessEqual    FilterOperator = "LE"
	OpGreaterThan  FilterOperator = "GT"
	OpGreaterEqual FilterOperator = "GE"
	OpBetween      FilterOperator = "BETWEEN"
	OpIn           FilterOperator = "IN"
	OpNotIn        FilterOperator = "NOT_IN"
	OpPrefix       FilterOperator = "PREFIX"
	OpPostfix      FilterOperator = "POSTFIX"
	OpInfix        FilterOperator = "INFIX"
	OpIsNull       FilterOperator = "ISNULL"
	OpNotNull      FilterOperator = "NOTNULL"
)

// FilterExpression is a node of an immutable boolean predicate tree.
type FilterExpression interface {
	filterExpression()
}

// FilterPredicate is a leaf comparing the field at Path with Values.
type FilterPredicate struct {
	Path     string
	Operator FilterOperator
	Values   []interface{}
}

// AndExpression is true when both children are true.
type AndExpression struct {
	Left, Right FilterExpression
}

// OrExpression is true when either child is true.
type OrExpression struct {
	Left, Right FilterExpression
}

// NotExpression negates its child.
type NotExpression struct {
	Negated FilterExpression
}

func (*FilterPredicate) filterExpression() {}
func (*AndExpression) filterExpression()   {}
func (*OrExpression) filterExpression()    {}
func (*NotExpression) filterExpression()   {}

// Predicate builds a FilterPredicate leaf.
func Predicate(path string, op FilterOperator, values ...interface{}) *FilterPredicate {
	return &FilterPredicate{Path: path, Operator: op, Values: values}
}

// And folds exprs left to right into nested AndExpressions. It returns nil for
// no expressions and the expression itself for one.
func And(exprs ...FilterExpression) FilterExpression {
	return fold(exprs, func(l, r FilterExpression) FilterExpression { return &AndExpression{Left: l, Right: r} })
}

// Or folds exprs left to right into nested OrExpressions.
func Or(exprs ...FilterExpression) FilterExpression {
	return fold(exprs, func(l, r FilterExpression) FilterExpression { return &OrExpression{Left: l, Right: r} })
}

// Not negates expr.
func Not(expr FilterExpression) FilterExpression {
	return &NotExpression{Negated: expr}
}

func fold(exprs []FilterExpression, join func(l, r FilterExpression) FilterExpression) FilterExpression {
	var out FilterExpression
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if out == nil {
			out = e
			continue
		}
		out = join(out, e)
	}
	return out
}

// SortDirection orders a sort field.
type SortDirection string

const (
	SortAscending  SortDirection = "ASC"
	SortDescending SortDirection = "DESC"
)

// SortField orders results by the field at Path.
type SortField struct {
	Path      string
	Direction SortDirection
}

// Sorting is an ordered list of sort fields; earlier fields take precedence.
type Sorting []SortField

// Pagination restricts the result window and optionally requests a total count.
type Pagination struct {
	Offset            int
	Limit             int
	IncludeTotalCount bool
}

// Validate checks offset and limit against maxLimit.
func (p *Pagination) Validate(maxLimit int) error {
	if p.Offset < 0 {
		return ErrValidation("pagination offset must be >= 0")
	}
	if p.Limit <= 0 {
		return ErrValidation("pagination limit must be > 0")
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		return ErrValidation("pagination limit must be <= %d", maxLimit)
	}
	return nil
}

// DimensionSelection selects a dimension by path, with an optional grain for
// time dimensions.
type DimensionSelection struct {
	Path  string
	Grain TimeGrain
}

// QueryRequest is the declarative analytic request compiled into one statement.
type QueryRequest struct {
	Table      string
	Dimensions []DimensionSelection
	Metrics    []string
	Filter     FilterExpression // WHERE
	Having     FilterExpression // HAVING, metric predicates only
	Sorting    Sorting
	Pagination *Pagination
}

// Validate checks the shape of the request. Field paths are checked by the compiler.
func (r *QueryRequest) Validate() error {
	if r.Table == "" {
		return ErrValidation("table is required")
	}
	if len(r.Dimensions) == 0 && len(r.Metrics) == 0 {
		return ErrValidation("at least one dimension or metric is required")
	}
	seen := make(map[string]bool, len(r.Dimensions)+len(r.Metrics))
	for _, d := range r.Dimensions {
		if d.Path == "" {
			return ErrValidation("dimension path is required")
		}
		if d.Grain != "" && !ValidGrain(d.Grain) {
			return ErrValidation("dimension %q: unknown grain %q", d.Path, d.Grain)
		}
		if seen[d.Path] {
			return ErrValidation("field %q selected more than once", d.Path)
		}
		seen[d.Path] = true
	}
	for _, m := range r.Metrics {
		if m == "" {
			return ErrValidation("metric name is required")
		}
		if seen[m] {
			return ErrValidation("field %q selected more than once", m)
		}
		seen[m] = true
	}
	for _, s := range r.Sorting {
		if s.Path == "" {
			return ErrValidation("sort path is required")
		}
		if s.Direction != SortAscending && s.Direction != SortDescending {
			return ErrValidation("sort %q: direction must be ASC or DESC", s.Path)
		}
	}
	return nil
}

// QueryParameter is one bound value of a compiled statement. Name is the
// placeholder without its sigil: "p1" binds "$1".
type QueryParameter struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// AliasEntry maps a logical join path ("" for the root) to its SQL alias.
type AliasEntry struct {
	Path  string `json:"path"`
	Alias string `json:"alias"`
}

// OutputColumn describes one projected column of a compiled statement.
// Hidden columns exist only to keep DISTINCT and ORDER BY valid.
type OutputColumn struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Hidden bool   `json:"hidden,omitempty"`
}

// CompiledQuery is the immutable artifact handed to the execution collaborator.
type CompiledQuery struct {
	SQL        string           `json:"sql"`
	CountSQL   string           `json:"count_sql,omitempty"` // empty unless a total count was requested
	Parameters []QueryParameter `json:"parameters"`
	Aliases    []AliasEntry     `json:"aliases"`
	Columns    []OutputColumn   `json:"columns"`
	Distinct   bool             `json:"distinct"`
}

// Args returns the parameter values in placeholder order.
func (q *CompiledQuery) Args() []interface{} {
	args := make([]interface{}, len(q.Parameters))
	for i, p := range q.Parameters {
		args[i] = p.Value
	}
	return args
}

// Alias returns the SQL alias for a logical join path.
func (q *CompiledQuery) Alias(path string) (string, bool) {
	for _, a := range q.Aliases {
		if a.Path == path {
			return a.Alias, true
		}
	}
	return "", false
}

// QueryResult holds the rows returned by executing a CompiledQuery.
type QueryResult struct {
	Columns    []string        `json:"columns"`
	Rows       [][]interface{} `json:"rows"`
	RowCount   int             `json:"row_count"`
	TotalCount *int64          `json:"total_count,omitempty"`
}

// ParameterName returns the name of the n-th (1-based) parameter.
func ParameterName(n int) string {
	return fmt.Sprintf("p%d", n)
}
