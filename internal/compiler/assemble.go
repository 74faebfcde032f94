package compiler

import (
	"fmt"
	"strings"

	"duck-semantic/internal/domain"
	"duck-semantic/internal/metadata"
)

// Names of hidden output columns added to keep DISTINCT valid.
const (
	identityColumnName = "__identity"
	sortColumnPrefix   = "__sort_"
)

type projection struct {
	name   string
	path   string
	expr   string
	metric *metadata.Column
	hidden bool
	paths  []*metadata.JoinPath
}

type sortItem struct {
	field    domain.SortField
	expr     string
	selected bool
	paths    []*metadata.JoinPath
}

// assembly carries one compilation through the fixed pipeline:
// select -> filter -> sort -> join merge -> validate -> emit.
type assembly struct {
	c     *Compiler
	req   *domain.QueryRequest
	table *metadata.Table
	root  *metadata.JoinPath

	binder      paramBinder
	projections []*projection
	where       string
	having      string
	filterPaths []*metadata.JoinPath
	sorts       []*sortItem
	joins       *joinSet

	aggregated bool
	dedup      bool
	distinct   bool

	sql      string
	countSQL string
}

func (c *Compiler) newAssembly(req *domain.QueryRequest) (*assembly, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Pagination != nil {
		if err := req.Pagination.Validate(c.maxPageSize); err != nil {
			return nil, err
		}
	}
	table, err := c.graph.Table(req.Table)
	if err != nil {
		return nil, err
	}
	root, err := c.graph.ResolveJoinPath(table, "")
	if err != nil {
		return nil, err
	}
	return &assembly{c: c, req: req, table: table, root: root}, nil
}

func (a *assembly) run() error {
	steps := []func() error{
		a.selectColumns,
		a.buildFilters,
		a.buildSorting,
		a.mergeJoins,
		a.validate,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	a.emit()
	return nil
}

func (a *assembly) selectColumns() error {
	names := make(map[string]string)
	add := func(p *projection) error {
		if prev, dup := names[p.name]; dup {
			return domain.ErrValidation("output column %q is produced by both %q and %q", p.name, prev, p.path)
		}
		names[p.name] = p.path
		a.projections = append(a.projections, p)
		return nil
	}

	for _, d := range a.req.Dimensions {
		jp, col, err := a.c.graph.ResolveField(a.table, d.Path)
		if err != nil {
			return err
		}
		if col.IsMetric() {
			return domain.ErrValidation("%q is a metric; select it as a metric", d.Path)
		}
		grain := d.Grain
		if grain != "" {
			if !col.IsTimeDimension() {
				return domain.ErrValidation("dimension %q: grain is only valid on time dimensions", d.Path)
			}
			if !col.SupportsGrain(grain) {
				return domain.ErrValidation("dimension %q does not support grain %s", d.Path, grain)
			}
		} else if col.IsTimeDimension() {
			grain = col.DefaultGrain()
		}

		ref, err := a.c.resolve(a.root.Concat(jp), col)
		if err != nil {
			return err
		}
		expr := ref.expr
		if grain != "" {
			expr = truncate(grain, expr)
		}
		if err := add(&projection{name: outputName(d.Path), path: d.Path, expr: expr, paths: ref.paths}); err != nil {
			return err
		}
	}

	for _, m := range a.req.Metrics {
		jp, col, err := a.c.graph.ResolveField(a.table, m)
		if err != nil {
			return err
		}
		if !col.IsMetric() {
			return domain.ErrValidation("%q is not a metric", m)
		}
		if !jp.IsRoot() {
			return domain.ErrValidation("metric %q must belong to table %q", m, a.table.Name)
		}
		ref, err := a.c.resolve(a.root, col)
		if err != nil {
			return err
		}
		p := &projection{name: outputName(m), path: m, expr: aggregate(col.Aggregation, ref.expr), metric: col, paths: ref.paths}
		if err := add(p); err != nil {
			return err
		}
	}
	a.aggregated = len(a.req.Metrics) > 0
	return nil
}

func (a *assembly) buildFilters() error {
	if a.req.Filter != nil {
		ft := &filterTranslator{c: a.c, root: a.root, binder: &a.binder}
		where, err := ft.translate(a.req.Filter)
		if err != nil {
			return err
		}
		a.where = where
		a.filterPaths = ft.paths
	}
	if a.req.Having != nil {
		if !a.aggregated {
			return domain.ErrValidation("having filter requires at least one selected metric")
		}
		ft := &filterTranslator{c: a.c, root: a.root, binder: &a.binder, having: true}
		having, err := ft.translate(a.req.Having)
		if err != nil {
			return err
		}
		a.having = having
		a.filterPaths = mergePaths(a.filterPaths, ft.paths)
	}
	return nil
}

func (a *assembly) buildSorting() error {
	for _, s := range a.req.Sorting {
		item := &sortItem{field: s}
		if p := a.selected(s.Path); p != nil {
			item.expr, item.paths, item.selected = p.expr, p.paths, true
			a.sorts = append(a.sorts, item)
			continue
		}

		jp, col, err := a.c.graph.ResolveField(a.table, s.Path)
		if err != nil {
			return err
		}
		if col.IsMetric() {
			return domain.ErrValidation("sorting on metric %q requires selecting it", s.Path)
		}
		ref, err := a.c.resolve(a.root.Concat(jp), col)
		if err != nil {
			return err
		}
		item.expr, item.paths = ref.expr, ref.paths
		// A sort that resolves to an already projected expression orders by that column.
		item.selected = a.selectedExpr(ref.expr) != nil
		a.sorts = append(a.sorts, item)
	}
	return nil
}

func (a *assembly) selected(path string) *projection {
	for _, p := range a.projections {
		if !p.hidden && p.path == path {
			return p
		}
	}
	return nil
}

func (a *assembly) selectedExpr(expr string) *projection {
	for _, p := range a.projections {
		if !p.hidden && p.expr == expr {
			return p
		}
	}
	return nil
}

func (a *assembly) mergeJoins() error {
	a.joins = newJoinSet(a.c, a.root)
	if err := a.joins.addAll(a.filterPaths, SourceFilter); err != nil {
		return err
	}
	for _, s := range a.sorts {
		if err := a.joins.addAll(s.paths, SourceSort); err != nil {
			return err
		}
	}
	for _, p := range a.projections {
		if err := a.joins.addAll(p.paths, SourceSelect); err != nil {
			return err
		}
	}
	return nil
}

func (a *assembly) validate() error {
	duplicating := a.joins.duplicating()
	a.dedup = a.req.Pagination != nil && duplicating

	if a.dedup {
		for _, s := range a.sorts {
			if !s.selected && crossesToMany(s.paths) {
				return domain.ErrAmbiguousOrdering(s.field.Path,
					"sorting on %q crosses a to-many join while paginated rows must be deduplicated; select the field or drop the sort", s.field.Path)
			}
		}
	}

	if a.aggregated {
		for _, s := range a.sorts {
			if !s.selected {
				return domain.ErrValidation("sorting on %q requires selecting it in an aggregated query", s.field.Path)
			}
		}
		if duplicating {
			for _, p := range a.projections {
				if p.metric != nil && !p.metric.Aggregation.Idempotent() {
					return domain.ErrValidation("metric %q (%s) would be inflated by to-many join %s",
						p.path, p.metric.Aggregation, a.firstDuplicating())
				}
			}
		}
		return nil
	}

	if !a.dedup {
		return nil
	}
	a.distinct = true
	if a.table.IDColumn == "" {
		return domain.ErrValidation("table %q has no identity column; paginating across a to-many join requires one", a.table.Name)
	}
	idCol, ok := a.table.Column(a.table.IDColumn)
	if !ok {
		return domain.ErrValidation("table %q: identity column %q is not declared", a.table.Name, a.table.IDColumn)
	}
	ref, err := a.c.resolve(a.root, idCol)
	if err != nil {
		return err
	}
	if !a.projects(ref.expr) {
		if err := a.joins.addAll(ref.paths, SourceSelect); err != nil {
			return err
		}
		a.projections = append(a.projections, &projection{
			name: identityColumnName, path: a.table.IDColumn, expr: ref.expr, hidden: true, paths: ref.paths,
		})
	}
	for i, s := range a.sorts {
		if !s.selected {
			a.projections = append(a.projections, &projection{
				name: fmt.Sprintf("%s%d", sortColumnPrefix, i+1), path: s.field.Path, expr: s.expr, hidden: true, paths: s.paths,
			})
		}
	}
	return nil
}

func (a *assembly) projects(expr string) bool {
	for _, p := range a.projections {
		if p.expr == expr {
			return true
		}
	}
	return false
}

func (a *assembly) firstDuplicating() string {
	for _, n := range a.joins.nodes {
		if n.duplicating {
			return n.path.Signature()
		}
	}
	return ""
}

func (a *assembly) emit() {
	cols := make([]string, len(a.projections))
	for i, p := range a.projections {
		cols[i] = p.expr + " AS " + quoteIdent(p.name)
	}
	sel := "SELECT "
	if a.distinct {
		sel += "DISTINCT "
	}

	parts := []string{
		sel + strings.Join(cols, ", "),
		"FROM " + quoteRelation(a.table.PhysicalName) + " AS " + quoteIdent(aliasFor(a.root)),
	}
	parts = append(parts, a.joins.clauses()...)
	if a.where != "" {
		parts = append(parts, "WHERE "+a.where)
	}
	if a.aggregated {
		if group := a.groupBy(); len(group) > 0 {
			parts = append(parts, "GROUP BY "+strings.Join(group, ", "))
		}
	}
	if a.having != "" {
		parts = append(parts, "HAVING "+a.having)
	}
	body := strings.Join(parts, " ")

	stmt := body
	if len(a.sorts) > 0 {
		order := make([]string, len(a.sorts))
		for i, s := range a.sorts {
			order[i] = s.expr + " " + string(s.field.Direction)
		}
		stmt += " ORDER BY " + strings.Join(order, ", ")
	}
	if pg := a.req.Pagination; pg != nil {
		stmt += fmt.Sprintf(" LIMIT %d OFFSET %d", pg.Limit, pg.Offset)
		if pg.IncludeTotalCount {
			a.countSQL = "SELECT COUNT(*) AS total FROM (" + body + ") AS count_source"
		}
	}
	a.sql = stmt
}

func (a *assembly) groupBy() []string {
	var group []string
	seen := make(map[string]bool)
	for _, p := range a.projections {
		if p.metric != nil || p.hidden || seen[p.expr] {
			continue
		}
		seen[p.expr] = true
		group = append(group, p.expr)
	}
	return group
}

func (a *assembly) plan() *Plan {
	q := &domain.CompiledQuery{
		SQL:        a.sql,
		CountSQL:   a.countSQL,
		Parameters: make([]domain.QueryParameter, len(a.binder.params)),
		Aliases:    []domain.AliasEntry{{Path: "", Alias: aliasFor(a.root)}},
		Distinct:   a.distinct,
	}
	copy(q.Parameters, a.binder.params)
	for _, p := range a.projections {
		q.Columns = append(q.Columns, domain.OutputColumn{Name: p.name, Path: p.path, Hidden: p.hidden})
	}

	plan := &Plan{Query: q, Aggregated: a.aggregated, DeduplicationRequired: a.dedup}
	for _, n := range a.joins.nodes {
		q.Aliases = append(q.Aliases, domain.AliasEntry{Path: n.path.RelativePath(), Alias: n.alias})
		plan.Joins = append(plan.Joins, JoinInfo{
			Path:        n.path.RelativePath(),
			Alias:       n.alias,
			Kind:        n.kind,
			Duplicating: n.duplicating,
			Condition:   n.condition,
			Sources:     append([]string(nil), n.sources...),
		})
	}
	return plan
}

func crossesToMany(paths []*metadata.JoinPath) bool {
	for _, p := range paths {
		if p.ToMany() {
			return true
		}
	}
	return false
}

func outputName(path string) string {
	return strings.ReplaceAll(path, ".", "_")
}

func truncate(grain domain.TimeGrain, expr string) string {
	return fmt.Sprintf("DATE_TRUNC('%s', %s)", strings.ToLower(string(grain)), expr)
}

// aggregate wraps a physical expression in its aggregation function.
func aggregate(fn domain.AggregationFunction, expr string) string {
	switch fn {
	case domain.AggregationCountDistinct:
		return "COUNT(DISTINCT " + expr + ")"
	case domain.AggregationAverage:
		return "AVG(" + expr + ")"
	default:
		return string(fn) + "(" + expr + ")"
	}
}
