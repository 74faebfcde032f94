// Package metadata holds the immutable metadata graph the compiler resolves
// logical columns and relationships against.
package metadata

import (
	"sort"
	"strings"
	"sync"

	"duck-semantic/internal/domain"
)

// DefaultMaxExpansionDepth bounds template expansion during bind and resolution.
const DefaultMaxExpansionDepth = 32

// Table is a bound logical table. Read-only after Bind.
type Table struct {
	Name         string
	Description  string
	PhysicalName string
	IDColumn     string // empty when the table has no identity

	columns       []*Column
	columnByName  map[string]*Column
	relationships []*Relationship
	relByName     map[string]*Relationship
}

// Column is a bound column. Kind tags the variant; the capability accessors
// below are what the compiler branches on.
type Column struct {
	Table        *Table
	Name         string
	DisplayName  string
	Kind         domain.ColumnKind
	ValueType    domain.ValueType
	PhysicalName string
	Expression   *Template
	JoinPath     string
	Aggregation  domain.AggregationFunction
	Grains       []domain.TimeGrain

	// requiresJoin is set during bind when expanding the column crosses a relationship.
	requiresJoin bool
}

// Relationship is a bound join edge from Source to Target.
type Relationship struct {
	Source      *Table
	Target      *Table
	Name        string
	Cardinality domain.Cardinality
	Optional    bool
	SourceKey   *Column
	TargetKey   *Column
	Template    *Template
}

// Columns returns the table's columns in declaration order.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Relationships returns the table's relationships in declaration order.
func (t *Table) Relationships() []*Relationship {
	out := make([]*Relationship, len(t.relationships))
	copy(out, t.relationships)
	return out
}

// Column looks up a column by logical name.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.columnByName[name]
	return c, ok
}

// Relationship looks up a relationship by name.
func (t *Table) Relationship(name string) (*Relationship, bool) {
	r, ok := t.relByName[name]
	return r, ok
}

// IsMetric reports whether the column is aggregated.
func (c *Column) IsMetric() bool { return c.Kind == domain.ColumnKindMetric }

// IsTimeDimension reports whether the column supports time grains.
func (c *Column) IsTimeDimension() bool { return c.Kind == domain.ColumnKindTimeDimension }

// HasTemplate reports whether the column is defined by an expression template.
func (c *Column) HasTemplate() bool { return c.Expression != nil }

// HasJoinPath reports whether the column takes its value from a related table.
func (c *Column) HasJoinPath() bool { return c.JoinPath != "" }

// RequiresJoin reports whether resolving the column needs any join.
func (c *Column) RequiresJoin() bool { return c.requiresJoin }

// DefaultGrain returns the first declared grain, or "" when none is declared.
func (c *Column) DefaultGrain() domain.TimeGrain {
	if len(c.Grains) == 0 {
		return ""
	}
	return c.Grains[0]
}

// SupportsGrain reports whether g may be requested for this column.
// A time dimension without declared grains accepts any known grain.
func (c *Column) SupportsGrain(g domain.TimeGrain) bool {
	if !c.IsTimeDimension() || !domain.ValidGrain(g) {
		return false
	}
	if len(c.Grains) == 0 {
		return true
	}
	for _, have := range c.Grains {
		if have == g {
			return true
		}
	}
	return false
}

// QualifiedName returns "table.column".
func (c *Column) QualifiedName() string { return c.Table.Name + "." + c.Name }

// ToMany reports whether the relationship can multiply source rows.
func (r *Relationship) ToMany() bool { return r.Cardinality == domain.CardinalityToMany }

// QualifiedName returns "table.relationship".
func (r *Relationship) QualifiedName() string { return r.Source.Name + "." + r.Name }

// Graph is the bound, immutable metadata graph. It is safe for concurrent use.
type Graph struct {
	tables   map[string]*Table
	names    []string
	maxDepth int

	// memoized join paths keyed by pathKey; racing writers store equal values.
	paths sync.Map
}

type pathKey struct {
	root string
	path string
}

// Option configures Bind.
type Option func(*Graph)

// WithMaxExpansionDepth overrides DefaultMaxExpansionDepth.
func WithMaxExpansionDepth(depth int) Option {
	return func(g *Graph) {
		if depth > 0 {
			g.maxDepth = depth
		}
	}
}

// Bind validates defs, links relationships, parses templates and rejects
// unresolvable or cyclic definitions. The returned graph is immutable.
func Bind(defs []domain.TableDefinition, opts ...Option) (*Graph, error) {
	g := &Graph{
		tables:   make(map[string]*Table, len(defs)),
		maxDepth: DefaultMaxExpansionDepth,
	}
	for _, opt := range opts {
		opt(g)
	}

	for i := range defs {
		def := &defs[i]
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := g.tables[def.Name]; dup {
			return nil, domain.ErrConflict("table %q is defined more than once", def.Name)
		}
		t, err := newTable(def)
		if err != nil {
			return nil, err
		}
		g.tables[def.Name] = t
		g.names = append(g.names, def.Name)
	}
	sort.Strings(g.names)

	for i := range defs {
		if err := g.linkRelationships(&defs[i]); err != nil {
			return nil, err
		}
	}

	b := newBinder(g)
	if err := b.bindAll(); err != nil {
		return nil, err
	}
	return g, nil
}

func newTable(def *domain.TableDefinition) (*Table, error) {
	t := &Table{
		Name:         def.Name,
		Description:  def.Description,
		PhysicalName: def.PhysicalName,
		IDColumn:     def.IdentityColumn(),
		columnByName: make(map[string]*Column, len(def.Columns)),
		relByName:    make(map[string]*Relationship, len(def.Relationships)),
	}
	for _, cd := range def.Columns {
		c := &Column{
			Table:        t,
			Name:         cd.Name,
			DisplayName:  cd.DisplayName,
			Kind:         cd.Kind,
			ValueType:    cd.ValueType,
			PhysicalName: cd.PhysicalName,
			JoinPath:     strings.TrimSpace(cd.JoinPath),
			Aggregation:  cd.Aggregation,
			Grains:       append([]domain.TimeGrain(nil), cd.Grains...),
		}
		if c.DisplayName == "" {
			c.DisplayName = cd.Name
		}
		if c.PhysicalName == "" {
			c.PhysicalName = cd.Name
		}
		if cd.Expression != "" {
			tmpl, err := ParseTemplate(cd.Expression)
			if err != nil {
				return nil, domain.ErrValidation("column %s.%s: %v", def.Name, cd.Name, err)
			}
			if len(tmpl.Refs()) == 0 {
				return nil, domain.ErrValidation("column %s.%s: expression must reference at least one field", def.Name, cd.Name)
			}
			c.Expression = tmpl
		}
		t.columns = append(t.columns, c)
		t.columnByName[c.Name] = c
	}
	return t, nil
}

func (g *Graph) linkRelationships(def *domain.TableDefinition) error {
	src := g.tables[def.Name]
	for _, rd := range def.Relationships {
		target, ok := g.tables[rd.Target]
		if !ok {
			return domain.ErrPathResolution(def.Name, rd.Name, "relationship %s.%s: unknown target table %q", def.Name, rd.Name, rd.Target)
		}
		r := &Relationship{
			Source:      src,
			Target:      target,
			Name:        rd.Name,
			Cardinality: rd.Cardinality,
			Optional:    rd.Optional,
		}

		if rd.JoinTemplate != "" {
			tmpl, err := ParseTemplate(rd.JoinTemplate)
			if err != nil {
				return domain.ErrValidation("relationship %s.%s: %v", def.Name, rd.Name, err)
			}
			r.Template = tmpl
		} else {
			sk, ok := src.Column(rd.SourceKey)
			if !ok {
				return domain.ErrPathResolution(def.Name, rd.SourceKey, "relationship %s.%s: unknown source key %q", def.Name, rd.Name, rd.SourceKey)
			}
			targetKey := rd.TargetKey
			if targetKey == "" {
				targetKey = target.IDColumn
			}
			if targetKey == "" {
				return domain.ErrValidation("relationship %s.%s: target %q has no identity column; set target_key", def.Name, rd.Name, target.Name)
			}
			tk, ok := target.Column(targetKey)
			if !ok {
				return domain.ErrPathResolution(target.Name, targetKey, "relationship %s.%s: unknown target key %q", def.Name, rd.Name, targetKey)
			}
			if sk.IsMetric() || tk.IsMetric() {
				return domain.ErrValidation("relationship %s.%s: join keys must not be metrics", def.Name, rd.Name)
			}
			r.SourceKey, r.TargetKey = sk, tk
		}

		src.relationships = append(src.relationships, r)
		src.relByName[r.Name] = r
	}
	return nil
}

// Table looks up a table by logical name.
func (g *Graph) Table(name string) (*Table, error) {
	t, ok := g.tables[name]
	if !ok {
		return nil, domain.ErrNotFound("table %q not found", name)
	}
	return t, nil
}

// Tables returns all tables sorted by name.
func (g *Graph) Tables() []*Table {
	out := make([]*Table, 0, len(g.names))
	for _, n := range g.names {
		out = append(out, g.tables[n])
	}
	return out
}

// MaxExpansionDepth returns the template expansion bound.
func (g *Graph) MaxExpansionDepth() int { return g.maxDepth }
