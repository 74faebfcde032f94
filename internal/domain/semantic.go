package domain

import (
	"regexp"
	"unicode/utf8"
)

const (
	MaxSemanticNameLength = 255

	// DefaultIdentityColumn is used when a table definition leaves IDColumn empty
	// and declares a column with this name.
	DefaultIdentityColumn = "id"
)

// ColumnKind tags the variant of a semantic column.
type ColumnKind string

const (
	ColumnKindDimension     ColumnKind = "DIMENSION"
	ColumnKindTimeDimension ColumnKind = "TIME_DIMENSION"
	ColumnKindMetric        ColumnKind = "METRIC"
)

// ValueType is the logical value type of a column.
type ValueType string

const (
	ValueTypeText      ValueType = "TEXT"
	ValueTypeInteger   ValueType = "INTEGER"
	ValueTypeDecimal   ValueType = "DECIMAL"
	ValueTypeBoolean   ValueType = "BOOLEAN"
	ValueTypeDate      ValueType = "DATE"
	ValueTypeTimestamp ValueType = "TIMESTAMP"
)

// AggregationFunction is the aggregation a metric applies to its expression.
type AggregationFunction string

const (
	AggregationSum           AggregationFunction = "SUM"
	AggregationCount         AggregationFunction = "COUNT"
	AggregationCountDistinct AggregationFunction = "COUNT_DISTINCT"
	AggregationAverage       AggregationFunction = "AVG"
	AggregationMin           AggregationFunction = "MIN"
	AggregationMax           AggregationFunction = "MAX"
)

// Idempotent reports whether the aggregation yields the same result when its
// input rows are duplicated by a fan-out join.
func (a AggregationFunction) Idempotent() bool {
	switch a {
	case AggregationMin, AggregationMax, AggregationCountDistinct:
		return true
	default:
		return false
	}
}

// TimeGrain truncates a time dimension.
type TimeGrain string

const (
	TimeGrainDay     TimeGrain = "DAY"
	TimeGrainWeek    TimeGrain = "WEEK"
	TimeGrainMonth   TimeGrain = "MONTH"
	TimeGrainQuarter TimeGrain = "QUARTER"
	TimeGrainYear    TimeGrain = "YEAR"
)

// Cardinality describes how many target rows a relationship reaches per source row.
type Cardinality string

const (
	CardinalityToOne  Cardinality = "TO_ONE"
	CardinalityToMany Cardinality = "TO_MANY"
)

var (
	validValueTypes = map[ValueType]bool{
		ValueTypeText: true, ValueTypeInteger: true, ValueTypeDecimal: true,
		ValueTypeBoolean: true, ValueTypeDate: true, ValueTypeTimestamp: true,
	}
	validAggregations = map[AggregationFunction]bool{
		AggregationSum: true, AggregationCount: true, AggregationCountDistinct: true,
		AggregationAverage: true, AggregationMin: true, AggregationMax: true,
	}
	validGrains = map[TimeGrain]bool{
		TimeGrainDay: true, TimeGrainWeek: true, TimeGrainMonth: true,
		TimeGrainQuarter: true, TimeGrainYear: true,
	}

	// Logical names become SQL aliases, so they are restricted to identifiers.
	namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	// Physical relations may be schema qualified.
	relationPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*){0,2}$`)
)

// ValidGrain reports whether g is a known time grain.
func ValidGrain(g TimeGrain) bool { return validGrains[g] }

// TableDefinition is the declarative description of a logical table, as read
// from YAML or the metastore.
type TableDefinition struct {
	ID            string
	Name          string
	Description   string
	PhysicalName  string
	IDColumn      string
	Columns       []ColumnDefinition
	Relationships []RelationshipDefinition
}

// ColumnDefinition describes one logical column of a table.
type ColumnDefinition struct {
	Name         string
	DisplayName  string
	Kind         ColumnKind
	ValueType    ValueType
	PhysicalName string
	Expression   string // template with {{path}} placeholders
	JoinPath     string // dotted path whose value this column takes
	Aggregation  AggregationFunction
	Grains       []TimeGrain // first entry is the default grain
}

// RelationshipDefinition describes a join edge from the owning table to Target.
type RelationshipDefinition struct {
	Name         string
	Target       string
	Cardinality  Cardinality
	Optional     bool
	SourceKey    string // column on the owning table
	TargetKey    string // column on the target table, defaults to its identity column
	JoinTemplate string // custom ON clause with {{path}} placeholders
}

// Validate checks that the table definition is well-formed in isolation.
// Cross-table references are checked when the metadata graph is built.
func (t *TableDefinition) Validate() error {
	if err := validateName("table name", t.Name); err != nil {
		return err
	}
	if t.PhysicalName == "" {
		return ErrValidation("table %q: physical_name is required", t.Name)
	}
	if !relationPattern.MatchString(t.PhysicalName) {
		return ErrValidation("table %q: physical_name %q is not a valid relation name", t.Name, t.PhysicalName)
	}
	if len(t.Columns) == 0 {
		return ErrValidation("table %q: at least one column is required", t.Name)
	}

	fields := make(map[string]bool, len(t.Columns)+len(t.Relationships))
	for i := range t.Columns {
		c := &t.Columns[i]
		if err := c.Validate(); err != nil {
			return ErrValidation("table %q: %s", t.Name, err.Error())
		}
		if fields[c.Name] {
			return ErrValidation("table %q: duplicate field %q", t.Name, c.Name)
		}
		fields[c.Name] = true
	}
	for i := range t.Relationships {
		r := &t.Relationships[i]
		if err := r.Validate(); err != nil {
			return ErrValidation("table %q: %s", t.Name, err.Error())
		}
		if fields[r.Name] {
			return ErrValidation("table %q: duplicate field %q", t.Name, r.Name)
		}
		fields[r.Name] = true
	}
	if t.IDColumn != "" && !hasColumn(t.Columns, t.IDColumn) {
		return ErrValidation("table %q: id_column %q is not a declared column", t.Name, t.IDColumn)
	}
	return nil
}

// IdentityColumn returns the declared identity column, falling back to a
// column named DefaultIdentityColumn. Empty means the table has no identity.
func (t *TableDefinition) IdentityColumn() string {
	if t.IDColumn != "" {
		return t.IDColumn
	}
	if hasColumn(t.Columns, DefaultIdentityColumn) {
		return DefaultIdentityColumn
	}
	return ""
}

// Validate checks that the column definition is well-formed.
func (c *ColumnDefinition) Validate() error {
	if err := validateName("column name", c.Name); err != nil {
		return err
	}
	switch c.Kind {
	case ColumnKindDimension, ColumnKindTimeDimension, ColumnKindMetric:
	default:
		return ErrValidation("column %q: kind must be DIMENSION, TIME_DIMENSION, or METRIC", c.Name)
	}
	if !validValueTypes[c.ValueType] {
		return ErrValidation("column %q: value_type must be one of TEXT, INTEGER, DECIMAL, BOOLEAN, DATE, TIMESTAMP", c.Name)
	}
	if c.PhysicalName != "" && !namePattern.MatchString(c.PhysicalName) {
		return ErrValidation("column %q: physical_name %q is not a valid identifier", c.Name, c.PhysicalName)
	}
	if c.Expression != "" && c.JoinPath != "" {
		return ErrValidation("column %q: expression and join_path are mutually exclusive", c.Name)
	}
	if c.Expression != "" && c.PhysicalName != "" {
		return ErrValidation("column %q: expression and physical_name are mutually exclusive", c.Name)
	}

	if c.Kind == ColumnKindMetric {
		if !validAggregations[c.Aggregation] {
			return ErrValidation("metric %q: aggregation must be one of SUM, COUNT, COUNT_DISTINCT, AVG, MIN, MAX", c.Name)
		}
		if c.JoinPath != "" {
			return ErrValidation("metric %q: join_path is not supported on metrics", c.Name)
		}
	} else if c.Aggregation != "" {
		return ErrValidation("column %q: aggregation is only valid on metrics", c.Name)
	}

	if c.Kind == ColumnKindTimeDimension {
		if c.ValueType != ValueTypeDate && c.ValueType != ValueTypeTimestamp {
			return ErrValidation("time dimension %q: value_type must be DATE or TIMESTAMP", c.Name)
		}
		for _, g := range c.Grains {
			if !validGrains[g] {
				return ErrValidation("time dimension %q: unknown grain %q", c.Name, g)
			}
		}
	} else if len(c.Grains) > 0 {
		return ErrValidation("column %q: grains are only valid on time dimensions", c.Name)
	}
	return nil
}

// Validate checks that the relationship definition is well-formed.
func (r *RelationshipDefinition) Validate() error {
	if err := validateName("relationship name", r.Name); err != nil {
		return err
	}
	if r.Target == "" {
		return ErrValidation("relationship %q: target is required", r.Name)
	}
	if r.Cardinality != CardinalityToOne && r.Cardinality != CardinalityToMany {
		return ErrValidation("relationship %q: cardinality must be TO_ONE or TO_MANY", r.Name)
	}
	if r.JoinTemplate == "" && r.SourceKey == "" {
		return ErrValidation("relationship %q: either source_key or join_template is required", r.Name)
	}
	if r.JoinTemplate != "" && (r.SourceKey != "" || r.TargetKey != "") {
		return ErrValidation("relationship %q: join_template and key columns are mutually exclusive", r.Name)
	}
	return nil
}

func validateName(what, name string) error {
	if name == "" {
		return ErrValidation("%s is required", what)
	}
	if utf8.RuneCountInString(name) > MaxSemanticNameLength {
		return ErrValidation("%s must be <= %d characters", what, MaxSemanticNameLength)
	}
	if !namePattern.MatchString(name) {
		return ErrValidation("%s %q must match %s", what, name, namePattern.String())
	}
	return nil
}

func hasColumn(cols []ColumnDefinition, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}
