package declarative

import (
	"strings"

	"duck-semantic/internal/domain"
)

// ToDomain converts the document into a table definition.
func (d *TableDoc) ToDomain() (*domain.TableDefinition, error) {
	def := &domain.TableDefinition{
		Name:         d.Metadata.Name,
		Description:  d.Metadata.Description,
		PhysicalName: d.Spec.PhysicalName,
		IDColumn:     d.Spec.IDColumn,
	}
	for _, c := range d.Spec.Columns {
		def.Columns = append(def.Columns, c.toDomain())
	}
	for _, r := range d.Spec.Relationships {
		def.Relationships = append(def.Relationships, domain.RelationshipDefinition{
			Name:         r.Name,
			Target:       r.Target,
			Cardinality:  domain.Cardinality(upper(r.Cardinality)),
			Optional:     r.Optional,
			SourceKey:    r.SourceKey,
			TargetKey:    r.TargetKey,
			JoinTemplate: r.On,
		})
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (c ColumnSpec) toDomain() domain.ColumnDefinition {
	kind := domain.ColumnKind(upper(c.Kind))
	if kind == "" {
		if c.Aggregation != "" {
			kind = domain.ColumnKindMetric
		} else {
			kind = domain.ColumnKindDimension
		}
	}
	col := domain.ColumnDefinition{
		Name:         c.Name,
		DisplayName:  c.DisplayName,
		Kind:         kind,
		ValueType:    domain.ValueType(upper(c.Type)),
		PhysicalName: c.PhysicalName,
		Expression:   c.Expression,
		JoinPath:     c.JoinPath,
		Aggregation:  domain.AggregationFunction(upper(c.Aggregation)),
	}
	for _, g := range c.Grains {
		col.Grains = append(col.Grains, domain.TimeGrain(upper(g)))
	}
	return col
}

// FromDomain converts a table definition back into its document form.
func FromDomain(def *domain.TableDefinition) TableDoc {
	doc := TableDoc{
		APIVersion: SupportedAPIVersion,
		Kind:       KindTable,
		Metadata:   ObjectMeta{Name: def.Name, Description: def.Description},
		Spec: TableSpec{
			PhysicalName: def.PhysicalName,
			IDColumn:     def.IDColumn,
		},
	}
	for _, c := range def.Columns {
		spec := ColumnSpec{
			Name:         c.Name,
			DisplayName:  c.DisplayName,
			Type:         string(c.ValueType),
			PhysicalName: c.PhysicalName,
			Expression:   c.Expression,
			JoinPath:     c.JoinPath,
			Aggregation:  string(c.Aggregation),
		}
		// Kind is implied for plain dimensions and aggregated metrics.
		if c.Kind == domain.ColumnKindTimeDimension {
			spec.Kind = string(c.Kind)
		}
		for _, g := range c.Grains {
			spec.Grains = append(spec.Grains, string(g))
		}
		doc.Spec.Columns = append(doc.Spec.Columns, spec)
	}
	for _, r := range def.Relationships {
		doc.Spec.Relationships = append(doc.Spec.Relationships, RelationshipSpec{
			Name:        r.Name,
			Target:      r.Target,
			Cardinality: string(r.Cardinality),
			Optional:    r.Optional,
			SourceKey:   r.SourceKey,
			TargetKey:   r.TargetKey,
			On:          r.JoinTemplate,
		})
	}
	return doc
}

// ToDomain converts the query spec into a request and validates its shape.
func (s *QuerySpec) ToDomain() (*domain.QueryRequest, error) {
	req := &domain.QueryRequest{
		Table:   s.Table,
		Metrics: s.Metrics,
	}
	for _, d := range s.Dimensions {
		req.Dimensions = append(req.Dimensions, domain.DimensionSelection{
			Path:  d.Field,
			Grain: domain.TimeGrain(upper(d.Grain)),
		})
	}

	var err error
	if req.Filter, err = s.Filter.toDomain("filter"); err != nil {
		return nil, err
	}
	if req.Having, err = s.Having.toDomain("having"); err != nil {
		return nil, err
	}

	for _, srt := range s.Sort {
		dir := domain.SortDirection(upper(srt.Direction))
		if dir == "" {
			dir = domain.SortAscending
		}
		req.Sorting = append(req.Sorting, domain.SortField{Path: srt.Field, Direction: dir})
	}
	if s.Page != nil {
		req.Pagination = &domain.Pagination{
			Offset:            s.Page.Offset,
			Limit:             s.Page.Limit,
			IncludeTotalCount: s.Page.Total,
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// toDomain converts a filter node. A nil node is no filter.
func (f *FilterSpec) toDomain(at string) (domain.FilterExpression, error) {
	if f == nil {
		return nil, nil
	}

	set := 0
	if len(f.And) > 0 {
		set++
	}
	if len(f.Or) > 0 {
		set++
	}
	if f.Not != nil {
		set++
	}
	if f.Field != "" {
		set++
	}
	if set != 1 {
		return nil, domain.ErrValidation("%s: exactly one of and, or, not, field must be set", at)
	}

	switch {
	case len(f.And) > 0:
		children, err := convertChildren(f.And, at+".and")
		if err != nil {
			return nil, err
		}
		return domain.And(children...), nil
	case len(f.Or) > 0:
		children, err := convertChildren(f.Or, at+".or")
		if err != nil {
			return nil, err
		}
		return domain.Or(children...), nil
	case f.Not != nil:
		child, err := f.Not.toDomain(at + ".not")
		if err != nil {
			return nil, err
		}
		return domain.Not(child), nil
	}

	if f.Op == "" {
		return nil, domain.ErrValidation("%s: op is required for field %q", at, f.Field)
	}
	if f.Value != nil && len(f.Values) > 0 {
		return nil, domain.ErrValidation("%s: value and values are mutually exclusive", at)
	}
	values := f.Values
	if f.Value != nil {
		values = []interface{}{f.Value}
	}
	return domain.Predicate(f.Field, domain.FilterOperator(upper(f.Op)), values...), nil
}

func convertChildren(specs []FilterSpec, at string) ([]domain.FilterExpression, error) {
	out := make([]domain.FilterExpression, 0, len(specs))
	for i := range specs {
		child, err := specs[i].toDomain(at)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
