package declarative

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SupportedAPIVersion is the current API version for YAML documents.
const SupportedAPIVersion = "semq/v1"

// Document kinds.
const (
	KindTable = "Table"
	KindQuery = "Query"
)

// Document is the generic envelope parsed first to determine Kind.
type Document struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
}

// ObjectMeta holds common metadata for named resources.
type ObjectMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// === Schema ===

// TableDoc declares one logical table.
type TableDoc struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Metadata   ObjectMeta `yaml:"metadata"`
	Spec       TableSpec  `yaml:"spec"`
}

// TableSpec describes the physical relation and fields of a table.
type TableSpec struct {
	PhysicalName  string             `yaml:"physical_name"`
	IDColumn      string             `yaml:"id_column,omitempty"`
	Columns       []ColumnSpec       `yaml:"columns"`
	Relationships []RelationshipSpec `yaml:"relationships,omitempty"`
}

// ColumnSpec describes a dimension, time dimension or metric. Kind defaults
// to METRIC when an aggregation is set and DIMENSION otherwise.
type ColumnSpec struct {
	Name         string   `yaml:"name"`
	DisplayName  string   `yaml:"display_name,omitempty"`
	Kind         string   `yaml:"kind,omitempty"`
	Type         string   `yaml:"type"`
	PhysicalName string   `yaml:"physical_name,omitempty"`
	Expression   string   `yaml:"expression,omitempty"`
	JoinPath     string   `yaml:"join_path,omitempty"`
	Aggregation  string   `yaml:"aggregation,omitempty"`
	Grains       []string `yaml:"grains,omitempty"`
}

// RelationshipSpec describes a join edge. Either SourceKey or On is set.
type RelationshipSpec struct {
	Name        string `yaml:"name"`
	Target      string `yaml:"target"`
	Cardinality string `yaml:"cardinality"`
	Optional    bool   `yaml:"optional,omitempty"`
	SourceKey   string `yaml:"source_key,omitempty"`
	TargetKey   string `yaml:"target_key,omitempty"`
	On          string `yaml:"on,omitempty"`
}

// === Requests ===

// QueryDoc declares one analytic request.
type QueryDoc struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Metadata   ObjectMeta `yaml:"metadata,omitempty"`
	Spec       QuerySpec  `yaml:"spec"`
}

// QuerySpec is the YAML form of domain.QueryRequest.
type QuerySpec struct {
	Table      string          `yaml:"table"`
	Dimensions []DimensionSpec `yaml:"dimensions,omitempty"`
	Metrics    []string        `yaml:"metrics,omitempty"`
	Filter     *FilterSpec     `yaml:"filter,omitempty"`
	Having     *FilterSpec     `yaml:"having,omitempty"`
	Sort       []SortSpec      `yaml:"sort,omitempty"`
	Page       *PageSpec       `yaml:"page,omitempty"`
}

// DimensionSpec selects a dimension. It may be written as a bare field path
// or as a mapping with a grain.
type DimensionSpec struct {
	Field string `yaml:"field"`
	Grain string `yaml:"grain,omitempty"`
}

// UnmarshalYAML accepts either a scalar field path or a mapping.
func (d *DimensionSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		d.Field = value.Value
		return nil
	}
	type plain DimensionSpec
	var p plain
	if err := decodeStrict(value, &p); err != nil {
		return err
	}
	*d = DimensionSpec(p)
	return nil
}

// FilterSpec is one node of a filter tree: exactly one of And, Or, Not or
// Field is set. Leaves carry an operator and either Value or Values.
type FilterSpec struct {
	And    []FilterSpec  `yaml:"and,omitempty"`
	Or     []FilterSpec  `yaml:"or,omitempty"`
	Not    *FilterSpec   `yaml:"not,omitempty"`
	Field  string        `yaml:"field,omitempty"`
	Op     string        `yaml:"op,omitempty"`
	Value  interface{}   `yaml:"value,omitempty"`
	Values []interface{} `yaml:"values,omitempty"`
}

// SortSpec orders by a field; Direction defaults to ASC.
type SortSpec struct {
	Field     string `yaml:"field"`
	Direction string `yaml:"direction,omitempty"`
}

// PageSpec restricts the result window.
type PageSpec struct {
	Offset int  `yaml:"offset,omitempty"`
	Limit  int  `yaml:"limit"`
	Total  bool `yaml:"total,omitempty"`
}

// decodeStrict decodes node into out, rejecting unknown fields.
func decodeStrict(node *yaml.Node, out interface{}) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("re-encode node: %w", err)
	}
	return decode(data, out, LoadOptions{})
}
