// Command semq-schema-gen generates JSON Schema artifacts for the Table and
// Query YAML documents.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"duck-semantic/internal/declarative"
	"duck-semantic/internal/domain"
)

var (
	columnKinds = []string{
		string(domain.ColumnKindDimension),
		string(domain.ColumnKindTimeDimension),
		string(domain.ColumnKindMetric),
	}
	valueTypes = []string{
		string(domain.ValueTypeText),
		string(domain.ValueTypeInteger),
		string(domain.ValueTypeDecimal),
		string(domain.ValueTypeBoolean),
		string(domain.ValueTypeDate),
		string(domain.ValueTypeTimestamp),
	}
	aggregations = []string{
		string(domain.AggregationSum),
		string(domain.AggregationCount),
		string(domain.AggregationCountDistinct),
		string(domain.AggregationAverage),
		string(domain.AggregationMin),
		string(domain.AggregationMax),
	}
	grains = []string{
		string(domain.TimeGrainDay),
		string(domain.TimeGrainWeek),
		string(domain.TimeGrainMonth),
		string(domain.TimeGrainQuarter),
		string(domain.TimeGrainYear),
	}
	cardinalities = []string{
		string(domain.CardinalityToOne),
		string(domain.CardinalityToMany),
	}
	operators = []string{
		string(domain.OpEqual), string(domain.OpNotEqual),
		string(domain.OpLessThan), string(domain.OpLessEqual),
		string(domain.OpGreaterThan), string(domain.OpGreaterEqual),
		string(domain.OpBetween), string(domain.OpIn), string(domain.OpNotIn),
		string(domain.OpPrefix), string(domain.OpPostfix), string(domain.OpInfix),
		string(domain.OpIsNull), string(domain.OpNotNull),
	}
	directions = []string{"ASC", "DESC"}
)

type schemaGenerator struct {
	defs map[string]map[string]interface{}
}

func newSchemaGenerator() *schemaGenerator {
	return &schemaGenerator{defs: make(map[string]map[string]interface{})}
}

func (g *schemaGenerator) typeSchema(t reflect.Type) map[string]interface{} {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		return map[string]interface{}{"type": "string"}
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]interface{}{"type": "array", "items": g.typeSchema(t.Elem())}
	case reflect.Map:
		return map[string]interface{}{"type": "object", "additionalProperties": g.typeSchema(t.Elem())}
	case reflect.Struct:
		name := t.Name()
		if name == "" {
			return map[string]interface{}{"type": "object", "additionalProperties": true}
		}
		if _, ok := g.defs[name]; !ok {
			// Reserve the name first; filter trees refer to themselves.
			g.defs[name] = map[string]interface{}{}
			g.defs[name] = g.buildStructDefinition(t)
		}
		return map[string]interface{}{"$ref": "#/$defs/" + name}
	default:
		return map[string]interface{}{}
	}
}

func (g *schemaGenerator) buildStructDefinition(t reflect.Type) map[string]interface{} {
	properties := map[string]interface{}{}
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("yaml")
		if tag == "-" {
			continue
		}

		name, omitEmpty := yamlFieldName(field.Name, tag)
		if name == "" {
			continue
		}

		properties[name] = g.typeSchema(field.Type)
		if !omitEmpty && field.Type.Kind() != reflect.Pointer && field.Type.Kind() != reflect.Slice &&
			field.Type.Kind() != reflect.Map && field.Type.Kind() != reflect.Interface {
			required = append(required, name)
		}
	}

	sort.Strings(required)

	definition := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		definition["required"] = required
	}

	return definition
}

func yamlFieldName(fieldName, yamlTag string) (string, bool) {
	if yamlTag == "" {
		return lowerFirst(fieldName), false
	}
	parts := strings.Split(yamlTag, ",")
	name := parts[0]
	omitEmpty := false
	for _, part := range parts[1:] {
		if part == "omitempty" {
			omitEmpty = true
			break
		}
	}
	return name, omitEmpty
}

func lowerFirst(value string) string {
	if value == "" {
		return value
	}
	return strings.ToLower(value[:1]) + value[1:]
}

func getDefProperty(defs map[string]map[string]interface{}, defName, propName string) map[string]interface{} {
	def, ok := defs[defName]
	if !ok {
		return nil
	}
	props, ok := def["properties"].(map[string]interface{})
	if !ok {
		return nil
	}
	prop, ok := props[propName].(map[string]interface{})
	if !ok {
		return nil
	}
	return prop
}

// caseInsensitive lists values in upper and lower case; the loader accepts both.
func caseInsensitive(values []string) []string {
	out := make([]string, 0, 2*len(values))
	out = append(out, values...)
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}

func setStringEnum(defs map[string]map[string]interface{}, defName, propName string, values []string) {
	prop := getDefProperty(defs, defName, propName)
	if prop == nil {
		return
	}
	if items, ok := prop["items"].(map[string]interface{}); ok {
		items["enum"] = caseInsensitive(values)
		return
	}
	prop["enum"] = caseInsensitive(values)
}

func applyKindConstraints(kind string, defs map[string]map[string]interface{}) {
	switch kind {
	case declarative.KindTable:
		setStringEnum(defs, "ColumnSpec", "kind", columnKinds)
		setStringEnum(defs, "ColumnSpec", "type", valueTypes)
		setStringEnum(defs, "ColumnSpec", "aggregation", aggregations)
		setStringEnum(defs, "ColumnSpec", "grains", grains)
		setStringEnum(defs, "RelationshipSpec", "cardinality", cardinalities)

		if rel, ok := defs["RelationshipSpec"]; ok {
			rel["oneOf"] = []interface{}{
				map[string]interface{}{"required": []string{"source_key"}},
				map[string]interface{}{"required": []string{"on"}},
			}
		}

	case declarative.KindQuery:
		setStringEnum(defs, "DimensionSpec", "grain", grains)
		setStringEnum(defs, "FilterSpec", "op", operators)
		setStringEnum(defs, "SortSpec", "direction", directions)

		// A dimension may also be written as a bare field path.
		if dim, ok := defs["DimensionSpec"]; ok {
			defs["DimensionSpec"] = map[string]interface{}{
				"oneOf": []interface{}{
					map[string]interface{}{"type": "string"},
					dim,
				},
			}
		}
		if filter, ok := defs["FilterSpec"]; ok {
			filter["oneOf"] = []interface{}{
				map[string]interface{}{"required": []string{"and"}},
				map[string]interface{}{"required": []string{"or"}},
				map[string]interface{}{"required": []string{"not"}},
				map[string]interface{}{"required": []string{"field", "op"}},
			}
		}
	}
}

func encodeCanonicalJSON(path string, content interface{}) (string, error) {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// generate writes one schema per document kind, a union schema and a
// checksum manifest under outDir.
func generate(outDir string) error {
	kindsDir := filepath.Join(outDir, "kinds")
	if err := os.MkdirAll(kindsDir, 0o750); err != nil {
		return fmt.Errorf("create output directories: %w", err)
	}

	registry := declarative.SchemaDocumentTypes()
	checksums := map[string]string{}
	oneOf := make([]map[string]interface{}, 0, len(registry))

	for _, doc := range registry {
		gen := newSchemaGenerator()
		rootRef := gen.typeSchema(doc.Type)

		schema := map[string]interface{}{
			"$schema": "https://json-schema.org/draft/2020-12/schema",
			"$id":     "schemas/semq/v1/kinds/" + doc.FileName + ".schema.json",
			"title":   "semq " + doc.Kind,
			"allOf":   []map[string]interface{}{rootRef},
			"$defs":   gen.defs,
		}

		if def, ok := gen.defs[doc.Type.Name()]; ok {
			if props, ok := def["properties"].(map[string]interface{}); ok {
				if apiVersion, ok := props["apiVersion"].(map[string]interface{}); ok {
					apiVersion["enum"] = []string{declarative.SupportedAPIVersion}
				}
				if kind, ok := props["kind"].(map[string]interface{}); ok {
					kind["enum"] = []string{doc.Kind}
				}
			}
		}

		applyKindConstraints(doc.Kind, gen.defs)

		relPath := filepath.ToSlash(filepath.Join("kinds", doc.FileName+".schema.json"))
		hash, err := encodeCanonicalJSON(filepath.Join(outDir, relPath), schema)
		if err != nil {
			return err
		}
		checksums[relPath] = hash

		oneOf = append(oneOf, map[string]interface{}{"$ref": relPath})
	}

	rootSchema := map[string]interface{}{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         "schemas/semq/v1/semq.schema.json",
		"title":       "semq document",
		"description": "Union schema for all semq/v1 YAML documents.",
		"oneOf":       oneOf,
	}
	rootHash, err := encodeCanonicalJSON(filepath.Join(outDir, "semq.schema.json"), rootSchema)
	if err != nil {
		return err
	}
	checksums["semq.schema.json"] = rootHash

	manifest := map[string]interface{}{
		"version":    "v1",
		"apiVersion": declarative.SupportedAPIVersion,
		"files":      checksums,
	}
	_, err = encodeCanonicalJSON(filepath.Join(outDir, "index.json"), manifest)
	return err
}

func main() {
	var outDir string
	flag.StringVar(&outDir, "outdir", "schemas/semq/v1", "Output schema directory")
	flag.Parse()

	if err := generate(outDir); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
