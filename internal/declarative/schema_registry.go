package declarative

import "reflect"

// SchemaDocumentType describes one YAML document type used for generated
// JSON Schema artifacts.
type SchemaDocumentType struct {
	Kind     string
	FileName string
	Type     reflect.Type
}

// SchemaDocumentTypes returns all supported document envelopes for schema
// generation.
func SchemaDocumentTypes() []SchemaDocumentType {
	return []SchemaDocumentType{
		{Kind: KindTable, FileName: "table", Type: reflect.TypeOf(TableDoc{})},
		{Kind: KindQuery, FileName: "query", Type: reflect.TypeOf(QueryDoc{})},
	}
}
