package declarative

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"duck-semantic/internal/domain"
)

// LoadOptions configures YAML loading behavior.
type LoadOptions struct {
	AllowUnknownFields bool
}

// SchemaFile is one table definition together with the file it came from.
type SchemaFile struct {
	Path  string
	Table domain.TableDefinition
}

// LoadSchemaDir reads every *.yaml and *.yml file in dir, in lexical order,
// as a Table document.
func LoadSchemaDir(dir string, opts LoadOptions) ([]domain.TableDefinition, error) {
	files, err := LoadSchemaFiles(dir, opts)
	if err != nil {
		return nil, err
	}
	defs := make([]domain.TableDefinition, len(files))
	for i, f := range files {
		defs[i] = f.Table
	}
	return defs, nil
}

// LoadSchemaFiles is LoadSchemaDir keeping the source path of each table.
func LoadSchemaFiles(dir string, opts LoadOptions) ([]SchemaFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema directory: %s is not a directory", dir)
	}

	paths, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make([]SchemaFile, 0, len(paths))
	for _, p := range paths {
		def, err := LoadTableFile(p, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, SchemaFile{Path: p, Table: *def})
	}
	return out, nil
}

// LoadTableFile reads a single Table document.
func LoadTableFile(path string, opts LoadOptions) (*domain.TableDefinition, error) {
	def, err := readTable(path, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// readTable is LoadTableFile without the path prefix on errors.
func readTable(path string, opts LoadOptions) (*domain.TableDefinition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified schema files
	if err != nil {
		return nil, err
	}
	var doc TableDoc
	if err := decode(data, &doc, opts); err != nil {
		return nil, domain.ErrValidation("parse: %v", err)
	}
	if err := validateDocument(doc.APIVersion, doc.Kind, KindTable); err != nil {
		return nil, err
	}
	return doc.ToDomain()
}

// LoadQueryFile reads a single Query document.
func LoadQueryFile(path string, opts LoadOptions) (*domain.QueryRequest, error) {
	var doc QueryDoc
	if err := loadYAMLFile(path, &doc, opts); err != nil {
		return nil, err
	}
	if err := validateDocument(doc.APIVersion, doc.Kind, KindQuery); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	req, err := doc.Spec.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return req, nil
}

// ParseQuery decodes a Query document from memory.
func ParseQuery(data []byte, opts LoadOptions) (*domain.QueryRequest, error) {
	var doc QueryDoc
	if err := decode(data, &doc, opts); err != nil {
		return nil, domain.ErrValidation("parse query: %v", err)
	}
	if err := validateDocument(doc.APIVersion, doc.Kind, KindQuery); err != nil {
		return nil, err
	}
	return doc.Spec.ToDomain()
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// loadYAMLFile reads and unmarshals a YAML file into the given target.
func loadYAMLFile(path string, target interface{}, opts LoadOptions) error {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified schema files
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := decode(data, target, opts); err != nil {
		return domain.ErrValidation("parse %s: %v", path, err)
	}
	return nil
}

func decode(data []byte, target interface{}, opts LoadOptions) error {
	if opts.AllowUnknownFields {
		return yaml.Unmarshal(data, target)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(target)
}

// validateDocument checks the apiVersion and kind fields.
func validateDocument(apiVersion, kind, expectedKind string) error {
	if apiVersion != SupportedAPIVersion {
		return domain.ErrValidation("unsupported apiVersion %q (expected %q)", apiVersion, SupportedAPIVersion)
	}
	if kind != expectedKind {
		return domain.ErrValidation("unexpected kind %q (expected %q)", kind, expectedKind)
	}
	return nil
}
