package declarative

import (
	"errors"
	"fmt"
	"path/filepath"

	"duck-semantic/internal/domain"
	"duck-semantic/internal/metadata"
)

// ValidationError represents a single validation problem.
type ValidationError struct {
	Path    string // e.g. "schema/orders.yaml" or "table[orders]"
	Kind    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidateDir loads every schema file in dir and checks the result as a whole.
// Unlike LoadSchemaDir it keeps going past broken files so every problem is
// reported at once.
func ValidateDir(dir string, opts LoadOptions, bindOpts ...metadata.Option) ([]SchemaFile, []ValidationError) {
	paths, err := yamlFiles(dir)
	if err != nil {
		return nil, []ValidationError{{Path: dir, Kind: domain.KindInternal, Message: err.Error()}}
	}
	if len(paths) == 0 {
		return nil, []ValidationError{{Path: dir, Kind: domain.KindValidation, Message: "no schema files found"}}
	}

	var (
		files []SchemaFile
		errs  []ValidationError
	)
	for _, p := range paths {
		def, err := readTable(p, opts)
		if err != nil {
			addErr(&errs, relPath(dir, p), err)
			continue
		}
		files = append(files, SchemaFile{Path: p, Table: *def})
	}
	if len(errs) > 0 {
		return files, errs
	}
	return files, ValidateSchema(files, bindOpts...)
}

// ValidateSchema checks that the loaded files form a consistent graph: unique
// table names, resolvable relationships and acyclic derivations.
func ValidateSchema(files []SchemaFile, bindOpts ...metadata.Option) []ValidationError {
	var errs []ValidationError

	seen := make(map[string]string, len(files))
	defs := make([]domain.TableDefinition, 0, len(files))
	for _, f := range files {
		if prev, ok := seen[f.Table.Name]; ok {
			errs = append(errs, ValidationError{
				Path:    filepath.Base(f.Path),
				Kind:    domain.KindConflict,
				Message: fmt.Sprintf("table %q is already declared in %s", f.Table.Name, filepath.Base(prev)),
			})
			continue
		}
		seen[f.Table.Name] = f.Path
		if err := f.Table.Validate(); err != nil {
			addErr(&errs, filepath.Base(f.Path), err)
			continue
		}
		defs = append(defs, f.Table)
	}
	if len(errs) > 0 {
		return errs
	}

	if _, err := metadata.Bind(defs, bindOpts...); err != nil {
		path := ""
		var pr *domain.PathResolutionError
		if errors.As(err, &pr) && pr.Table != "" {
			path = fmt.Sprintf("table[%s]", pr.Table)
		}
		addErr(&errs, path, err)
	}
	return errs
}

func addErr(errs *[]ValidationError, path string, err error) {
	*errs = append(*errs, ValidationError{Path: path, Kind: domain.ErrorKind(err), Message: err.Error()})
}

func relPath(dir, p string) string {
	if rel, err := filepath.Rel(dir, p); err == nil {
		return rel
	}
	return p
}
