// Package domain defines core types, interfaces, and errors for the semantic query compiler.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// PathResolutionError indicates a field or relationship that does not exist
// on the table it was looked up against.
type PathResolutionError struct {
	Table   string
	Path    string
	Message string
}

func (e *PathResolutionError) Error() string { return e.Message }

// CyclicDefinitionError indicates a column or join template that transitively
// references itself. Chain lists the visited definitions, closing on the repeat.
type CyclicDefinitionError struct {
	Chain   []string
	Message string
}

func (e *CyclicDefinitionError) Error() string { return e.Message }

// AmbiguousOrderingError indicates a sort that cannot be expressed alongside
// mandatory row deduplication.
type AmbiguousOrderingError struct {
	SortPath string
	Message  string
}

func (e *AmbiguousOrderingError) Error() string { return e.Message }

// UnsupportedOperatorError indicates a filter operator that is not valid for the
// value type of the column it is applied to.
type UnsupportedOperatorError struct {
	Operator  FilterOperator
	ValueType ValueType
	Message   string
}

func (e *UnsupportedOperatorError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrPathResolution creates a PathResolutionError for path on table.
func ErrPathResolution(table, path, format string, args ...interface{}) *PathResolutionError {
	return &PathResolutionError{Table: table, Path: path, Message: fmt.Sprintf(format, args...)}
}

// ErrCyclicDefinition creates a CyclicDefinitionError from the resolution chain.
func ErrCyclicDefinition(chain []string) *CyclicDefinitionError {
	return &CyclicDefinitionError{
		Chain:   chain,
		Message: fmt.Sprintf("cyclic definition: %s", strings.Join(chain, " -> ")),
	}
}

// ErrAmbiguousOrdering creates an AmbiguousOrderingError for sortPath.
func ErrAmbiguousOrdering(sortPath, format string, args ...interface{}) *AmbiguousOrderingError {
	return &AmbiguousOrderingError{SortPath: sortPath, Message: fmt.Sprintf(format, args...)}
}

// ErrUnsupportedOperator creates an UnsupportedOperatorError.
func ErrUnsupportedOperator(op FilterOperator, vt ValueType, path string) *UnsupportedOperatorError {
	return &UnsupportedOperatorError{
		Operator:  op,
		ValueType: vt,
		Message:   fmt.Sprintf("operator %s is not supported on %s field %q", op, vt, path),
	}
}

// Error kinds reported by ErrorKind.
const (
	KindNotFound          = "not_found"
	KindValidation        = "validation"
	KindConflict          = "conflict"
	KindPathResolution    = "path_resolution"
	KindCyclicDefinition  = "cyclic_definition"
	KindAmbiguousOrdering = "ambiguous_ordering"
	KindUnsupportedOp     = "unsupported_operator"
	KindInternal          = "internal"
)

// ErrorKind classifies err into a stable kind string for logs, metrics and
// CLI output. Unknown errors are reported as KindInternal.
func ErrorKind(err error) string {
	var (
		notFound   *NotFoundError
		validation *ValidationError
		conflict   *ConflictError
		path       *PathResolutionError
		cyclic     *CyclicDefinitionError
		ambiguous  *AmbiguousOrderingError
		unsupOp    *UnsupportedOperatorError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &path):
		return KindPathResolution
	case errors.As(err, &cyclic):
		return KindCyclicDefinition
	case errors.As(err, &ambiguous):
		return KindAmbiguousOrdering
	case errors.As(err, &unsupOp):
		return KindUnsupportedOp
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &conflict):
		return KindConflict
	default:
		return KindInternal
	}
}
