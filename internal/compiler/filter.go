package compiler

import (
	"fmt"
	"reflect"
	"strings"

	"duck-semantic/internal/domain"
	"duck-semantic/internal/metadata"
)

// paramBinder hands out positional placeholders in emission order.
type paramBinder struct {
	params []domain.QueryParameter
}

func (b *paramBinder) bind(v interface{}) string {
	n := len(b.params) + 1
	b.params = append(b.params, domain.QueryParameter{Name: domain.ParameterName(n), Value: v})
	return fmt.Sprintf("$%d", n)
}

// filterTranslator renders a predicate tree as clause text with bound
// parameters, collecting the join paths its leaves touch.
type filterTranslator struct {
	c      *Compiler
	root   *metadata.JoinPath
	binder *paramBinder
	having bool
	paths  []*metadata.JoinPath
}

func (f *filterTranslator) translate(expr domain.FilterExpression) (string, error) {
	if isNil(expr) {
		return "", domain.ErrValidation("filter expression has an empty operand")
	}
	switch e := expr.(type) {
	case *domain.AndExpression:
		return f.binary("AND", e.Left, e.Right)
	case *domain.OrExpression:
		return f.binary("OR", e.Left, e.Right)
	case *domain.NotExpression:
		inner, err := f.translate(e.Negated)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case *domain.FilterPredicate:
		return f.predicate(e)
	default:
		return "", domain.ErrValidation("unsupported filter expression %T", expr)
	}
}

func (f *filterTranslator) binary(op string, l, r domain.FilterExpression) (string, error) {
	left, err := f.translate(l)
	if err != nil {
		return "", err
	}
	right, err := f.translate(r)
	if err != nil {
		return "", err
	}
	return "(" + left + " " + op + " " + right + ")", nil
}

func (f *filterTranslator) predicate(p *domain.FilterPredicate) (string, error) {
	jp, col, err := f.c.graph.ResolveField(f.root.Target(), p.Path)
	if err != nil {
		return "", err
	}
	if f.having {
		if !col.IsMetric() {
			return "", domain.ErrValidation("having filter on %q: only metrics can be filtered after aggregation", p.Path)
		}
		if !jp.IsRoot() {
			return "", domain.ErrValidation("having filter on %q: metric must belong to table %q", p.Path, f.root.Target().Name)
		}
	} else if col.IsMetric() {
		return "", domain.ErrValidation("filter on metric %q must be a having filter", p.Path)
	}

	if err := checkOperator(p, col.ValueType); err != nil {
		return "", err
	}

	ref, err := f.c.resolve(f.root.Concat(jp), col)
	if err != nil {
		return "", err
	}
	f.paths = mergePaths(f.paths, ref.paths)

	x := ref.expr
	if f.having {
		x = aggregate(col.Aggregation, x)
	}
	return f.clause(x, p)
}

func (f *filterTranslator) clause(x string, p *domain.FilterPredicate) (string, error) {
	switch p.Operator {
	case domain.OpEqual:
		return x + " = " + f.binder.bind(p.Values[0]), nil
	case domain.OpNotEqual:
		return x + " <> " + f.binder.bind(p.Values[0]), nil
	case domain.OpLessThan:
		return x + " < " + f.binder.bind(p.Values[0]), nil
	case domain.OpLessEqual:
		return x + " <= " + f.binder.bind(p.Values[0]), nil
	case domain.OpGreaterThan:
		return x + " > " + f.binder.bind(p.Values[0]), nil
	case domain.OpGreaterEqual:
		return x + " >= " + f.binder.bind(p.Values[0]), nil
	case domain.OpBetween:
		lo := f.binder.bind(p.Values[0])
		hi := f.binder.bind(p.Values[1])
		return x + " BETWEEN " + lo + " AND " + hi, nil
	case domain.OpIn, domain.OpNotIn:
		if len(p.Values) == 0 {
			if p.Operator == domain.OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		placeholders := make([]string, len(p.Values))
		for i, v := range p.Values {
			placeholders[i] = f.binder.bind(v)
		}
		op := " IN ("
		if p.Operator == domain.OpNotIn {
			op = " NOT IN ("
		}
		return x + op + strings.Join(placeholders, ", ") + ")", nil
	case domain.OpPrefix, domain.OpPostfix, domain.OpInfix:
		pattern := escapeLike(p.Values[0].(string))
		switch p.Operator {
		case domain.OpPrefix:
			pattern += "%"
		case domain.OpPostfix:
			pattern = "%" + pattern
		default:
			pattern = "%" + pattern + "%"
		}
		return x + " LIKE " + f.binder.bind(pattern) + ` ESCAPE '\'`, nil
	case domain.OpIsNull:
		return x + " IS NULL", nil
	case domain.OpNotNull:
		return x + " IS NOT NULL", nil
	}
	return "", domain.ErrValidation("unknown filter operator %q", p.Operator)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// checkOperator validates the operator against the field type and the operand list.
func checkOperator(p *domain.FilterPredicate, vt domain.ValueType) error {
	want := -1 // any count
	switch p.Operator {
	case domain.OpEqual, domain.OpNotEqual:
		want = 1
	case domain.OpLessThan, domain.OpLessEqual, domain.OpGreaterThan, domain.OpGreaterEqual:
		if vt == domain.ValueTypeBoolean {
			return domain.ErrUnsupportedOperator(p.Operator, vt, p.Path)
		}
		want = 1
	case domain.OpBetween:
		if vt == domain.ValueTypeBoolean {
			return domain.ErrUnsupportedOperator(p.Operator, vt, p.Path)
		}
		want = 2
	case domain.OpIn, domain.OpNotIn:
	case domain.OpPrefix, domain.OpPostfix, domain.OpInfix:
		if vt != domain.ValueTypeText {
			return domain.ErrUnsupportedOperator(p.Operator, vt, p.Path)
		}
		want = 1
	case domain.OpIsNull, domain.OpNotNull:
		want = 0
	default:
		return domain.ErrValidation("filter on %q: unknown operator %q", p.Path, p.Operator)
	}

	if want >= 0 && len(p.Values) != want {
		return domain.ErrValidation("filter on %q: operator %s takes %d operand(s), got %d", p.Path, p.Operator, want, len(p.Values))
	}
	for i, v := range p.Values {
		if v == nil {
			return domain.ErrValidation("filter on %q: operand %d is nil; use ISNULL or NOTNULL", p.Path, i+1)
		}
	}
	switch p.Operator {
	case domain.OpPrefix, domain.OpPostfix, domain.OpInfix:
		if _, ok := p.Values[0].(string); !ok {
			return domain.ErrValidation("filter on %q: operator %s takes a string operand, got %T", p.Path, p.Operator, p.Values[0])
		}
	}
	return nil
}

// isNil reports whether expr is nil or a typed nil pointer.
func isNil(expr domain.FilterExpression) bool {
	if expr == nil {
		return true
	}
	v := reflect.ValueOf(expr)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
