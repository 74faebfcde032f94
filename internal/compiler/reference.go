package compiler

import (
	"strings"

	"duck-semantic/internal/domain"
	"duck-semantic/internal/metadata"
)

// reference is a logical column resolved to an alias-qualified physical
// expression, with the join paths the expression needs.
type reference struct {
	expr  string
	paths []*metadata.JoinPath
}

type refKey struct {
	context string
	table   string
	column  string
}

// aliasFor derives the SQL alias of a join path from its signature.
func aliasFor(p *metadata.JoinPath) string {
	return strings.ReplaceAll(p.Signature(), ".", "_")
}

// resolve returns the reference for col evaluated at ctx. col must belong to
// ctx.Target(). Results are memoized per (context signature, column).
func (c *Compiler) resolve(ctx *metadata.JoinPath, col *metadata.Column) (reference, error) {
	return c.resolveWithStack(ctx, col, nil)
}

func (c *Compiler) resolveWithStack(ctx *metadata.JoinPath, col *metadata.Column, stack []string) (reference, error) {
	key := refKey{context: ctx.Signature(), table: col.Table.Name, column: col.Name}
	if cached, ok := c.refs.Load(key); ok {
		return cached.(reference), nil
	}

	name := col.QualifiedName()
	for i, k := range stack {
		if k == name {
			return reference{}, domain.ErrCyclicDefinition(append(append([]string(nil), stack[i:]...), name))
		}
	}
	if len(stack) >= c.graph.MaxExpansionDepth() {
		return reference{}, domain.ErrValidation("expanding %s exceeds the maximum expansion depth %d", name, c.graph.MaxExpansionDepth())
	}
	stack = append(stack, name)

	var (
		ref reference
		err error
	)
	switch {
	case col.HasJoinPath():
		ref, err = c.resolveField(ctx, col, col.JoinPath, stack)
	case col.HasTemplate():
		ref, err = c.expandTemplate(col.Expression, func(path string) (reference, bool, error) {
			return c.resolveFieldNested(ctx, col, path, stack)
		})
	default:
		ref = reference{expr: qualify(aliasFor(ctx), col.PhysicalName)}
		if !ctx.IsRoot() {
			ref.paths = []*metadata.JoinPath{ctx}
		}
	}
	if err != nil {
		return reference{}, err
	}

	c.refs.Store(key, ref)
	return ref, nil
}

// resolveField resolves a path relative to owner, evaluated under ctx.
func (c *Compiler) resolveField(ctx *metadata.JoinPath, owner *metadata.Column, path string, stack []string) (reference, error) {
	ref, _, err := c.resolveFieldNested(ctx, owner, path, stack)
	return ref, err
}

func (c *Compiler) resolveFieldNested(ctx *metadata.JoinPath, owner *metadata.Column, path string, stack []string) (reference, bool, error) {
	jp, target, err := c.graph.ResolveField(owner.Table, path)
	if err != nil {
		return reference{}, false, err
	}
	ref, err := c.resolveWithStack(ctx.Concat(jp), target, stack)
	return ref, target.HasTemplate(), err
}

// expandTemplate substitutes every reference of tmpl. Nested template results
// are parenthesized so the surrounding operators keep their precedence.
func (c *Compiler) expandTemplate(tmpl *metadata.Template, lookup func(path string) (reference, bool, error)) (reference, error) {
	var (
		sb  strings.Builder
		out reference
	)
	for _, seg := range tmpl.Segments() {
		if !seg.IsRef {
			sb.WriteString(seg.Text)
			continue
		}
		ref, nested, err := lookup(seg.Text)
		if err != nil {
			return reference{}, err
		}
		if nested {
			sb.WriteString("(" + ref.expr + ")")
		} else {
			sb.WriteString(ref.expr)
		}
		out.paths = mergePaths(out.paths, ref.paths)
	}
	out.expr = sb.String()
	return out, nil
}

// mergePaths returns dst followed by the paths of add not already in dst,
// keeping first-seen order. Neither argument is modified: both may be shared
// through the reference cache.
func mergePaths(dst, add []*metadata.JoinPath) []*metadata.JoinPath {
	var out []*metadata.JoinPath
	for _, p := range add {
		if containsPath(dst, p) || containsPath(out, p) {
			continue
		}
		if out == nil {
			out = make([]*metadata.JoinPath, len(dst), len(dst)+len(add))
			copy(out, dst)
		}
		out = append(out, p)
	}
	if out == nil {
		return dst
	}
	return out
}

func containsPath(paths []*metadata.JoinPath, p *metadata.JoinPath) bool {
	for _, q := range paths {
		if q.Signature() == p.Signature() {
			return true
		}
	}
	return false
}

// joinCondition renders the ON clause joining rel below parent, and returns the
// other join paths the clause reads from.
func (c *Compiler) joinCondition(parent *metadata.JoinPath, rel *metadata.Relationship) (string, []*metadata.JoinPath, error) {
	target := parent.Extend(rel)

	var (
		cond reference
		err  error
	)
	if rel.Template == nil {
		src, serr := c.resolve(parent, rel.SourceKey)
		if serr != nil {
			return "", nil, serr
		}
		tgt, terr := c.resolve(target, rel.TargetKey)
		if terr != nil {
			return "", nil, terr
		}
		cond = reference{expr: src.expr + " = " + tgt.expr, paths: mergePaths(src.paths, tgt.paths)}
	} else {
		cond, err = c.expandTemplate(rel.Template, func(path string) (reference, bool, error) {
			if head, rest, ok := strings.Cut(path, "."); ok && head == rel.Name {
				col, found := rel.Target.Column(rest)
				if !found {
					return reference{}, false, domain.ErrPathResolution(rel.Target.Name, rest, "unknown column %q on table %q", rest, rel.Target.Name)
				}
				ref, rerr := c.resolve(target, col)
				return ref, col.HasTemplate(), rerr
			}
			jp, col, rerr := c.graph.ResolveField(rel.Source, path)
			if rerr != nil {
				return reference{}, false, rerr
			}
			ref, rerr := c.resolve(parent.Concat(jp), col)
			return ref, col.HasTemplate(), rerr
		})
		if err != nil {
			return "", nil, err
		}
	}

	var deps []*metadata.JoinPath
	for _, p := range cond.paths {
		if p.Signature() == target.Signature() || target.HasPrefix(p) {
			continue
		}
		if p.HasPrefix(target) {
			return "", nil, domain.ErrValidation("join %s: condition reads from a path below the join itself (%s)", target.Signature(), p.Signature())
		}
		deps = append(deps, p)
	}
	return cond.expr, deps, nil
}
