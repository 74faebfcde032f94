package metadata

import (
	"strings"

	"duck-semantic/internal/domain"
)

// binder expands every template, join-to path and ON template once, keeping a
// stack of "table.field" keys to reject self-referencing definitions.
type binder struct {
	g     *Graph
	stack []string
	done  map[string]bool // key -> requires join
}

func newBinder(g *Graph) *binder {
	return &binder{g: g, done: make(map[string]bool)}
}

func (b *binder) bindAll() error {
	for _, t := range b.g.Tables() {
		for _, c := range t.columns {
			if _, err := b.column(c); err != nil {
				return err
			}
		}
		for _, r := range t.relationships {
			if err := b.relationship(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// enter pushes key, returning (cached, true) if the key was already bound.
func (b *binder) enter(key string) (bool, bool, error) {
	for i, k := range b.stack {
		if k == key {
			chain := append(append([]string(nil), b.stack[i:]...), key)
			return false, false, domain.ErrCyclicDefinition(chain)
		}
	}
	if requires, ok := b.done[key]; ok {
		return requires, true, nil
	}
	if len(b.stack) >= b.g.maxDepth {
		return false, false, domain.ErrValidation("expanding %s exceeds the maximum expansion depth %d (%s)",
			key, b.g.maxDepth, strings.Join(b.stack, " -> "))
	}
	b.stack = append(b.stack, key)
	return false, false, nil
}

func (b *binder) leave(key string, requiresJoin bool) {
	b.stack = b.stack[:len(b.stack)-1]
	b.done[key] = requiresJoin
}

func (b *binder) column(c *Column) (bool, error) {
	key := c.QualifiedName()
	requires, cached, err := b.enter(key)
	if err != nil || cached {
		return requires, err
	}

	switch {
	case c.HasJoinPath():
		requires, err = b.fieldRef(c, c.JoinPath)
	case c.HasTemplate():
		for _, ref := range c.Expression.Refs() {
			r, ferr := b.fieldRef(c, ref)
			if ferr != nil {
				err = ferr
				break
			}
			requires = requires || r
		}
	}
	if err != nil {
		return false, err
	}

	c.requiresJoin = requires
	b.leave(key, requires)
	return requires, nil
}

// fieldRef binds a path referenced by column c and reports whether it crosses
// a relationship.
func (b *binder) fieldRef(c *Column, path string) (bool, error) {
	jp, target, err := b.g.ResolveField(c.Table, path)
	if err != nil {
		return false, err
	}
	if target.IsMetric() {
		return false, domain.ErrValidation("column %s references metric %q; metrics can only be selected", c.QualifiedName(), path)
	}
	for _, rel := range jp.steps {
		if err := b.relationship(rel); err != nil {
			return false, err
		}
	}
	requires, err := b.column(target)
	if err != nil {
		return false, err
	}
	return requires || !jp.IsRoot(), nil
}

func (b *binder) relationship(r *Relationship) error {
	key := r.QualifiedName()
	_, cached, err := b.enter(key)
	if err != nil || cached {
		return err
	}

	if r.Template == nil {
		if _, err := b.column(r.SourceKey); err != nil {
			return err
		}
		targetRequires, err := b.column(r.TargetKey)
		if err != nil {
			return err
		}
		if targetRequires {
			return domain.ErrValidation("relationship %s: target key %q must not require a join", key, r.TargetKey.Name)
		}
	} else if err := b.joinTemplate(r); err != nil {
		return err
	}

	b.leave(key, true)
	return nil
}

func (b *binder) joinTemplate(r *Relationship) error {
	throughTarget := false
	for _, ref := range r.Template.Refs() {
		head, rest, nested := strings.Cut(ref, ".")
		if head == r.Name {
			if !nested || strings.Contains(rest, ".") {
				return domain.ErrPathResolution(r.Source.Name, ref,
					"relationship %s: target reference %q must be %s.<column>", r.QualifiedName(), ref, r.Name)
			}
			col, ok := r.Target.Column(rest)
			if !ok {
				return domain.ErrPathResolution(r.Target.Name, rest,
					"relationship %s: unknown target column %q", r.QualifiedName(), rest)
			}
			if col.IsMetric() {
				return domain.ErrValidation("relationship %s: join template references metric %q", r.QualifiedName(), ref)
			}
			requires, err := b.column(col)
			if err != nil {
				return err
			}
			if requires {
				return domain.ErrValidation("relationship %s: target column %q must not require a join", r.QualifiedName(), rest)
			}
			throughTarget = true
			continue
		}

		jp, col, err := b.g.ResolveField(r.Source, ref)
		if err != nil {
			return err
		}
		if col.IsMetric() {
			return domain.ErrValidation("relationship %s: join template references metric %q", r.QualifiedName(), ref)
		}
		for _, rel := range jp.steps {
			if err := b.relationship(rel); err != nil {
				return err
			}
		}
		if _, err := b.column(col); err != nil {
			return err
		}
	}
	if !throughTarget {
		return domain.ErrValidation("relationship %s: join template must reference the target as {{%s.<column>}}", r.QualifiedName(), r.Name)
	}
	return nil
}
