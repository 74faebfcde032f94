package metadata

import (
	"strings"

	"duck-semantic/internal/domain"
)

// JoinPath is an ordered sequence of relationship traversals starting at a
// root table. JoinPaths are immutable; derived paths are new values.
type JoinPath struct {
	root  *Table
	steps []*Relationship
	sig   string
}

func newJoinPath(root *Table, steps []*Relationship) *JoinPath {
	names := make([]string, 0, len(steps)+1)
	names = append(names, root.Name)
	for _, s := range steps {
		names = append(names, s.Name)
	}
	return &JoinPath{root: root, steps: steps, sig: strings.Join(names, ".")}
}

// RootPath returns the empty path at t.
func RootPath(t *Table) *JoinPath {
	return newJoinPath(t, nil)
}

// Root returns the table the path starts from.
func (p *JoinPath) Root() *Table { return p.root }

// Target returns the table the path ends at.
func (p *JoinPath) Target() *Table {
	if len(p.steps) == 0 {
		return p.root
	}
	return p.steps[len(p.steps)-1].Target
}

// Len returns the number of relationship steps.
func (p *JoinPath) Len() int { return len(p.steps) }

// IsRoot reports whether the path has no steps.
func (p *JoinPath) IsRoot() bool { return len(p.steps) == 0 }

// Steps returns the relationships in traversal order.
func (p *JoinPath) Steps() []*Relationship {
	out := make([]*Relationship, len(p.steps))
	copy(out, p.steps)
	return out
}

// Last returns the final relationship, or nil for a root path.
func (p *JoinPath) Last() *Relationship {
	if len(p.steps) == 0 {
		return nil
	}
	return p.steps[len(p.steps)-1]
}

// Signature identifies the path: the root table name followed by the
// relationship names, dot separated.
func (p *JoinPath) Signature() string { return p.sig }

// RelativePath returns the relationship names joined with dots, "" for the root.
func (p *JoinPath) RelativePath() string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return strings.Join(names, ".")
}

// Prefix returns the path made of the first n steps.
func (p *JoinPath) Prefix(n int) *JoinPath {
	if n >= len(p.steps) {
		return p
	}
	return newJoinPath(p.root, p.steps[:n:n])
}

// Extend returns the path followed by rel. rel must start at p.Target().
func (p *JoinPath) Extend(rel *Relationship) *JoinPath {
	steps := make([]*Relationship, len(p.steps), len(p.steps)+1)
	copy(steps, p.steps)
	return newJoinPath(p.root, append(steps, rel))
}

// Concat returns p followed by the steps of other. other must be rooted at
// p.Target().
func (p *JoinPath) Concat(other *JoinPath) *JoinPath {
	if other.IsRoot() {
		return p
	}
	if p.IsRoot() {
		return other
	}
	steps := make([]*Relationship, 0, len(p.steps)+len(other.steps))
	steps = append(steps, p.steps...)
	steps = append(steps, other.steps...)
	return newJoinPath(p.root, steps)
}

// ToMany reports whether any step can multiply rows.
func (p *JoinPath) ToMany() bool {
	for _, s := range p.steps {
		if s.ToMany() {
			return true
		}
	}
	return false
}

// HasPrefix reports whether q's steps are a leading part of p's.
func (p *JoinPath) HasPrefix(q *JoinPath) bool {
	if p.root != q.root || len(q.steps) > len(p.steps) {
		return false
	}
	for i, s := range q.steps {
		if p.steps[i] != s {
			return false
		}
	}
	return true
}

// ResolveJoinPath resolves a dotted path of relationship names starting at
// root. Results are memoized per (root, path).
func (g *Graph) ResolveJoinPath(root *Table, path string) (*JoinPath, error) {
	key := pathKey{root: root.Name, path: path}
	if cached, ok := g.paths.Load(key); ok {
		return cached.(*JoinPath), nil
	}

	jp := RootPath(root)
	if path != "" {
		current := root
		var steps []*Relationship
		for _, seg := range strings.Split(path, ".") {
			rel, err := g.step(root, path, current, seg)
			if err != nil {
				return nil, err
			}
			steps = append(steps, rel)
			current = rel.Target
		}
		jp = newJoinPath(root, steps)
	}
	g.paths.Store(key, jp)
	return jp, nil
}

// ResolveField resolves a dotted field path: zero or more relationship names
// followed by a column name.
func (g *Graph) ResolveField(root *Table, path string) (*JoinPath, *Column, error) {
	if path == "" {
		return nil, nil, domain.ErrPathResolution(root.Name, path, "empty field path on table %q", root.Name)
	}
	relPath, colName := "", path
	if i := strings.LastIndex(path, "."); i >= 0 {
		relPath, colName = path[:i], path[i+1:]
	}
	jp, err := g.ResolveJoinPath(root, relPath)
	if err != nil {
		return nil, nil, err
	}
	target := jp.Target()
	col, ok := target.Column(colName)
	if !ok {
		if _, isRel := target.Relationship(colName); isRel {
			return nil, nil, domain.ErrPathResolution(root.Name, path, "field path %q on table %q ends at relationship %q, not a column", path, root.Name, colName)
		}
		return nil, nil, domain.ErrPathResolution(root.Name, path, "unknown field %q on table %q (path %q)", colName, target.Name, path)
	}
	return jp, col, nil
}

func (g *Graph) step(root *Table, path string, current *Table, seg string) (*Relationship, error) {
	if seg == "" {
		return nil, domain.ErrPathResolution(root.Name, path, "malformed path %q on table %q", path, root.Name)
	}
	if rel, ok := current.Relationship(seg); ok {
		return rel, nil
	}
	if _, isCol := current.Column(seg); isCol {
		return nil, domain.ErrPathResolution(root.Name, path, "field %q on table %q is not a relationship (path %q)", seg, current.Name, path)
	}
	return nil, domain.ErrPathResolution(root.Name, path, "unknown relationship %q on table %q (path %q)", seg, current.Name, path)
}
