package compiler

import (
	"fmt"

	"duck-semantic/internal/domain"
	"duck-semantic/internal/metadata"
)

// Join kinds.
const (
	JoinInner = "INNER"
	JoinLeft  = "LEFT"
)

// Join sources, recorded in the order a join was first requested.
const (
	SourceFilter = "filter"
	SourceSort   = "sort"
	SourceSelect = "select"
)

type joinNode struct {
	path        *metadata.JoinPath
	alias       string
	kind        string
	duplicating bool
	condition   string
	sources     []string
}

func (n *joinNode) addSource(src string) {
	for _, s := range n.sources {
		if s == src {
			return
		}
	}
	n.sources = append(n.sources, src)
}

// joinSet merges join requirements into a deduplicated, dependency-ordered
// list. Every prefix of a path is joined before the path itself.
type joinSet struct {
	c       *Compiler
	nodes   []*joinNode
	bySig   map[string]*joinNode
	aliases map[string]string // alias -> signature
}

func newJoinSet(c *Compiler, root *metadata.JoinPath) *joinSet {
	return &joinSet{
		c:       c,
		bySig:   make(map[string]*joinNode),
		aliases: map[string]string{aliasFor(root): root.Signature()},
	}
}

func (s *joinSet) addAll(paths []*metadata.JoinPath, source string) error {
	for _, p := range paths {
		if err := s.add(p, source); err != nil {
			return err
		}
	}
	return nil
}

func (s *joinSet) add(p *metadata.JoinPath, source string) error {
	for i := 1; i <= p.Len(); i++ {
		prefix := p.Prefix(i)
		if n, ok := s.bySig[prefix.Signature()]; ok {
			n.addSource(source)
			continue
		}
		if err := s.insert(prefix, source); err != nil {
			return err
		}
	}
	return nil
}

func (s *joinSet) insert(p *metadata.JoinPath, source string) error {
	alias := aliasFor(p)
	if sig, taken := s.aliases[alias]; taken && sig != p.Signature() {
		return domain.ErrValidation("join paths %s and %s both map to alias %q; rename a relationship", sig, p.Signature(), alias)
	}

	parent := p.Prefix(p.Len() - 1)
	rel := p.Last()
	cond, deps, err := s.c.joinCondition(parent, rel)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if err := s.add(d, source); err != nil {
			return err
		}
	}
	if n, ok := s.bySig[p.Signature()]; ok {
		// joined while resolving a dependency
		n.addSource(source)
		return nil
	}

	n := &joinNode{
		path:        p,
		alias:       alias,
		kind:        JoinInner,
		duplicating: rel.ToMany(),
		condition:   cond,
		sources:     []string{source},
	}
	if rel.Optional || rel.ToMany() {
		n.kind = JoinLeft
	}
	if up, ok := s.bySig[parent.Signature()]; ok {
		if up.kind == JoinLeft {
			n.kind = JoinLeft
		}
		n.duplicating = n.duplicating || up.duplicating
	}

	s.nodes = append(s.nodes, n)
	s.bySig[p.Signature()] = n
	s.aliases[alias] = p.Signature()
	return nil
}

// duplicating reports whether any joined path can multiply root rows.
func (s *joinSet) duplicating() bool {
	for _, n := range s.nodes {
		if n.duplicating {
			return true
		}
	}
	return false
}

func (s *joinSet) clauses() []string {
	out := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = fmt.Sprintf("%s JOIN %s AS %s ON %s", n.kind, quoteRelation(n.path.Target().PhysicalName), quoteIdent(n.alias), n.condition)
	}
	return out
}
