package metadata

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	refOpen  = "{{"
	refClose = "}}"
)

var refPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Segment is either literal SQL text or a field reference.
type Segment struct {
	Text  string
	IsRef bool
}

// Template is a parsed expression or join template. References are dotted
// field paths relative to the owning table, written as {{path}}.
type Template struct {
	raw      string
	segments []Segment
}

// ParseTemplate splits s into literal and reference segments.
func ParseTemplate(s string) (*Template, error) {
	t := &Template{raw: s}
	rest := s
	for rest != "" {
		open := strings.Index(rest, refOpen)
		if open < 0 {
			if strings.Contains(rest, refClose) {
				return nil, fmt.Errorf("template %q: unmatched %q", s, refClose)
			}
			t.segments = append(t.segments, Segment{Text: rest})
			break
		}
		if open > 0 {
			lit := rest[:open]
			if strings.Contains(lit, refClose) {
				return nil, fmt.Errorf("template %q: unmatched %q", s, refClose)
			}
			t.segments = append(t.segments, Segment{Text: lit})
		}
		rest = rest[open+len(refOpen):]
		end := strings.Index(rest, refClose)
		if end < 0 {
			return nil, fmt.Errorf("template %q: unterminated %q", s, refOpen)
		}
		ref := strings.TrimSpace(rest[:end])
		if !refPattern.MatchString(ref) {
			return nil, fmt.Errorf("template %q: invalid reference %q", s, ref)
		}
		t.segments = append(t.segments, Segment{Text: ref, IsRef: true})
		rest = rest[end+len(refClose):]
	}
	return t, nil
}

// String returns the template source.
func (t *Template) String() string { return t.raw }

// Segments returns the parsed segments in order.
func (t *Template) Segments() []Segment {
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

// Refs returns the distinct reference paths in first-seen order.
func (t *Template) Refs() []string {
	var refs []string
	seen := map[string]bool{}
	for _, s := range t.segments {
		if s.IsRef && !seen[s.Text] {
			seen[s.Text] = true
			refs = append(refs, s.Text)
		}
	}
	return refs
}
