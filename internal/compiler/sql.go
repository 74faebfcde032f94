package compiler

import (
	"regexp"
	"strings"
)

var bareIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// reserved holds keywords that cannot appear as bare identifiers in DuckDB.
var reserved = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true, "array": true,
	"as": true, "asc": true, "asymmetric": true, "between": true, "both": true, "by": true,
	"case": true, "cast": true, "check": true, "collate": true, "column": true,
	"constraint": true, "create": true, "cross": true, "current_date": true,
	"current_time": true, "current_timestamp": true, "current_user": true,
	"default": true, "deferrable": true, "desc": true, "describe": true, "distinct": true,
	"do": true, "else": true, "end": true, "except": true, "false": true, "fetch": true,
	"for": true, "foreign": true, "from": true, "full": true, "grant": true, "group": true,
	"having": true, "in": true, "initially": true, "inner": true, "intersect": true,
	"into": true, "is": true, "join": true, "lateral": true, "leading": true, "left": true,
	"like": true, "limit": true, "localtime": true, "localtimestamp": true, "natural": true,
	"not": true, "null": true, "offset": true, "on": true, "only": true, "or": true,
	"order": true, "outer": true, "pivot": true, "placing": true, "primary": true,
	"qualify": true, "references": true, "returning": true, "right": true, "select": true,
	"session_user": true, "show": true, "some": true, "summarize": true, "symmetric": true,
	"table": true, "then": true, "to": true, "trailing": true, "true": true, "union": true,
	"unique": true, "unpivot": true, "user": true, "using": true, "variadic": true,
	"when": true, "where": true, "window": true, "with": true,
}

// quoteIdent returns name bare when it is a plain lowercase identifier and
// double-quoted otherwise.
func quoteIdent(name string) string {
	if bareIdent.MatchString(name) && !reserved[name] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteRelation quotes each part of a possibly schema-qualified relation name.
func quoteRelation(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

func qualify(alias, column string) string {
	return quoteIdent(alias) + "." + quoteIdent(column)
}
