// Package query builds parameterised WHERE clauses from a list of predicates
// combined with AND. Values never enter the SQL text; every value becomes a
// positional $n argument.
package query

import (
	"fmt"
	"strings"
)

// Predicate renders one boolean SQL condition, binding its values through b
type Predicate interface {
	SQL(b *Builder) string
}

// Builder accumulates predicates and their arguments
type Builder struct {
	preds []Predicate
	args  []any
	where []string
}

// New creates a builder seeded with the given predicates
func New(preds ...Predicate) *Builder {
	b := &Builder{}
	for _, p := range preds {
		b.Where(p)
	}
	return b
}

// Where adds a predicate. Nil predicates are ignored.
func (b *Builder) Where(p Predicate) *Builder {
	if p == nil {
		return b
	}
	b.preds = append(b.preds, p)
	b.where = append(b.where, p.SQL(b))
	return b
}

// Bind appends v to the argument list and returns its placeholder
func (b *Builder) Bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// Len returns the number of predicates added
func (b *Builder) Len() int { return len(b.preds) }

// Args returns a copy of the bound arguments
func (b *Builder) Args() []any {
	out := make([]any, len(b.args))
	copy(out, b.args)
	return out
}

// Conditions returns the rendered predicates joined by AND, or "TRUE" when empty
func (b *Builder) Conditions() string {
	if len(b.where) == 0 {
		return "TRUE"
	}
	return strings.Join(b.where, " AND ")
}

// WhereClause returns " WHERE ..." or an empty string when there are no predicates
func (b *Builder) WhereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

// Page returns a LIMIT/OFFSET clause numbered after the bound arguments,
// together with the full argument list. The builder itself is not modified.
func (b *Builder) Page(limit, offset int) (string, []any) {
	n := len(b.args)
	args := append(b.Args(), limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), args
}

type cmp struct {
	col string
	op  string
	val any
}

func (p cmp) SQL(b *Builder) string { return fmt.Sprintf("%s %s %s", p.col, p.op, b.Bind(p.val)) }

// Eq matches col = v
func Eq(col string, v any) Predicate { return cmp{col, "=", v} }

// Gt matches col > v
func Gt(col string, v any) Predicate { return cmp{col, ">", v} }

// Lt matches col < v
func Lt(col string, v any) Predicate { return cmp{col, "<", v} }

// Gte matches col >= v
func Gte(col string, v any) Predicate { return cmp{col, ">=", v} }

// Lte matches col <= v
func Lte(col string, v any) Predicate { return cmp{col, "<=", v} }

type contains struct {
	cols []string
	term string
}

func (p contains) SQL(b *Builder) string {
	parts := make([]string, len(p.cols))
	for i, col := range p.cols {
		parts[i] = fmt.Sprintf("%s ILIKE %s", col, b.Bind("%"+p.term+"%"))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// Contains matches a case-insensitive substring in any of cols
func Contains(term string, cols ...string) Predicate { return contains{cols, term} }

type in struct {
	col  string
	vals []any
}

func (p in) SQL(b *Builder) string {
	if len(p.vals) == 0 {
		return "FALSE"
	}
	ph := make([]string, len(p.vals))
	for i, v := range p.vals {
		ph[i] = b.Bind(v)
	}
	return fmt.Sprintf("%s IN (%s)", p.col, strings.Join(ph, ", "))
}

// In matches set membership. An empty set matches nothing.
func In[T any](col string, vals ...T) Predicate {
	anys := make([]any, len(vals))
	for i, v := range vals {
		anys[i] = v
	}
	return in{col, anys}
}

type raw string

func (p raw) SQL(*Builder) string { return string(p) }

// Raw is a fixed condition without arguments
func Raw(sql string) Predicate { return raw(sql) }

// Func renders a custom condition. fn binds its own values through bind.
type Func func(bind func(any) string) string

func (f Func) SQL(b *Builder) string { return f(b.Bind) }

// Expr wraps a custom condition such as an EXISTS sub-select
func Expr(fn func(bind func(any) string) string) Predicate { return Func(fn) }
