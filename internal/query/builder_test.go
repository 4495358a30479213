package query

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder(t *testing.T) {
	t.Run("empty builder", func(t *testing.T) {
		b := New()
		assert.Equal(t, "", b.WhereClause())
		assert.Equal(t, "TRUE", b.Conditions())
		assert.Empty(t, b.Args())
	})

	t.Run("predicates are ANDed and numbered in order", func(t *testing.T) {
		b := New(
			Eq("b.operator_id", "OP1"),
			Gt("b.capacity", 40),
			Lt("b.capacity", 60),
		)
		assert.Equal(t, " WHERE b.operator_id = $1 AND b.capacity > $2 AND b.capacity < $3", b.WhereClause())
		assert.Equal(t, []any{"OP1", 40, 60}, b.Args())
		assert.Equal(t, 3, b.Len())
	})

	t.Run("nil predicates are skipped", func(t *testing.T) {
		var p Predicate
		b := New(p, Eq("id", 1))
		assert.Equal(t, " WHERE id = $1", b.WhereClause())
	})

	t.Run("contains wraps the term and ORs columns", func(t *testing.T) {
		b := New(Contains("Colombo", "rs.from_location", "rs.to_location"))
		assert.Equal(t, " WHERE (rs.from_location ILIKE $1 OR rs.to_location ILIKE $2)", b.WhereClause())
		assert.Equal(t, []any{"%Colombo%", "%Colombo%"}, b.Args())

		single := New(Contains("NA", "plate_no"))
		assert.Equal(t, " WHERE plate_no ILIKE $1", single.WhereClause())
	})

	t.Run("in binds each value", func(t *testing.T) {
		b := New(Eq("x", 1), In("t.status", "Scheduled", "Delayed"))
		assert.Equal(t, " WHERE x = $1 AND t.status IN ($2, $3)", b.WhereClause())
		assert.Equal(t, []any{1, "Scheduled", "Delayed"}, b.Args())

		empty := New(In[string]("t.status"))
		assert.Equal(t, " WHERE FALSE", empty.WhereClause())
	})

	t.Run("expr binds through the builder", func(t *testing.T) {
		b := New(
			Eq("t.route_id", int64(7)),
			Expr(func(bind func(any) string) string {
				return fmt.Sprintf("EXISTS (SELECT 1 FROM route_segments rs WHERE rs.route_id = t.route_id AND rs.from_location ILIKE %s)", bind("%Kandy%"))
			}),
			Raw("t.is_active"),
		)
		assert.Equal(t, " WHERE t.route_id = $1 AND EXISTS (SELECT 1 FROM route_segments rs WHERE rs.route_id = t.route_id AND rs.from_location ILIKE $2) AND t.is_active", b.WhereClause())
		assert.Equal(t, []any{int64(7), "%Kandy%"}, b.Args())
	})

	t.Run("page numbers after the filter args without mutating", func(t *testing.T) {
		b := New(Eq("a", 1), Eq("b", 2))
		clause, args := b.Page(20, 40)

		assert.Equal(t, " LIMIT $3 OFFSET $4", clause)
		assert.Equal(t, []any{1, 2, 20, 40}, args)
		assert.Equal(t, []any{1, 2}, b.Args())
	})

	t.Run("values never reach the SQL text", func(t *testing.T) {
		b := New(Eq("plate_no", "x'; DROP TABLE buses; --"), Contains("'; --", "from_city"))
		assert.NotContains(t, b.WhereClause(), "DROP")
		assert.NotContains(t, b.WhereClause(), "'")
	})
}
