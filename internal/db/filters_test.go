package db

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestPageOffset(t *testing.T) {
	tests := []struct {
		name string
		page Page
		want int
	}{
		{"first page", Page{Number: 1, Limit: 20}, 0},
		{"third page", Page{Number: 3, Limit: 10}, 20},
		{"zero page treated as first", Page{Number: 0, Limit: 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.page.Offset())
		})
	}
}

func TestSequenceIDs(t *testing.T) {
	assert.Equal(t, "BUS001", formatID("BUS", 1))
	assert.Equal(t, "TRIP042", formatID("TRIP", 42))
	assert.Equal(t, "BUS1000", formatID("BUS", 1000))

	assert.Equal(t, 42, parseSequence("TRIP", "TRIP042"))
	assert.Equal(t, 0, parseSequence("BUS", ""))
	assert.Equal(t, 0, parseSequence("BUS", "TRIP003"))
	assert.Equal(t, 0, parseSequence("BUS", "BUSX"))
}

func TestBusFilterBuilder(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		b := BusFilter{}.builder()
		assert.Equal(t, "", b.WhereClause())
	})

	t.Run("scalar filters", func(t *testing.T) {
		f := BusFilter{
			OperatorID:    "OP1",
			PermitNumbers: []string{"P1", "P2"},
			CapacityGt:    intPtr(40),
			AvailableOnly: true,
			PlateNoLike:   "NA",
			ServiceType:   "LU",
		}
		b := f.builder()
		assert.Equal(t,
			" WHERE b.operator_id = $1 AND b.permit_number IN ($2, $3) AND b.capacity > $4"+
				" AND b.is_active = true AND b.plate_no ILIKE $5 AND b.service_type = $6",
			b.WhereClause())
		assert.Equal(t, []any{"OP1", "P1", "P2", 40, "%NA%", "LU"}, b.Args())
	})

	t.Run("from and to require segment order", func(t *testing.T) {
		b := BusFilter{FromLocation: "Colombo", ToLocation: "Kandy"}.builder()
		where := b.WhereClause()
		assert.Contains(t, where, "rs1.segment_order <= rs2.segment_order")
		assert.Equal(t, []any{"%Colombo%", "%Colombo%", "%Kandy%", "%Kandy%"}, b.Args())
	})

	t.Run("from without to is ignored", func(t *testing.T) {
		b := BusFilter{FromLocation: "Colombo"}.builder()
		assert.Equal(t, 0, b.Len())
	})
}

func TestTripFilterSQL(t *testing.T) {
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("day overrides the date range", func(t *testing.T) {
		start := day.Add(-48 * time.Hour)
		f := TripFilter{RouteID: 1, Day: &day, StartDate: &start}
		b := f.builder()
		assert.Equal(t, " WHERE t.route_id = $1 AND t.departure_time >= $2 AND t.departure_time < $3", b.WhereClause())
		assert.Equal(t, []any{int64(1), day, day.Add(24 * time.Hour)}, b.Args())
	})

	t.Run("fares are joined only for fare filters", func(t *testing.T) {
		assert.NotContains(t, TripFilter{RouteID: 1}.from(), "fares")
		assert.Contains(t, TripFilter{RouteID: 1, MinFare: floatPtr(100)}.from(), "LEFT JOIN fares f")
		assert.NotContains(t, TripFilter{RouteID: 1, FromStop: "Colombo"}.from(), "fares")
		assert.Contains(t, TripFilter{RouteID: 1, FromStop: "Colombo", ToStop: "Kandy"}.from(), "LEFT JOIN fares f")
	})

	t.Run("statuses and intervals", func(t *testing.T) {
		f := TripFilter{RouteID: 2, Statuses: []string{"Scheduled", "Delayed"}, IntervalLt: intPtr(30)}
		b := f.builder()
		assert.Equal(t, " WHERE t.route_id = $1 AND t.status IN ($2, $3) AND t.interval_min < $4", b.WhereClause())
	})

	t.Run("unknown sort field falls back to departure time", func(t *testing.T) {
		assert.Equal(t, " ORDER BY t.departure_time ASC, t.id", TripFilter{SortField: "bus_id; DROP"}.orderBy())
		assert.Equal(t, " ORDER BY t.status DESC, t.id", TripFilter{SortField: "status", SortDesc: true}.orderBy())
	})

	t.Run("list statements are distinct and paginated after filter args", func(t *testing.T) {
		f := TripFilter{RouteID: 3, Direction: "outbound", Page: Page{Number: 2, Limit: 10}}
		countSQL, countArgs, pageSQL, pageArgs := f.listSQL()
		assert.True(t, strings.HasPrefix(countSQL, "SELECT COUNT(DISTINCT t.id)"))
		assert.True(t, strings.HasPrefix(pageSQL, "SELECT DISTINCT t.id"))
		assert.True(t, strings.HasSuffix(pageSQL, " LIMIT $3 OFFSET $4"))
		assert.Equal(t, []any{int64(3), "outbound"}, countArgs)
		assert.Equal(t, []any{int64(3), "outbound", 10, 10}, pageArgs)
	})
}

func TestFareFilterBuilder(t *testing.T) {
	asOf := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("only effective fares of the route", func(t *testing.T) {
		b := FareFilter{RouteNumber: "R1", AsOf: asOf}.builder()
		assert.Equal(t,
			" WHERE r.route_number = $1 AND r.is_active = true AND f.effective_date <= $2"+
				" AND (f.expiry_date IS NULL OR f.expiry_date > $3)",
			b.WhereClause())
		assert.Equal(t, []any{"R1", asOf, asOf}, b.Args())
	})

	t.Run("from stop matches either end of the from segment", func(t *testing.T) {
		b := FareFilter{RouteNumber: "R1", AsOf: asOf, FromStop: "Kegalle", AmountLt: floatPtr(500)}.builder()
		where := b.WhereClause()
		assert.Contains(t, where, "(fs.from_location ILIKE $4 OR fs.to_location ILIKE $5)")
		assert.Contains(t, where, "f.fare_amount < $6")
	})

	t.Run("sort whitelist", func(t *testing.T) {
		assert.Equal(t, " ORDER BY f.service_type, fs.segment_order, ts.segment_order, f.id", FareFilter{}.orderBy())
		assert.Equal(t, " ORDER BY f.fare_amount DESC, f.id", FareFilter{SortField: "fare_amount", SortDesc: true}.orderBy())
	})
}

func TestHistoryFilterBuilder(t *testing.T) {
	from := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	b := HistoryFilter{BusID: "BUS001", From: &from}.builder()
	assert.Equal(t, " WHERE bus_id = $1 AND timestamp >= $2", b.WhereClause())
	assert.Equal(t, []any{"BUS001", from}, b.Args())
}

func TestAssignments(t *testing.T) {
	var a assignments
	require.True(t, a.empty())
	a.set("capacity", 50)
	a.set("type", "AC")

	set, key, args := a.sql("BUS001")
	assert.Equal(t, "capacity = $1, type = $2", set)
	assert.Equal(t, "$3", key)
	assert.Equal(t, []any{50, "AC", "BUS001"}, args)
}

func TestRouteFilterBuilder(t *testing.T) {
	b := RouteFilter{From: "Colombo", To: "Kandy"}.builder()
	assert.Equal(t, " WHERE from_city ILIKE $1 AND to_city ILIKE $2", b.WhereClause())
	assert.Equal(t, []any{"%Colombo%", "%Kandy%"}, b.Args())
}
