package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
	"github.com/kusalkrp/bus-tracking-api/internal/query"
	"github.com/kusalkrp/bus-tracking-api/internal/tracking"
)

const tripColumns = "t.id, t.bus_id, t.route_id, t.direction, t.service_type, t.departure_time, t.arrival_time, t.interval_min, t.status, t.created_at, t.updated_at"

// TripSortFields lists the columns a trip listing may be ordered by
var TripSortFields = map[string]bool{
	"departure_time": true,
	"arrival_time":   true,
	"status":         true,
	"direction":      true,
	"service_type":   true,
	"created_at":     true,
}

// TripFilter selects trips of one route. Zero values disable a filter.
type TripFilter struct {
	RouteID     int64
	OperatorID  string
	Direction   string
	ServiceType string
	// Day matches departures within [Day, Day+24h). When set, StartDate and EndDate are ignored.
	Day             *time.Time
	StartDate       *time.Time
	EndDate         *time.Time
	DepartureAfter  *time.Time
	DepartureBefore *time.Time
	// Window matches departures between Now and Now+Window
	Window     time.Duration
	Now        time.Time
	Statuses   []string
	IntervalLt *int
	IntervalGt *int
	Stop       string
	MinFare    *float64
	MaxFare    *float64
	FromStop   string
	ToStop     string
	SortField  string
	SortDesc   bool
	Page       Page
}

func (f TripFilter) joinsFares() bool {
	return f.MinFare != nil || f.MaxFare != nil || (f.FromStop != "" && f.ToStop != "")
}

// from returns the FROM clause, joining fares only when a fare filter needs it
func (f TripFilter) from() string {
	from := " FROM trips t INNER JOIN buses b ON t.bus_id = b.id"
	if f.joinsFares() {
		from += " LEFT JOIN fares f ON f.route_id = t.route_id AND f.service_type = t.service_type"
	}
	return from
}

func (f TripFilter) builder() *query.Builder {
	b := query.New(query.Eq("t.route_id", f.RouteID))
	if f.OperatorID != "" {
		b.Where(query.Eq("b.operator_id", f.OperatorID))
	}
	if f.Direction != "" {
		b.Where(query.Eq("t.direction", f.Direction))
	}
	if f.ServiceType != "" {
		b.Where(query.Eq("t.service_type", f.ServiceType))
	}
	if f.Day != nil {
		b.Where(query.Gte("t.departure_time", *f.Day))
		b.Where(query.Lt("t.departure_time", f.Day.Add(24*time.Hour)))
	} else {
		if f.StartDate != nil {
			b.Where(query.Gte("t.departure_time", *f.StartDate))
		}
		if f.EndDate != nil {
			b.Where(query.Lte("t.departure_time", *f.EndDate))
		}
	}
	if f.DepartureAfter != nil {
		b.Where(query.Gt("t.departure_time", *f.DepartureAfter))
	}
	if f.DepartureBefore != nil {
		b.Where(query.Lt("t.departure_time", *f.DepartureBefore))
	}
	if f.Window > 0 {
		b.Where(query.Gte("t.departure_time", f.Now))
		b.Where(query.Lte("t.departure_time", f.Now.Add(f.Window)))
	}
	if len(f.Statuses) > 0 {
		b.Where(query.In("t.status", f.Statuses...))
	}
	if f.IntervalLt != nil {
		b.Where(query.Lt("t.interval_min", *f.IntervalLt))
	}
	if f.IntervalGt != nil {
		b.Where(query.Gt("t.interval_min", *f.IntervalGt))
	}
	if f.Stop != "" {
		term := "%" + f.Stop + "%"
		b.Where(query.Expr(func(bind func(any) string) string {
			return fmt.Sprintf(`EXISTS (SELECT 1 FROM route_segments rs
				WHERE rs.route_id = t.route_id
				AND (rs.from_location ILIKE %s OR rs.to_location ILIKE %s))`, bind(term), bind(term))
		}))
	}
	if f.MinFare != nil {
		b.Where(query.Gte("f.fare_amount", *f.MinFare))
	}
	if f.MaxFare != nil {
		b.Where(query.Lte("f.fare_amount", *f.MaxFare))
	}
	if f.FromStop != "" && f.ToStop != "" {
		from := "%" + f.FromStop + "%"
		to := "%" + f.ToStop + "%"
		b.Where(query.Expr(func(bind func(any) string) string {
			return fmt.Sprintf(`EXISTS (SELECT 1 FROM route_segments rs1, route_segments rs2
				WHERE rs1.route_id = t.route_id AND rs2.route_id = t.route_id
				AND (rs1.from_location ILIKE %s OR rs1.to_location ILIKE %s)
				AND (rs2.from_location ILIKE %s OR rs2.to_location ILIKE %s)
				AND f.from_segment_id = rs1.id AND f.to_segment_id = rs2.id)`,
				bind(from), bind(from), bind(to), bind(to))
		}))
	}
	return b
}

func (f TripFilter) orderBy() string {
	field := "departure_time"
	if TripSortFields[f.SortField] {
		field = f.SortField
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY t.%s %s, t.id", field, dir)
}

// listSQL renders the count and page statements of a trip listing
func (f TripFilter) listSQL() (countSQL string, countArgs []any, pageSQL string, pageArgs []any) {
	b := f.builder()
	pageClause, pageArgs := b.Page(f.Page.Limit, f.Page.Offset())
	countSQL = "SELECT COUNT(DISTINCT t.id)" + f.from() + b.WhereClause()
	pageSQL = "SELECT DISTINCT " + tripColumns + f.from() + b.WhereClause() + f.orderBy() + pageClause
	return countSQL, b.Args(), pageSQL, pageArgs
}

// NewTrip is a trip to schedule. The arrival time and segment schedule are
// derived from the route.
type NewTrip struct {
	BusID       string
	RouteID     int64
	Direction   string
	ServiceType string
	Departure   time.Time
	IntervalMin *int
}

func scanTrip(row pgx.Row) (models.Trip, error) {
	var t models.Trip
	err := row.Scan(&t.ID, &t.BusID, &t.RouteID, &t.Direction, &t.ServiceType, &t.DepartureTime,
		&t.ArrivalTime, &t.IntervalMin, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanTripWithOperator(row pgx.Row) (models.Trip, error) {
	var t models.Trip
	err := row.Scan(&t.ID, &t.BusID, &t.RouteID, &t.Direction, &t.ServiceType, &t.DepartureTime,
		&t.ArrivalTime, &t.IntervalMin, &t.Status, &t.CreatedAt, &t.UpdatedAt, &t.OperatorID)
	return t, err
}

// ListTrips returns one page of trips of a route with the total match count
func (s *Store) ListTrips(ctx context.Context, f TripFilter) ([]models.Trip, int, error) {
	countSQL, countArgs, pageSQL, pageArgs := f.listSQL()
	return listPage(ctx, s.pool, countSQL, countArgs, pageSQL, pageArgs, scanTrip)
}

// CountTrips returns the number of distinct trips matching f
func (s *Store) CountTrips(ctx context.Context, f TripFilter) (int, error) {
	b := f.builder()
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(DISTINCT t.id)"+f.from()+b.WhereClause(), b.Args()...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trips: %w", err)
	}
	return n, nil
}

// AverageDelayHours returns the mean of scheduled trip duration minus route
// time over trips matching f, or nil when nothing matches.
func (s *Store) AverageDelayHours(ctx context.Context, f TripFilter) (*float64, error) {
	b := f.builder()
	sql := `SELECT AVG(EXTRACT(EPOCH FROM (x.arrival_time - x.departure_time)) / 3600 - r.estimated_time_hrs)::float8
		FROM (SELECT DISTINCT t.id, t.route_id, t.departure_time, t.arrival_time` + f.from() + b.WhereClause() + `) x
		JOIN routes r ON r.id = x.route_id`
	var avg *float64
	if err := s.pool.QueryRow(ctx, sql, b.Args()...).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to average trip delay: %w", err)
	}
	return avg, nil
}

// GetTrip returns a trip by id with the operator of its bus
func (s *Store) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	t, err := scanTripWithOperator(s.pool.QueryRow(ctx,
		"SELECT "+tripColumns+", b.operator_id FROM trips t INNER JOIN buses b ON t.bus_id = b.id WHERE t.id = $1", id))
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

// CreateTrip schedules a trip under the next TRIP### id together with one
// trip segment per route segment.
func (s *Store) CreateTrip(ctx context.Context, in NewTrip) (*models.Trip, error) {
	var trip models.Trip
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var routeHours float64
		if err := tx.QueryRow(ctx, "SELECT estimated_time_hrs FROM routes WHERE id = $1", in.RouteID).Scan(&routeHours); err != nil {
			return translate(err)
		}
		rows, err := tx.Query(ctx,
			"SELECT "+segmentColumns+" FROM route_segments WHERE route_id = $1 ORDER BY segment_order", in.RouteID)
		segments, err := collect(rows, err, scanSegment)
		if err != nil {
			return fmt.Errorf("failed to load route segments: %w", err)
		}

		id, err := nextID(ctx, tx, "trips")
		if err != nil {
			return err
		}
		arrival := in.Departure.Add(tracking.HoursToDuration(routeHours))

		trip, err = scanTrip(tx.QueryRow(ctx,
			`INSERT INTO trips AS t (id, bus_id, route_id, direction, service_type, departure_time, arrival_time, interval_min, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+tripColumns,
			id, in.BusID, in.RouteID, in.Direction, in.ServiceType, in.Departure, arrival, in.IntervalMin, models.StatusScheduled))
		if err != nil {
			return translate(err)
		}

		chain := tracking.NewChain(segments)
		for i, at := range chain.ScheduledArrivals(in.Departure) {
			if _, err := tx.Exec(ctx,
				"INSERT INTO trip_segments (trip_id, segment_id, scheduled_arrival_time) VALUES ($1, $2, $3)",
				trip.ID, chain.At(i).ID, at); err != nil {
				return fmt.Errorf("failed to schedule segment %d: %w", chain.At(i).SegmentOrder, translate(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

// UpdateTripStatus moves a trip from one status to another. ErrConflict is
// returned when the trip is no longer in status from.
func (s *Store) UpdateTripStatus(ctx context.Context, id string, from, to models.TripStatus) (*models.Trip, error) {
	t, err := scanTrip(s.pool.QueryRow(ctx,
		"UPDATE trips AS t SET status = $1, updated_at = NOW() WHERE t.id = $2 AND t.status = $3 RETURNING "+tripColumns,
		to, id, from))
	if err != nil {
		err = translate(err)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: trip status changed", ErrConflict)
		}
		return nil, err
	}
	return &t, nil
}

// DeleteTrip removes a trip and, by cascade, its segments and location history
func (s *Store) DeleteTrip(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM trips WHERE id = $1", id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTripSegments returns the scheduled and observed progress of each segment of a trip
func (s *Store) ListTripSegments(ctx context.Context, tripID string) ([]models.TripSegment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts.id, ts.trip_id, ts.segment_id, rs.segment_order, rs.from_location, rs.to_location,
		        ts.scheduled_arrival_time, ts.actual_arrival_time, ts.progress_percentage
		 FROM trip_segments ts
		 JOIN route_segments rs ON rs.id = ts.segment_id
		 WHERE ts.trip_id = $1
		 ORDER BY rs.segment_order`, tripID)
	segs, err := collect(rows, err, func(row pgx.Row) (models.TripSegment, error) {
		var ts models.TripSegment
		err := row.Scan(&ts.ID, &ts.TripID, &ts.SegmentID, &ts.SegmentOrder, &ts.FromLocation, &ts.ToLocation,
			&ts.ScheduledArrivalTime, &ts.ActualArrivalTime, &ts.ProgressPercentage)
		return ts, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list trip segments: %w", err)
	}
	return segs, nil
}
