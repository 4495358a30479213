package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
	"github.com/kusalkrp/bus-tracking-api/internal/query"
)

const routeColumns = "id, route_number, from_city, to_city, distance_km, estimated_time_hrs, is_active, created_at, updated_at"

const segmentColumns = "id, route_id, segment_order, from_location, to_location, distance_km, estimated_time_hrs"

// RouteFilter selects routes by city containment
type RouteFilter struct {
	From string
	To   string
	Page Page
}

func (f RouteFilter) builder() *query.Builder {
	b := query.New()
	if f.From != "" {
		b.Where(query.Contains(f.From, "from_city"))
	}
	if f.To != "" {
		b.Where(query.Contains(f.To, "to_city"))
	}
	return b
}

// NewRoute is a route to create, optionally with its segments in travel order
type NewRoute struct {
	RouteNumber      string
	FromCity         string
	ToCity           string
	DistanceKm       float64
	EstimatedTimeHrs float64
	Segments         []NewSegment
}

// NewSegment is a segment to append to a route
type NewSegment struct {
	FromLocation     string
	ToLocation       string
	DistanceKm       float64
	EstimatedTimeHrs float64
}

// RouteUpdate is a partial route update; nil fields are left unchanged
type RouteUpdate struct {
	RouteNumber      *string
	FromCity         *string
	ToCity           *string
	DistanceKm       *float64
	EstimatedTimeHrs *float64
	IsActive         *bool
}

func scanRoute(row pgx.Row) (models.Route, error) {
	var r models.Route
	err := row.Scan(&r.ID, &r.RouteNumber, &r.FromCity, &r.ToCity, &r.DistanceKm,
		&r.EstimatedTimeHrs, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func scanSegment(row pgx.Row) (models.Segment, error) {
	var s models.Segment
	err := row.Scan(&s.ID, &s.RouteID, &s.SegmentOrder, &s.FromLocation, &s.ToLocation,
		&s.DistanceKm, &s.EstimatedTimeHrs)
	return s, err
}

// ListRoutes returns one page of routes ordered by id, with the total match count
func (s *Store) ListRoutes(ctx context.Context, f RouteFilter) ([]models.Route, int, error) {
	b := f.builder()
	pageClause, pageArgs := b.Page(f.Page.Limit, f.Page.Offset())

	return listPage(ctx, s.pool,
		"SELECT COUNT(*) FROM routes"+b.WhereClause(), b.Args(),
		"SELECT "+routeColumns+" FROM routes"+b.WhereClause()+" ORDER BY id"+pageClause, pageArgs,
		scanRoute,
	)
}

// GetRoute returns a route by id
func (s *Store) GetRoute(ctx context.Context, id int64) (*models.Route, error) {
	r, err := scanRoute(s.pool.QueryRow(ctx, "SELECT "+routeColumns+" FROM routes WHERE id = $1", id))
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

// GetRouteByNumber returns an active route by its public number
func (s *Store) GetRouteByNumber(ctx context.Context, number string) (*models.Route, error) {
	r, err := scanRoute(s.pool.QueryRow(ctx,
		"SELECT "+routeColumns+" FROM routes WHERE route_number = $1 AND is_active = true", number))
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

// CreateRoute inserts a route and its segments in one transaction
func (s *Store) CreateRoute(ctx context.Context, in NewRoute) (*models.Route, error) {
	var route models.Route
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		route, err = scanRoute(tx.QueryRow(ctx,
			`INSERT INTO routes (route_number, from_city, to_city, distance_km, estimated_time_hrs)
			 VALUES ($1, $2, $3, $4, $5) RETURNING `+routeColumns,
			in.RouteNumber, in.FromCity, in.ToCity, in.DistanceKm, in.EstimatedTimeHrs))
		if err != nil {
			return translate(err)
		}
		for i, seg := range in.Segments {
			if _, err := insertSegment(ctx, tx, route.ID, i+1, seg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &route, nil
}

// UpdateRoute applies a partial update. Existing trip schedules are not recomputed.
func (s *Store) UpdateRoute(ctx context.Context, id int64, u RouteUpdate) (*models.Route, error) {
	var a assignments
	if u.RouteNumber != nil {
		a.set("route_number", *u.RouteNumber)
	}
	if u.FromCity != nil {
		a.set("from_city", *u.FromCity)
	}
	if u.ToCity != nil {
		a.set("to_city", *u.ToCity)
	}
	if u.DistanceKm != nil {
		a.set("distance_km", *u.DistanceKm)
	}
	if u.EstimatedTimeHrs != nil {
		a.set("estimated_time_hrs", *u.EstimatedTimeHrs)
	}
	if u.IsActive != nil {
		a.set("is_active", *u.IsActive)
	}
	if a.empty() {
		return s.GetRoute(ctx, id)
	}

	set, key, args := a.sql(id)
	r, err := scanRoute(s.pool.QueryRow(ctx,
		fmt.Sprintf("UPDATE routes SET %s, updated_at = NOW() WHERE id = %s RETURNING %s", set, key, routeColumns),
		args...))
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

// DeleteRoute removes a route and, by cascade, its segments, trips and fares
func (s *Store) DeleteRoute(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM routes WHERE id = $1", id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSegments returns the segments of a route in travel order
func (s *Store) ListSegments(ctx context.Context, routeID int64) ([]models.Segment, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+segmentColumns+" FROM route_segments WHERE route_id = $1 ORDER BY segment_order", routeID)
	segs, err := collect(rows, err, scanSegment)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	return segs, nil
}

// GetSegment returns a segment by id
func (s *Store) GetSegment(ctx context.Context, id int64) (*models.Segment, error) {
	seg, err := scanSegment(s.pool.QueryRow(ctx, "SELECT "+segmentColumns+" FROM route_segments WHERE id = $1", id))
	if err != nil {
		return nil, translate(err)
	}
	return &seg, nil
}

// AppendSegment adds a segment after the last one of the route
func (s *Store) AppendSegment(ctx context.Context, routeID int64, in NewSegment) (*models.Segment, error) {
	var seg models.Segment
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		// Lock the route row so concurrent appends get distinct orders
		var id int64
		if err := tx.QueryRow(ctx, "SELECT id FROM routes WHERE id = $1 FOR UPDATE", routeID).Scan(&id); err != nil {
			return translate(err)
		}
		var last int
		if err := tx.QueryRow(ctx,
			"SELECT COALESCE(MAX(segment_order), 0) FROM route_segments WHERE route_id = $1", routeID).Scan(&last); err != nil {
			return err
		}
		var err error
		seg, err = insertSegment(ctx, tx, routeID, last+1, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &seg, nil
}

func insertSegment(ctx context.Context, tx pgx.Tx, routeID int64, order int, in NewSegment) (models.Segment, error) {
	seg, err := scanSegment(tx.QueryRow(ctx,
		`INSERT INTO route_segments (route_id, segment_order, from_location, to_location, distance_km, estimated_time_hrs)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+segmentColumns,
		routeID, order, in.FromLocation, in.ToLocation, in.DistanceKm, in.EstimatedTimeHrs))
	if err != nil {
		return seg, translate(err)
	}
	return seg, nil
}

// ImportRoutes upserts routes by number and their segments by order in one
// transaction. Segments beyond those supplied are left in place.
func (s *Store) ImportRoutes(ctx context.Context, routes []NewRoute) (int, int, error) {
	var routeCount, segmentCount int
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, r := range routes {
			var id int64
			err := tx.QueryRow(ctx,
				`INSERT INTO routes (route_number, from_city, to_city, distance_km, estimated_time_hrs)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (route_number) DO UPDATE SET
				   from_city = EXCLUDED.from_city,
				   to_city = EXCLUDED.to_city,
				   distance_km = EXCLUDED.distance_km,
				   estimated_time_hrs = EXCLUDED.estimated_time_hrs,
				   updated_at = NOW()
				 RETURNING id`,
				r.RouteNumber, r.FromCity, r.ToCity, r.DistanceKm, r.EstimatedTimeHrs).Scan(&id)
			if err != nil {
				return fmt.Errorf("failed to upsert route %s: %w", r.RouteNumber, translate(err))
			}
			routeCount++

			for i, seg := range r.Segments {
				_, err := tx.Exec(ctx,
					`INSERT INTO route_segments (route_id, segment_order, from_location, to_location, distance_km, estimated_time_hrs)
					 VALUES ($1, $2, $3, $4, $5, $6)
					 ON CONFLICT (route_id, segment_order) DO UPDATE SET
					   from_location = EXCLUDED.from_location,
					   to_location = EXCLUDED.to_location,
					   distance_km = EXCLUDED.distance_km,
					   estimated_time_hrs = EXCLUDED.estimated_time_hrs`,
					id, i+1, seg.FromLocation, seg.ToLocation, seg.DistanceKm, seg.EstimatedTimeHrs)
				if err != nil {
					return fmt.Errorf("failed to upsert segment %d of route %s: %w", i+1, r.RouteNumber, translate(err))
				}
				segmentCount++
			}
		}
		return nil
	})
	return routeCount, segmentCount, err
}
