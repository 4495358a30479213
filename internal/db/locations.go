package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
	"github.com/kusalkrp/bus-tracking-api/internal/query"
)

const locationColumns = `trip_id, bus_id, latitude, longitude, speed_kmh, timestamp, current_segment_id,
	segment_progress_percentage, total_route_progress_percentage, estimated_delay_minutes`

// ActiveTrip returns the trip a bus is running at the given time: its In
// Progress trip, then its Delayed trip, then its latest Scheduled trip that
// has already departed. It returns nil when there is none.
func (s *Store) ActiveTrip(ctx context.Context, busID string, at time.Time) (*models.Trip, error) {
	t, err := scanTripWithOperator(s.pool.QueryRow(ctx,
		`SELECT `+tripColumns+`, b.operator_id
		 FROM trips t INNER JOIN buses b ON t.bus_id = b.id
		 WHERE t.bus_id = $1
		   AND (t.status IN ($2, $3) OR (t.status = $4 AND t.departure_time <= $5))
		 ORDER BY CASE t.status WHEN $2 THEN 0 WHEN $3 THEN 1 ELSE 2 END, t.departure_time DESC
		 LIMIT 1`,
		busID, models.StatusInProgress, models.StatusDelayed, models.StatusScheduled, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve active trip: %w", err)
	}
	return &t, nil
}

// AppendFix writes a fix to the durable location history
func (s *Store) AppendFix(ctx context.Context, fix *models.LocationFix) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO locations (`+locationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		fix.TripID, fix.BusID, fix.Latitude, fix.Longitude, fix.SpeedKmh, fix.Timestamp, fix.CurrentSegmentID,
		fix.SegmentProgressPercentage, fix.TotalRouteProgressPercentage, fix.EstimatedDelayMinutes)
	if err != nil {
		return fmt.Errorf("failed to append location: %w", translate(err))
	}
	return nil
}

// UpdateTripProgress records progress on the current trip segment and marks
// the segments before it complete, keeping any arrival already recorded.
func (s *Store) UpdateTripProgress(ctx context.Context, tripID string, segmentID int64, progress float64, at time.Time) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var order int
		err := tx.QueryRow(ctx, "SELECT segment_order FROM route_segments WHERE id = $1", segmentID).Scan(&order)
		if err != nil {
			return fmt.Errorf("failed to load segment %d: %w", segmentID, translate(err))
		}

		if _, err := tx.Exec(ctx,
			"UPDATE trip_segments SET progress_percentage = $1 WHERE trip_id = $2 AND segment_id = $3",
			progress, tripID, segmentID); err != nil {
			return fmt.Errorf("failed to update segment progress: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE trip_segments ts
			 SET progress_percentage = 100, actual_arrival_time = COALESCE(ts.actual_arrival_time, $1)
			 FROM route_segments rs
			 WHERE rs.id = ts.segment_id AND ts.trip_id = $2 AND rs.segment_order < $3`,
			at, tripID, order)
		if err != nil {
			return fmt.Errorf("failed to complete earlier segments: %w", err)
		}
		return nil
	})
}

// HistoryFilter selects the stored fixes of one bus
type HistoryFilter struct {
	BusID string
	From  *time.Time
	Page  Page
}

func (f HistoryFilter) builder() *query.Builder {
	b := query.New(query.Eq("bus_id", f.BusID))
	if f.From != nil {
		b.Where(query.Gte("timestamp", *f.From))
	}
	return b
}

func scanFix(row pgx.Row) (models.LocationFix, error) {
	var l models.LocationFix
	err := row.Scan(&l.TripID, &l.BusID, &l.Latitude, &l.Longitude, &l.SpeedKmh, &l.Timestamp, &l.CurrentSegmentID,
		&l.SegmentProgressPercentage, &l.TotalRouteProgressPercentage, &l.EstimatedDelayMinutes)
	return l, err
}

// History returns one page of a bus's fixes, newest first
func (s *Store) History(ctx context.Context, f HistoryFilter) ([]models.LocationFix, int, error) {
	b := f.builder()
	pageClause, pageArgs := b.Page(f.Page.Limit, f.Page.Offset())

	return listPage(ctx, s.pool,
		"SELECT COUNT(*) FROM locations"+b.WhereClause(), b.Args(),
		"SELECT "+locationColumns+" FROM locations"+b.WhereClause()+" ORDER BY timestamp DESC, id DESC"+pageClause, pageArgs,
		scanFix,
	)
}
