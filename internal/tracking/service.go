package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kusalkrp/bus-tracking-api/internal/logging"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
)

var (
	// ErrNoActiveTrip is returned when a bus reports a position without a running trip
	ErrNoActiveTrip = errors.New("no active trip for this bus")
	// ErrUnknownSegment is returned when a client names a segment outside the trip's route
	ErrUnknownSegment = errors.New("current_segment_id does not belong to the trip's route")
)

// Store is the persistence needed to record a fix
type Store interface {
	// ActiveTrip returns the trip bus busID is running at the given time,
	// or nil when there is none.
	ActiveTrip(ctx context.Context, busID string, at time.Time) (*models.Trip, error)
	GetRoute(ctx context.Context, id int64) (*models.Route, error)
	ListSegments(ctx context.Context, routeID int64) ([]models.Segment, error)
	AppendFix(ctx context.Context, fix *models.LocationFix) error
	// UpdateTripProgress records progress on the current segment and marks
	// every earlier segment of the trip as complete.
	UpdateTripProgress(ctx context.Context, tripID string, segmentID int64, progress float64, at time.Time) error
}

// Cache holds the latest fix per trip and per bus
type Cache interface {
	TripLocation(ctx context.Context, tripID string) (*models.LocationFix, error)
	StoreFix(ctx context.Context, fix *models.LocationFix) error
}

// Publisher fans a fix out to live subscribers
type Publisher interface {
	PublishFix(routeNumber string, fix *models.LocationFix) error
}

// Metrics observes recorded fixes
type Metrics interface {
	ObserveFix(overridden bool, delayMinutes float64)
}

// Report is one position report as received from a bus
type Report struct {
	Latitude  float64
	Longitude float64
	SpeedKmh  *float64
	Timestamp time.Time
	Overrides Progress
}

// Service records location fixes
type Service struct {
	store     Store
	cache     Cache
	publisher Publisher
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides the time source used for reports without a timestamp
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a location recording service
func NewService(store Store, cache Cache, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cache:  cache,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record resolves the bus's active trip, derives progress, merges client
// overrides and persists the resulting fix to the cache and the history.
func (s *Service) Record(ctx context.Context, busID string, r Report) (*models.LocationFix, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}

	trip, err := s.store.ActiveTrip(ctx, busID, r.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active trip: %w", err)
	}
	if trip == nil {
		return nil, ErrNoActiveTrip
	}

	route, err := s.store.GetRoute(ctx, trip.RouteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load route %d: %w", trip.RouteID, err)
	}
	segments, err := s.store.ListSegments(ctx, trip.RouteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load segments of route %d: %w", trip.RouteID, err)
	}
	chain := NewChain(segments)

	if id := r.Overrides.CurrentSegmentID; id != nil && chain.IndexOf(*id) < 0 {
		return nil, ErrUnknownSegment
	}

	server := Estimate(TripContext{
		Departure:  trip.DepartureTime,
		RouteHours: route.EstimatedTimeHrs,
		RouteKm:    route.DistanceKm,
		Chain:      chain,
	}, Observation{Timestamp: r.Timestamp, SpeedKmh: r.SpeedKmh})
	merged := Merge(r.Overrides, server)

	fix := &models.LocationFix{
		TripID:                       trip.ID,
		BusID:                        busID,
		Latitude:                     r.Latitude,
		Longitude:                    r.Longitude,
		SpeedKmh:                     r.SpeedKmh,
		Timestamp:                    r.Timestamp,
		CurrentSegmentID:             merged.CurrentSegmentID,
		SegmentProgressPercentage:    merged.SegmentProgressPercentage,
		TotalRouteProgressPercentage: merged.TotalRouteProgressPercentage,
		EstimatedDelayMinutes:        merged.EstimatedDelayMinutes,
		CurrentSegment:               Describe(chain, merged),
	}

	prev, err := s.cache.TripLocation(ctx, trip.ID)
	if err != nil {
		logging.LogError(s.logger, "failed to read previous fix", err, slog.String("trip_id", trip.ID))
	} else if prev != nil {
		d := math.Round(DistanceKm(prev.Latitude, prev.Longitude, fix.Latitude, fix.Longitude)*1000) / 1000
		fix.DistanceFromLastFixKm = &d
	}

	if err := s.cache.StoreFix(ctx, fix); err != nil {
		return nil, fmt.Errorf("failed to cache fix: %w", err)
	}
	if err := s.store.AppendFix(ctx, fix); err != nil {
		return nil, fmt.Errorf("failed to append fix to history: %w", err)
	}
	if fix.CurrentSegmentID != nil && fix.SegmentProgressPercentage != nil {
		if err := s.store.UpdateTripProgress(ctx, trip.ID, *fix.CurrentSegmentID, *fix.SegmentProgressPercentage, fix.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to update trip progress: %w", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishFix(route.RouteNumber, fix); err != nil {
			logging.LogError(s.logger, "failed to publish fix", err,
				slog.String("trip_id", trip.ID),
				slog.String("route_number", route.RouteNumber))
		}
	}
	if s.metrics != nil {
		var delay float64
		if fix.EstimatedDelayMinutes != nil {
			delay = *fix.EstimatedDelayMinutes
		}
		s.metrics.ObserveFix(r.Overrides.Overridden(), delay)
	}

	logging.LogOperation(s.logger, "location_recorded",
		slog.String("trip_id", trip.ID),
		slog.String("bus_id", busID))

	return fix, nil
}
