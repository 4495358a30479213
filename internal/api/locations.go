package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/db"
	"github.com/kusalkrp/bus-tracking-api/internal/middleware"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
	"github.com/kusalkrp/bus-tracking-api/internal/tracking"
)

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	SpeedKmh  *float64 `json:"speed_kmh" validate:"omitempty,gte=0"`
	Timestamp string   `json:"timestamp"`

	CurrentSegmentID             *int64   `json:"current_segment_id" validate:"omitempty,gt=0"`
	SegmentProgressPercentage    *float64 `json:"segment_progress_percentage" validate:"omitempty,gte=0,lte=100"`
	TotalRouteProgressPercentage *float64 `json:"total_route_progress_percentage" validate:"omitempty,gte=0,lte=100"`
	EstimatedDelayMinutes        *float64 `json:"estimated_delay_minutes"`
}

// PostLocation handles POST /buses/:busId/location
func (s *Server) PostLocation(c *fiber.Ctx) error {
	var req locationRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	report := tracking.Report{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		SpeedKmh:  req.SpeedKmh,
		Overrides: tracking.Progress{
			CurrentSegmentID:             req.CurrentSegmentID,
			SegmentProgressPercentage:    req.SegmentProgressPercentage,
			TotalRouteProgressPercentage: req.TotalRouteProgressPercentage,
			EstimatedDelayMinutes:        req.EstimatedDelayMinutes,
		},
	}
	if req.Timestamp != "" {
		t, err := parseTime(req.Timestamp)
		if err != nil {
			return badRequest(c, "timestamp must be a valid date")
		}
		report.Timestamp = t
	} else {
		report.Timestamp = s.now().UTC()
	}

	fix, err := s.recorder.Record(c.UserContext(), c.Params("busId"), report)
	switch {
	case errors.Is(err, tracking.ErrNoActiveTrip):
		return badRequest(c, "No active trip for this bus")
	case errors.Is(err, tracking.ErrUnknownSegment):
		return badRequest(c, "current_segment_id does not belong to this trip's route")
	case err != nil:
		return s.internalError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Location updated successfully", "location": fix})
}

// locationFilter holds the optional match criteria of a trip location read
type locationFilter struct {
	progressGt *float64
	progressLt *float64
	segment    string
	delayGt    *float64
}

func parseLocationFilter(c *fiber.Ctx) (locationFilter, error) {
	f := locationFilter{segment: strings.ToLower(c.Query("current_segment"))}
	var err error
	if f.progressGt, err = queryFloat(c, "progress_gt"); err != nil {
		return f, err
	}
	if f.progressLt, err = queryFloat(c, "progress_lt"); err != nil {
		return f, err
	}
	if f.delayGt, err = queryFloat(c, "estimated_delay_gt"); err != nil {
		return f, err
	}
	return f, nil
}

// match reports whether fix passes every filter that applies to it. A filter
// on a field the fix does not carry is ignored.
func (f locationFilter) match(fix *models.LocationFix) bool {
	if p := fix.SegmentProgressPercentage; p != nil {
		if f.progressGt != nil && *p <= *f.progressGt {
			return false
		}
		if f.progressLt != nil && *p >= *f.progressLt {
			return false
		}
	}
	if seg := fix.CurrentSegment; seg != nil {
		if f.segment != "" && !strings.Contains(strings.ToLower(seg.ProgressDescription), f.segment) {
			return false
		}
		if f.delayGt != nil && seg.EstimatedDelayMinutes <= *f.delayGt {
			return false
		}
	}
	return true
}

// filteredTripFix reads the cached fix of :tripId and applies the query
// filters. On failure the response has already been written and fix is nil.
func (s *Server) filteredTripFix(c *fiber.Ctx) (*models.LocationFix, error) {
	f, err := parseLocationFilter(c)
	if err != nil {
		return nil, badRequest(c, err.Error())
	}
	fix, err := s.locations.TripLocation(c.UserContext(), c.Params("tripId"))
	if err != nil {
		return nil, s.internalError(c, err)
	}
	if fix == nil {
		return nil, c.Status(404).JSON(fiber.Map{"error": "No location data available"})
	}
	if !f.match(fix) {
		return nil, c.Status(404).JSON(fiber.Map{"error": "Location data does not match filter criteria"})
	}
	return fix, nil
}

// TripLocation handles GET /trips/:tripId/location
func (s *Server) TripLocation(c *fiber.Ctx) error {
	fix, err := s.filteredTripFix(c)
	if fix == nil {
		return err
	}
	return c.JSON(fix)
}

// tripSchedule is the timetable context of a detailed location
type tripSchedule struct {
	TripID                  string            `json:"trip_id"`
	RouteNumber             string            `json:"route_number"`
	DepartureTime           time.Time         `json:"departure_time"`
	ArrivalTime             time.Time         `json:"arrival_time"`
	Status                  models.TripStatus `json:"status"`
	SegmentScheduledArrival *time.Time        `json:"segment_scheduled_arrival,omitempty"`
}

// DetailedTripLocation handles GET /trips/:tripId/location/detailed
func (s *Server) DetailedTripLocation(c *fiber.Ctx) error {
	fix, err := s.filteredTripFix(c)
	if fix == nil {
		return err
	}
	ctx := c.UserContext()

	trip, err := s.store.GetTrip(ctx, fix.TripID)
	if err != nil {
		return s.storeError(c, err, "Trip not found", "")
	}
	route, err := s.store.GetRoute(ctx, trip.RouteID)
	if err != nil {
		return s.storeError(c, err, "Route not found", "")
	}
	schedule := tripSchedule{
		TripID:        trip.ID,
		RouteNumber:   route.RouteNumber,
		DepartureTime: trip.DepartureTime,
		ArrivalTime:   trip.ArrivalTime,
		Status:        trip.Status,
	}

	resp := fiber.Map{"location": fix, "schedule": &schedule}
	if fix.CurrentSegmentID == nil {
		return c.JSON(resp)
	}

	segment, err := s.store.GetSegment(ctx, *fix.CurrentSegmentID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return s.internalError(c, err)
	}
	if segment != nil {
		resp["segment"] = segment
	}
	tripSegments, err := s.store.ListTripSegments(ctx, trip.ID)
	if err != nil {
		return s.internalError(c, err)
	}
	for _, ts := range tripSegments {
		if ts.SegmentID == *fix.CurrentSegmentID {
			at := ts.ScheduledArrivalTime
			schedule.SegmentScheduledArrival = &at
		}
	}
	return c.JSON(resp)
}

// BusLocation handles GET /buses/:busId/location
func (s *Server) BusLocation(c *fiber.Ctx) error {
	fix, err := s.locations.BusLocation(c.UserContext(), c.Params("busId"))
	if err != nil {
		return s.internalError(c, err)
	}
	if fix == nil {
		return c.Status(404).JSON(fiber.Map{"error": "No location data available"})
	}
	return c.JSON(fix)
}

// LocationHistory handles GET /buses/:busId/locations/history
func (s *Server) LocationHistory(c *fiber.Ctx) error {
	id := c.Params("busId")
	if user := middleware.CurrentUser(c); user.IsOperator() {
		if _, ok, err := s.ownedBus(c, id); !ok {
			return err
		}
	}

	from, err := queryTime(c, "from")
	if err != nil {
		return badRequest(c, err.Error())
	}
	f := db.HistoryFilter{BusID: id, From: from, Page: parsePage(c)}

	fixes, total, err := s.store.History(c.UserContext(), f)
	if err != nil {
		return s.internalError(c, err)
	}
	resp := paged("locations", fixes, total, f.Page)
	resp["bus_id"] = id
	return c.JSON(resp)
}
