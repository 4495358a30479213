package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/db"
	"github.com/kusalkrp/bus-tracking-api/internal/middleware"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
)

// tripFields are the projectable trip attributes keyed by JSON name
var tripFields = map[string]func(t models.Trip) any{
	"id":             func(t models.Trip) any { return t.ID },
	"bus_id":         func(t models.Trip) any { return t.BusID },
	"route_id":       func(t models.Trip) any { return t.RouteID },
	"direction":      func(t models.Trip) any { return t.Direction },
	"service_type":   func(t models.Trip) any { return t.ServiceType },
	"departure_time": func(t models.Trip) any { return t.DepartureTime },
	"arrival_time":   func(t models.Trip) any { return t.ArrivalTime },
	"interval_min":   func(t models.Trip) any { return t.IntervalMin },
	"status":         func(t models.Trip) any { return t.Status },
	"created_at":     func(t models.Trip) any { return t.CreatedAt },
	"updated_at":     func(t models.Trip) any { return t.UpdatedAt },
}

// projectTrips keeps only the requested known fields. With none known the
// trips are returned whole.
func projectTrips(trips []models.Trip, requested []string) any {
	var fields []string
	for _, f := range requested {
		if _, ok := tripFields[f]; ok {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return trips
	}

	out := make([]fiber.Map, len(trips))
	for i, t := range trips {
		m := fiber.Map{}
		for _, f := range fields {
			m[f] = tripFields[f](t)
		}
		out[i] = m
	}
	return out
}

type createTripRequest struct {
	BusID       string `json:"bus_id" validate:"required"`
	RouteNumber string `json:"route_number" validate:"required"`
	Direction   string `json:"direction" validate:"required,oneof=outbound inbound"`
	ServiceType string `json:"service_type" validate:"required,oneof=N LU SE"`
	Departure   string `json:"departure_time" validate:"required"`
	IntervalMin *int   `json:"interval_min" validate:"omitempty,gt=0"`
}

type updateTripRequest struct {
	Status string `json:"status"`
}

// tripFilter reads the listing filters of GET /routes/:routeNumber/trips
func (s *Server) tripFilter(c *fiber.Ctx, routeID int64) (db.TripFilter, error) {
	f := db.TripFilter{
		RouteID: routeID,
		Stop:    c.Query("stop", c.Query("stop_like")),
		Now:     s.now(),
		Page:    parsePage(c),
	}
	if d := models.Direction(c.Query("direction")); d.Valid() {
		f.Direction = string(d)
	}
	if st := models.ServiceType(c.Query("service_type")); st.Valid() {
		f.ServiceType = string(st)
	}
	for _, status := range queryList(c, "status_in") {
		if models.TripStatus(status).Valid() {
			f.Statuses = append(f.Statuses, status)
		}
	}
	if from, to := c.Query("from_stop"), c.Query("to_stop"); from != "" && to != "" {
		f.FromStop, f.ToStop = from, to
	}
	f.SortField, f.SortDesc = parseSort(c.Query("sort"))

	var err error
	for key, dst := range map[string]**time.Time{
		"date":              &f.Day,
		"startDate":         &f.StartDate,
		"endDate":           &f.EndDate,
		"departure_time_gt": &f.DepartureAfter,
		"departure_time_lt": &f.DepartureBefore,
	} {
		if *dst, err = queryTime(c, key); err != nil {
			return f, err
		}
	}
	if f.Day != nil {
		day := f.Day.Truncate(24 * time.Hour)
		f.Day = &day
	}

	hours, err := queryFloat(c, "next_hours")
	if err != nil {
		return f, err
	}
	if hours != nil && *hours > 0 {
		f.Window = time.Duration(*hours * float64(time.Hour))
	}

	if f.IntervalLt, err = queryInt(c, "interval_min_lt"); err != nil {
		return f, err
	}
	if f.IntervalGt, err = queryInt(c, "interval_min_gt"); err != nil {
		return f, err
	}
	if f.MinFare, err = queryFloat(c, "min_fare"); err != nil {
		return f, err
	}
	if f.MaxFare, err = queryFloat(c, "max_fare"); err != nil {
		return f, err
	}

	if user := middleware.CurrentUser(c); user.IsOperator() {
		f.OperatorID = user.OperatorID
	}
	return f, nil
}

// ListTrips handles GET /routes/:routeNumber/trips, including the aggregate form
func (s *Server) ListTrips(c *fiber.Ctx) error {
	ctx := c.UserContext()
	routeNumber := c.Params("routeNumber")

	route, err := s.store.GetRouteByNumber(ctx, routeNumber)
	if err != nil {
		return s.storeError(c, err, "Route not found", "")
	}
	f, err := s.tripFilter(c, route.ID)
	if err != nil {
		return badRequest(c, err.Error())
	}

	switch aggregate := c.Query("aggregate"); aggregate {
	case "":
	case "count":
		n, err := s.store.CountTrips(ctx, f)
		if err != nil {
			return s.internalError(c, err)
		}
		return c.JSON(fiber.Map{"route_number": routeNumber, "aggregate_type": aggregate, "result": fiber.Map{"count": n}})
	case "avg_delay":
		avg, err := s.store.AverageDelayHours(ctx, f)
		if err != nil {
			return s.internalError(c, err)
		}
		return c.JSON(fiber.Map{"route_number": routeNumber, "aggregate_type": aggregate, "result": fiber.Map{"avg_delay_hours": avg}})
	default:
		return badRequest(c, "Invalid aggregate type. Supported: count, avg_delay")
	}

	trips, total, err := s.store.ListTrips(ctx, f)
	if err != nil {
		return s.internalError(c, err)
	}
	resp := paged("trips", projectTrips(trips, queryList(c, "fields")), total, f.Page)
	resp["route_number"] = routeNumber
	return c.JSON(resp)
}

// ownedTrip loads a trip and enforces operator ownership. On failure the
// response has already been written and ok is false.
func (s *Server) ownedTrip(c *fiber.Ctx) (trip *models.Trip, ok bool, err error) {
	trip, err = s.store.GetTrip(c.UserContext(), c.Params("tripId"))
	if err != nil {
		return nil, false, s.storeError(c, err, "Trip not found", "")
	}
	user := middleware.CurrentUser(c)
	if user.IsOperator() && user.OperatorID != trip.OperatorID {
		return nil, false, c.Status(403).JSON(fiber.Map{"error": "Unauthorized: You do not own this trip"})
	}
	return trip, true, nil
}

// GetTrip handles GET /trips/:tripId
func (s *Server) GetTrip(c *fiber.Ctx) error {
	trip, ok, err := s.ownedTrip(c)
	if !ok {
		return err
	}
	return c.JSON(trip)
}

// CreateTrip handles POST /trips
func (s *Server) CreateTrip(c *fiber.Ctx) error {
	var req createTripRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	departure, err := parseTime(req.Departure)
	if err != nil {
		return badRequest(c, "departure_time must be a valid date")
	}
	ctx := c.UserContext()

	bus, ok, err := s.ownedBus(c, strings.TrimSpace(req.BusID))
	if !ok {
		return err
	}
	if bus.ServiceType != req.ServiceType {
		return badRequest(c, "Service type must match bus service type")
	}
	route, err := s.store.GetRouteByNumber(ctx, req.RouteNumber)
	if err != nil {
		return s.storeError(c, err, "Route not found", "")
	}

	trip, err := s.store.CreateTrip(ctx, db.NewTrip{
		BusID:       bus.ID,
		RouteID:     route.ID,
		Direction:   req.Direction,
		ServiceType: req.ServiceType,
		Departure:   departure,
		IntervalMin: req.IntervalMin,
	})
	if err != nil {
		return s.storeError(c, err, "Route not found", "Trip with this bus and departure time already exists")
	}
	return c.Status(201).JSON(trip)
}

// UpdateTrip handles PUT /trips/:tripId. Only lifecycle transitions are accepted.
func (s *Server) UpdateTrip(c *fiber.Ctx) error {
	var req updateTripRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	next := models.TripStatus(req.Status)
	if !next.Valid() {
		return badRequest(c, "Status must be one of: Scheduled, In Progress, Completed, Delayed, Cancelled")
	}

	trip, ok, err := s.ownedTrip(c)
	if !ok {
		return err
	}
	if trip.Status == next {
		return c.JSON(trip)
	}
	if !trip.Status.CanTransitionTo(next) {
		return badRequest(c, "Invalid status transition from "+string(trip.Status)+" to "+string(next))
	}

	updated, err := s.store.UpdateTripStatus(c.UserContext(), trip.ID, trip.Status, next)
	if errors.Is(err, db.ErrConflict) {
		return c.Status(409).JSON(fiber.Map{"error": "Trip status was changed concurrently"})
	}
	if err != nil {
		return s.storeError(c, err, "Trip not found", "")
	}
	return c.JSON(updated)
}

// DeleteTrip handles DELETE /trips/:tripId
func (s *Server) DeleteTrip(c *fiber.Ctx) error {
	trip, ok, err := s.ownedTrip(c)
	if !ok {
		return err
	}
	if err := s.store.DeleteTrip(c.UserContext(), trip.ID); err != nil {
		return s.storeError(c, err, "Trip not found", "")
	}
	return c.JSON(fiber.Map{"message": "Trip deleted successfully"})
}

// ListTripSegments handles GET /trips/:tripId/segments
func (s *Server) ListTripSegments(c *fiber.Ctx) error {
	trip, ok, err := s.ownedTrip(c)
	if !ok {
		return err
	}
	segments, err := s.store.ListTripSegments(c.UserContext(), trip.ID)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(fiber.Map{"trip_id": trip.ID, "segments": segments})
}
