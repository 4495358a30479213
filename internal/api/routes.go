package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/db"
)

type segmentRequest struct {
	FromLocation     string  `json:"from_location" validate:"required"`
	ToLocation       string  `json:"to_location" validate:"required"`
	DistanceKm       float64 `json:"distance_km" validate:"gt=0"`
	EstimatedTimeHrs float64 `json:"estimated_time_hrs" validate:"gt=0"`
}

func (r segmentRequest) toNew() db.NewSegment {
	return db.NewSegment{
		FromLocation:     r.FromLocation,
		ToLocation:       r.ToLocation,
		DistanceKm:       r.DistanceKm,
		EstimatedTimeHrs: r.EstimatedTimeHrs,
	}
}

type createRouteRequest struct {
	RouteNumber      string           `json:"route_number" validate:"required"`
	FromCity         string           `json:"from_city" validate:"required"`
	ToCity           string           `json:"to_city" validate:"required"`
	DistanceKm       float64          `json:"distance_km" validate:"gt=0"`
	EstimatedTimeHrs float64          `json:"estimated_time_hrs" validate:"gt=0"`
	Segments         []segmentRequest `json:"segments" validate:"omitempty,dive"`
}

type updateRouteRequest struct {
	RouteNumber      *string  `json:"route_number" validate:"omitempty,min=1"`
	FromCity         *string  `json:"from_city" validate:"omitempty,min=1"`
	ToCity           *string  `json:"to_city" validate:"omitempty,min=1"`
	DistanceKm       *float64 `json:"distance_km" validate:"omitempty,gt=0"`
	EstimatedTimeHrs *float64 `json:"estimated_time_hrs" validate:"omitempty,gt=0"`
	IsActive         *bool    `json:"is_active"`
}

func (r updateRouteRequest) empty() bool {
	return r.RouteNumber == nil && r.FromCity == nil && r.ToCity == nil &&
		r.DistanceKm == nil && r.EstimatedTimeHrs == nil && r.IsActive == nil
}

// routeID parses the :routeId parameter, which must be a positive integer
func routeID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("routeId"), 10, 64)
	return id, err == nil && id > 0
}

// ListRoutes handles GET /routes
func (s *Server) ListRoutes(c *fiber.Ctx) error {
	page := parsePage(c)
	routes, total, err := s.store.ListRoutes(c.UserContext(), db.RouteFilter{
		From: c.Query("from"),
		To:   c.Query("to"),
		Page: page,
	})
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(paged("routes", routes, total, page))
}

// GetRoute handles GET /routes/:routeId
func (s *Server) GetRoute(c *fiber.Ctx) error {
	id, ok := routeID(c)
	if !ok {
		return badRequest(c, "Invalid route ID")
	}
	route, err := s.store.GetRoute(c.UserContext(), id)
	if err != nil {
		return s.storeError(c, err, "Route not found", "")
	}
	return c.JSON(route)
}

// CreateRoute handles POST /routes. Segments are numbered in the order given.
func (s *Server) CreateRoute(c *fiber.Ctx) error {
	var req createRouteRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	in := db.NewRoute{
		RouteNumber:      req.RouteNumber,
		FromCity:         req.FromCity,
		ToCity:           req.ToCity,
		DistanceKm:       req.DistanceKm,
		EstimatedTimeHrs: req.EstimatedTimeHrs,
	}
	for _, seg := range req.Segments {
		in.Segments = append(in.Segments, seg.toNew())
	}

	route, err := s.store.CreateRoute(c.UserContext(), in)
	if err != nil {
		return s.storeError(c, err, "Route not found", "Route already exists")
	}
	return c.Status(201).JSON(route)
}

// UpdateRoute handles PUT /routes/:routeId
func (s *Server) UpdateRoute(c *fiber.Ctx) error {
	id, ok := routeID(c)
	if !ok {
		return badRequest(c, "Invalid route ID")
	}
	var req updateRouteRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.empty() {
		return badRequest(c, "At least one field must be provided for update")
	}

	route, err := s.store.UpdateRoute(c.UserContext(), id, db.RouteUpdate{
		RouteNumber:      req.RouteNumber,
		FromCity:         req.FromCity,
		ToCity:           req.ToCity,
		DistanceKm:       req.DistanceKm,
		EstimatedTimeHrs: req.EstimatedTimeHrs,
		IsActive:         req.IsActive,
	})
	if err != nil {
		return s.storeError(c, err, "Route not found", "Route with this number already exists")
	}
	return c.JSON(route)
}

// DeleteRoute handles DELETE /routes/:routeId
func (s *Server) DeleteRoute(c *fiber.Ctx) error {
	id, ok := routeID(c)
	if !ok {
		return badRequest(c, "Invalid route ID")
	}
	if err := s.store.DeleteRoute(c.UserContext(), id); err != nil {
		return s.storeError(c, err, "Route not found", "")
	}
	return c.JSON(fiber.Map{"message": "Route deleted successfully"})
}

// ListSegments handles GET /routes/:routeId/segments
func (s *Server) ListSegments(c *fiber.Ctx) error {
	id, ok := routeID(c)
	if !ok {
		return badRequest(c, "Invalid route ID")
	}
	ctx := c.UserContext()
	if _, err := s.store.GetRoute(ctx, id); err != nil {
		return s.storeError(c, err, "Route not found", "")
	}
	segments, err := s.store.ListSegments(ctx, id)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(fiber.Map{"route_id": id, "segments": segments})
}

// AppendSegment handles POST /routes/:routeId/segments
func (s *Server) AppendSegment(c *fiber.Ctx) error {
	id, ok := routeID(c)
	if !ok {
		return badRequest(c, "Invalid route ID")
	}
	var req segmentRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	seg, err := s.store.AppendSegment(c.UserContext(), id, req.toNew())
	if err != nil {
		return s.storeError(c, err, "Route not found", "Segment order already taken")
	}
	return c.Status(201).JSON(seg)
}
