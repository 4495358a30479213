package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/db"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
)

// fareView is a fare as listed under its service type
type fareView struct {
	ID               int64      `json:"id"`
	FromLocation     string     `json:"from_location"`
	ToLocation       string     `json:"to_location"`
	FareAmount       float64    `json:"fare_amount"`
	Currency         string     `json:"currency"`
	EffectiveDate    time.Time  `json:"effective_date"`
	ExpiryDate       *time.Time `json:"expiry_date"`
	FromSegmentOrder int        `json:"from_segment_order"`
	ToSegmentOrder   int        `json:"to_segment_order"`
}

var fareFields = map[string]func(f models.Fare) any{
	"id":             func(f models.Fare) any { return f.ID },
	"service_type":   func(f models.Fare) any { return f.ServiceType },
	"fare_amount":    func(f models.Fare) any { return f.FareAmount },
	"currency":       func(f models.Fare) any { return f.Currency },
	"effective_date": func(f models.Fare) any { return f.EffectiveDate },
	"expiry_date":    func(f models.Fare) any { return f.ExpiryDate },
	"from_location":  func(f models.Fare) any { return f.FromLocation },
	"to_location":    func(f models.Fare) any { return f.ToLocation },
}

// groupFares renders fares keyed by service type, or as a flat projection
// when known fields were requested.
func groupFares(fares []models.Fare, requested []string) any {
	var fields []string
	for _, f := range requested {
		if _, ok := fareFields[f]; ok {
			fields = append(fields, f)
		}
	}
	if len(fields) > 0 {
		out := make([]fiber.Map, len(fares))
		for i, fare := range fares {
			m := fiber.Map{}
			for _, f := range fields {
				m[f] = fareFields[f](fare)
			}
			out[i] = m
		}
		return out
	}

	grouped := map[string][]fareView{}
	for _, f := range fares {
		grouped[f.ServiceType] = append(grouped[f.ServiceType], fareView{
			ID:               f.ID,
			FromLocation:     f.FromLocation,
			ToLocation:       f.ToLocation,
			FareAmount:       f.FareAmount,
			Currency:         f.Currency,
			EffectiveDate:    f.EffectiveDate,
			ExpiryDate:       f.ExpiryDate,
			FromSegmentOrder: f.FromSegmentOrder,
			ToSegmentOrder:   f.ToSegmentOrder,
		})
	}
	return grouped
}

type createFareRequest struct {
	ServiceType      string  `json:"service_type" validate:"required,oneof=N LU SE"`
	FromSegmentOrder int     `json:"from_segment_order" validate:"gte=1"`
	ToSegmentOrder   int     `json:"to_segment_order" validate:"gte=1"`
	FareAmount       float64 `json:"fare_amount" validate:"gte=0"`
	EffectiveDate    string  `json:"effective_date"`
	ExpiryDate       string  `json:"expiry_date"`
}

// ListFares handles GET /routes/:routeNumber/fares
func (s *Server) ListFares(c *fiber.Ctx) error {
	routeNumber := c.Params("routeNumber")
	f := db.FareFilter{
		RouteNumber: routeNumber,
		AsOf:        s.now().UTC().Truncate(24 * time.Hour),
		ServiceType: c.Query("service_type"),
		FromStop:    c.Query("from_stop"),
		ToStop:      c.Query("to_stop"),
		Page:        parsePage(c),
	}
	f.SortField, f.SortDesc = parseSort(c.Query("sort"))

	var err error
	if f.AmountLt, err = queryFloat(c, "fare_amount_lt"); err != nil {
		return badRequest(c, err.Error())
	}
	if f.AmountGt, err = queryFloat(c, "fare_amount_gt"); err != nil {
		return badRequest(c, err.Error())
	}
	if f.EffectiveAfter, err = queryTime(c, "effective_date_gt"); err != nil {
		return badRequest(c, err.Error())
	}
	if f.EffectiveBefore, err = queryTime(c, "effective_date_lt"); err != nil {
		return badRequest(c, err.Error())
	}

	fares, total, err := s.store.ListFares(c.UserContext(), f)
	if err != nil {
		return s.internalError(c, err)
	}
	if len(fares) == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "No fares found for this route with the specified filters"})
	}

	resp := paged("fares", groupFares(fares, queryList(c, "fields")), total, f.Page)
	resp["route_number"] = routeNumber
	return c.JSON(resp)
}

// CreateFare handles POST /routes/:routeNumber/fares
func (s *Server) CreateFare(c *fiber.Ctx) error {
	var req createFareRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.FromSegmentOrder >= req.ToSegmentOrder {
		return badRequest(c, "from_segment_order must be less than to_segment_order")
	}

	in := db.NewFare{
		ServiceType:   req.ServiceType,
		FareAmount:    req.FareAmount,
		EffectiveDate: s.now().UTC().Truncate(24 * time.Hour),
	}
	if req.EffectiveDate != "" {
		t, err := parseTime(req.EffectiveDate)
		if err != nil {
			return badRequest(c, "effective_date must be a valid date")
		}
		in.EffectiveDate = t
	}
	if req.ExpiryDate != "" {
		t, err := parseTime(req.ExpiryDate)
		if err != nil {
			return badRequest(c, "expiry_date must be a valid date")
		}
		in.ExpiryDate = &t
	}

	ctx := c.UserContext()
	route, err := s.store.GetRouteByNumber(ctx, c.Params("routeNumber"))
	if err != nil {
		return s.storeError(c, err, "Route not found", "")
	}
	in.RouteID = route.ID

	segments, err := s.store.ListSegments(ctx, route.ID)
	if err != nil {
		return s.internalError(c, err)
	}
	for _, seg := range segments {
		switch seg.SegmentOrder {
		case req.FromSegmentOrder:
			in.FromSegmentID = seg.ID
		case req.ToSegmentOrder:
			in.ToSegmentID = seg.ID
		}
	}
	if in.FromSegmentID == 0 || in.ToSegmentID == 0 {
		return badRequest(c, "Invalid segment orders for this route")
	}

	fare, err := s.store.CreateFare(ctx, in)
	if err != nil {
		return s.storeError(c, err, "Route not found", "Fare already exists for this route, service type, and segment combination")
	}
	return c.Status(201).JSON(fare)
}
