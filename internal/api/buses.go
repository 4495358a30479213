package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/auth"
	"github.com/kusalkrp/bus-tracking-api/internal/db"
	"github.com/kusalkrp/bus-tracking-api/internal/middleware"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
)

type createBusRequest struct {
	PlateNo      string  `json:"plate_no" validate:"required"`
	PermitNumber *string `json:"permit_number" validate:"omitempty,min=1"`
	OperatorID   string  `json:"operator_id"`
	OperatorType string  `json:"operator_type" validate:"omitempty,oneof=SLTB Private"`
	Capacity     int     `json:"capacity" validate:"gt=0"`
	Type         string  `json:"type" validate:"required"`
	ServiceType  string  `json:"service_type" validate:"omitempty,oneof=N LU SE"`
}

type updateBusRequest struct {
	PermitNumber *string `json:"permit_number" validate:"omitempty,min=1"`
	Capacity     *int    `json:"capacity" validate:"omitempty,gt=0"`
	Type         *string `json:"type" validate:"omitempty,min=1"`
	ServiceType  *string `json:"service_type" validate:"omitempty,oneof=N LU SE"`
	IsActive     *bool   `json:"is_active"`
}

func (r updateBusRequest) empty() bool {
	return r.PermitNumber == nil && r.Capacity == nil && r.Type == nil && r.ServiceType == nil && r.IsActive == nil
}

// owns reports whether the caller may act on resources of operatorID
func owns(user *auth.Claims, operatorID string) bool {
	return user.IsAdmin() || (user.IsOperator() && user.OperatorID == operatorID)
}

// ownedBus loads a bus and enforces operator ownership. On failure the
// response has already been written and ok is false.
func (s *Server) ownedBus(c *fiber.Ctx, id string) (bus *models.Bus, ok bool, err error) {
	bus, err = s.store.GetBus(c.UserContext(), id)
	if err != nil {
		return nil, false, s.storeError(c, err, "Bus not found", "")
	}
	if !owns(middleware.CurrentUser(c), bus.OperatorID) {
		return nil, false, c.Status(403).JSON(fiber.Map{"error": "Unauthorized: You do not own this bus"})
	}
	return bus, true, nil
}

// ListBuses handles GET /buses
func (s *Server) ListBuses(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	f := db.BusFilter{
		PermitNumbers:      queryList(c, "permit_number_in"),
		AvailableOnly:      c.Query("available") == "true",
		PlateNoLike:        c.Query("plate_no_like"),
		PassesThroughRoute: c.Query("passes_through_route"),
		FromLocation:       c.Query("from_location"),
		ToLocation:         c.Query("to_location"),
		Page:               parsePage(c),
	}
	if user.IsOperator() {
		f.OperatorID = user.OperatorID
	} else {
		f.OperatorID = c.Query("operatorId")
	}
	if st := models.ServiceType(c.Query("service_type")); st.Valid() {
		f.ServiceType = string(st)
	}
	if ot := models.OperatorType(c.Query("operator_type")); ot.Valid() {
		f.OperatorType = string(ot)
	}

	var err error
	if f.CapacityGt, err = queryInt(c, "capacity_gt"); err != nil {
		return badRequest(c, err.Error())
	}
	if f.CapacityLt, err = queryInt(c, "capacity_lt"); err != nil {
		return badRequest(c, err.Error())
	}

	buses, total, err := s.store.ListBuses(c.UserContext(), f)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(paged("buses", buses, total, f.Page))
}

// GetBus handles GET /buses/:busId. Commuters may read any bus.
func (s *Server) GetBus(c *fiber.Ctx) error {
	bus, err := s.store.GetBus(c.UserContext(), c.Params("busId"))
	if err != nil {
		return s.storeError(c, err, "Bus not found", "")
	}
	user := middleware.CurrentUser(c)
	if user.IsOperator() && user.OperatorID != bus.OperatorID {
		return c.Status(403).JSON(fiber.Map{"error": "Unauthorized: You do not own this bus"})
	}
	return c.JSON(bus)
}

// CreateBus handles POST /buses. Operators always register under their own id.
func (s *Server) CreateBus(c *fiber.Ctx) error {
	var req createBusRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	user := middleware.CurrentUser(c)

	in := db.NewBus{
		PlateNo:      strings.TrimSpace(req.PlateNo),
		PermitNumber: req.PermitNumber,
		OperatorID:   strings.TrimSpace(req.OperatorID),
		OperatorType: req.OperatorType,
		Capacity:     req.Capacity,
		Type:         strings.TrimSpace(req.Type),
		ServiceType:  req.ServiceType,
	}
	if user.IsOperator() {
		in.OperatorID = user.OperatorID
		if in.OperatorType == "" {
			in.OperatorType = user.OperatorType
		}
	}
	if in.OperatorID == "" {
		return badRequest(c, "operator_id is required for admin users")
	}
	if in.OperatorType == "" {
		in.OperatorType = string(models.OperatorPrivate)
	}
	if in.ServiceType == "" {
		in.ServiceType = string(models.ServiceNormal)
	}

	bus, err := s.store.CreateBus(c.UserContext(), in)
	if err != nil {
		return s.storeError(c, err, "Bus not found", "Bus with this plate number already exists")
	}
	return c.Status(201).JSON(bus)
}

// UpdateBus handles PUT /buses/:busId
func (s *Server) UpdateBus(c *fiber.Ctx) error {
	var req updateBusRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if !middleware.CurrentUser(c).IsAdmin() {
		// permit numbers are issued by the authority
		req.PermitNumber = nil
	}
	if req.empty() {
		return badRequest(c, "At least one field must be provided for update")
	}

	id := c.Params("busId")
	if _, ok, err := s.ownedBus(c, id); !ok {
		return err
	}

	bus, err := s.store.UpdateBus(c.UserContext(), id, db.BusUpdate{
		PermitNumber: req.PermitNumber,
		Capacity:     req.Capacity,
		Type:         req.Type,
		ServiceType:  req.ServiceType,
		IsActive:     req.IsActive,
	})
	if err != nil {
		return s.storeError(c, err, "Bus not found", "Bus with this permit number already exists")
	}
	return c.JSON(bus)
}

// DeleteBus handles DELETE /buses/:busId
func (s *Server) DeleteBus(c *fiber.Ctx) error {
	id := c.Params("busId")
	if _, ok, err := s.ownedBus(c, id); !ok {
		return err
	}
	if err := s.store.DeleteBus(c.UserContext(), id); err != nil {
		return s.storeError(c, err, "Bus not found", "")
	}
	return c.JSON(fiber.Map{"message": "Bus deleted successfully"})
}
