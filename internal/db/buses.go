package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
	"github.com/kusalkrp/bus-tracking-api/internal/query"
)

const busColumns = "b.id, b.plate_no, b.permit_number, b.operator_id, b.operator_type, b.capacity, b.type, b.service_type, b.is_active, b.created_at, b.updated_at"

// BusFilter selects buses. Zero values disable a filter.
type BusFilter struct {
	OperatorID    string
	PermitNumbers []string
	CapacityGt    *int
	CapacityLt    *int
	AvailableOnly bool
	PlateNoLike   string
	ServiceType   string
	OperatorType  string
	// PassesThroughRoute matches buses with a trip on the route of that number
	PassesThroughRoute string
	// FromLocation and ToLocation together match buses serving a route with a
	// segment touching FromLocation at or before one touching ToLocation
	FromLocation string
	ToLocation   string
	Page         Page
}

func (f BusFilter) builder() *query.Builder {
	b := query.New()
	if f.OperatorID != "" {
		b.Where(query.Eq("b.operator_id", f.OperatorID))
	}
	if len(f.PermitNumbers) > 0 {
		b.Where(query.In("b.permit_number", f.PermitNumbers...))
	}
	if f.CapacityGt != nil {
		b.Where(query.Gt("b.capacity", *f.CapacityGt))
	}
	if f.CapacityLt != nil {
		b.Where(query.Lt("b.capacity", *f.CapacityLt))
	}
	if f.AvailableOnly {
		b.Where(query.Raw("b.is_active = true"))
	}
	if f.PlateNoLike != "" {
		b.Where(query.Contains(f.PlateNoLike, "b.plate_no"))
	}
	if f.ServiceType != "" {
		b.Where(query.Eq("b.service_type", f.ServiceType))
	}
	if f.OperatorType != "" {
		b.Where(query.Eq("b.operator_type", f.OperatorType))
	}
	if f.PassesThroughRoute != "" {
		b.Where(query.Expr(func(bind func(any) string) string {
			return fmt.Sprintf(`EXISTS (SELECT 1 FROM trips tr JOIN routes r ON r.id = tr.route_id
				WHERE tr.bus_id = b.id AND r.route_number = %s)`, bind(f.PassesThroughRoute))
		}))
	}
	if f.FromLocation != "" && f.ToLocation != "" {
		from := "%" + f.FromLocation + "%"
		to := "%" + f.ToLocation + "%"
		b.Where(query.Expr(func(bind func(any) string) string {
			return fmt.Sprintf(`EXISTS (SELECT 1 FROM trips tr
				JOIN route_segments rs1 ON rs1.route_id = tr.route_id
				JOIN route_segments rs2 ON rs2.route_id = tr.route_id
				WHERE tr.bus_id = b.id
				AND (rs1.from_location ILIKE %s OR rs1.to_location ILIKE %s)
				AND (rs2.from_location ILIKE %s OR rs2.to_location ILIKE %s)
				AND rs1.segment_order <= rs2.segment_order)`,
				bind(from), bind(from), bind(to), bind(to))
		}))
	}
	return b
}

// NewBus is a bus to register
type NewBus struct {
	PlateNo      string
	PermitNumber *string
	OperatorID   string
	OperatorType string
	Capacity     int
	Type         string
	ServiceType  string
}

// BusUpdate is a partial bus update; nil fields are left unchanged
type BusUpdate struct {
	PermitNumber *string
	Capacity     *int
	Type         *string
	ServiceType  *string
	IsActive     *bool
}

func scanBus(row pgx.Row) (models.Bus, error) {
	var b models.Bus
	err := row.Scan(&b.ID, &b.PlateNo, &b.PermitNumber, &b.OperatorID, &b.OperatorType,
		&b.Capacity, &b.Type, &b.ServiceType, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// ListBuses returns one page of buses ordered by id, with the total match count
func (s *Store) ListBuses(ctx context.Context, f BusFilter) ([]models.Bus, int, error) {
	b := f.builder()
	pageClause, pageArgs := b.Page(f.Page.Limit, f.Page.Offset())

	return listPage(ctx, s.pool,
		"SELECT COUNT(*) FROM buses b"+b.WhereClause(), b.Args(),
		"SELECT "+busColumns+" FROM buses b"+b.WhereClause()+" ORDER BY length(b.id), b.id"+pageClause, pageArgs,
		scanBus,
	)
}

// GetBus returns a bus by id
func (s *Store) GetBus(ctx context.Context, id string) (*models.Bus, error) {
	bus, err := scanBus(s.pool.QueryRow(ctx, "SELECT "+busColumns+" FROM buses b WHERE b.id = $1", id))
	if err != nil {
		return nil, translate(err)
	}
	return &bus, nil
}

// CreateBus registers a bus under the next BUS### id
func (s *Store) CreateBus(ctx context.Context, in NewBus) (*models.Bus, error) {
	var bus models.Bus
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		id, err := nextID(ctx, tx, "buses")
		if err != nil {
			return err
		}
		bus, err = scanBus(tx.QueryRow(ctx,
			`INSERT INTO buses AS b (id, plate_no, permit_number, operator_id, operator_type, capacity, type, service_type)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+busColumns,
			id, in.PlateNo, in.PermitNumber, in.OperatorID, in.OperatorType, in.Capacity, in.Type, in.ServiceType))
		return translate(err)
	})
	if err != nil {
		return nil, err
	}
	return &bus, nil
}

// UpdateBus applies a partial update
func (s *Store) UpdateBus(ctx context.Context, id string, u BusUpdate) (*models.Bus, error) {
	var a assignments
	if u.PermitNumber != nil {
		a.set("permit_number", *u.PermitNumber)
	}
	if u.Capacity != nil {
		a.set("capacity", *u.Capacity)
	}
	if u.Type != nil {
		a.set("type", *u.Type)
	}
	if u.ServiceType != nil {
		a.set("service_type", *u.ServiceType)
	}
	if u.IsActive != nil {
		a.set("is_active", *u.IsActive)
	}
	if a.empty() {
		return s.GetBus(ctx, id)
	}

	set, key, args := a.sql(id)
	bus, err := scanBus(s.pool.QueryRow(ctx,
		fmt.Sprintf("UPDATE buses AS b SET %s, updated_at = NOW() WHERE b.id = %s RETURNING %s", set, key, busColumns),
		args...))
	if err != nil {
		return nil, translate(err)
	}
	return &bus, nil
}

// DeleteBus removes a bus and, by cascade, its trips
func (s *Store) DeleteBus(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM buses WHERE id = $1", id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
