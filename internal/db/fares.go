package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
	"github.com/kusalkrp/bus-tracking-api/internal/query"
)

const fareColumns = `f.id, f.route_id, f.service_type, f.from_segment_id, f.to_segment_id, f.fare_amount::float8,
	f.currency, f.effective_date, f.expiry_date, fs.from_location, ts.to_location, fs.segment_order, ts.segment_order`

const fareFrom = ` FROM fares f
	JOIN routes r ON f.route_id = r.id
	JOIN route_segments fs ON f.from_segment_id = fs.id
	JOIN route_segments ts ON f.to_segment_id = ts.id`

// FareSortFields maps sortable fare fields to their columns
var FareSortFields = map[string]string{
	"service_type":   "f.service_type",
	"fare_amount":    "f.fare_amount",
	"effective_date": "f.effective_date",
	"from_location":  "fs.from_location",
	"to_location":    "ts.to_location",
}

// FareFilter selects the fares of one active route in effect on AsOf
type FareFilter struct {
	RouteNumber     string
	AsOf            time.Time
	ServiceType     string
	FromStop        string
	ToStop          string
	AmountLt        *float64
	AmountGt        *float64
	EffectiveAfter  *time.Time
	EffectiveBefore *time.Time
	SortField       string
	SortDesc        bool
	Page            Page
}

func (f FareFilter) builder() *query.Builder {
	b := query.New(
		query.Eq("r.route_number", f.RouteNumber),
		query.Raw("r.is_active = true"),
		query.Lte("f.effective_date", f.AsOf),
		query.Expr(func(bind func(any) string) string {
			return fmt.Sprintf("(f.expiry_date IS NULL OR f.expiry_date > %s)", bind(f.AsOf))
		}),
	)
	if f.ServiceType != "" {
		b.Where(query.Eq("f.service_type", f.ServiceType))
	}
	if f.FromStop != "" {
		b.Where(query.Contains(f.FromStop, "fs.from_location", "fs.to_location"))
	}
	if f.ToStop != "" {
		b.Where(query.Contains(f.ToStop, "ts.from_location", "ts.to_location"))
	}
	if f.AmountLt != nil {
		b.Where(query.Lt("f.fare_amount", *f.AmountLt))
	}
	if f.AmountGt != nil {
		b.Where(query.Gt("f.fare_amount", *f.AmountGt))
	}
	if f.EffectiveAfter != nil {
		b.Where(query.Gt("f.effective_date", *f.EffectiveAfter))
	}
	if f.EffectiveBefore != nil {
		b.Where(query.Lt("f.effective_date", *f.EffectiveBefore))
	}
	return b
}

func (f FareFilter) orderBy() string {
	col, ok := FareSortFields[f.SortField]
	if !ok {
		return " ORDER BY f.service_type, fs.segment_order, ts.segment_order, f.id"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, f.id", col, dir)
}

// NewFare is a fare to create between two segments of a route
type NewFare struct {
	RouteID       int64
	ServiceType   string
	FromSegmentID int64
	ToSegmentID   int64
	FareAmount    float64
	EffectiveDate time.Time
	ExpiryDate    *time.Time
}

func scanFare(row pgx.Row) (models.Fare, error) {
	var f models.Fare
	err := row.Scan(&f.ID, &f.RouteID, &f.ServiceType, &f.FromSegmentID, &f.ToSegmentID, &f.FareAmount,
		&f.Currency, &f.EffectiveDate, &f.ExpiryDate, &f.FromLocation, &f.ToLocation,
		&f.FromSegmentOrder, &f.ToSegmentOrder)
	return f, err
}

// ListFares returns one page of fares with the total match count
func (s *Store) ListFares(ctx context.Context, f FareFilter) ([]models.Fare, int, error) {
	b := f.builder()
	pageClause, pageArgs := b.Page(f.Page.Limit, f.Page.Offset())

	return listPage(ctx, s.pool,
		"SELECT COUNT(*)"+fareFrom+b.WhereClause(), b.Args(),
		"SELECT "+fareColumns+fareFrom+b.WhereClause()+f.orderBy()+pageClause, pageArgs,
		scanFare,
	)
}

// CreateFare inserts a fare and returns it with its segment details
func (s *Store) CreateFare(ctx context.Context, in NewFare) (*models.Fare, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO fares (route_id, service_type, from_segment_id, to_segment_id, fare_amount, effective_date, expiry_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		in.RouteID, in.ServiceType, in.FromSegmentID, in.ToSegmentID, in.FareAmount, in.EffectiveDate, in.ExpiryDate,
	).Scan(&id)
	if err != nil {
		return nil, translate(err)
	}

	fare, err := scanFare(s.pool.QueryRow(ctx, "SELECT "+fareColumns+fareFrom+" WHERE f.id = $1", id))
	if err != nil {
		return nil, translate(err)
	}
	return &fare, nil
}
