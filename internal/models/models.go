package models

import "time"

// Role identifies the caller class carried in an access token
type Role string

const (
	RoleCommuter Role = "commuter"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleCommuter, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

// ServiceType is the class of service a bus or trip runs as
type ServiceType string

const (
	ServiceNormal     ServiceType = "N"
	ServiceLuxury     ServiceType = "LU"
	ServiceSemiLuxury ServiceType = "SE"
)

// Valid reports whether s is a known service type
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceNormal, ServiceLuxury, ServiceSemiLuxury:
		return true
	}
	return false
}

// Direction of travel along a route
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

func (d Direction) Valid() bool {
	return d == DirectionOutbound || d == DirectionInbound
}

// OperatorType distinguishes state-run from private fleets
type OperatorType string

const (
	OperatorSLTB    OperatorType = "SLTB"
	OperatorPrivate OperatorType = "Private"
)

func (o OperatorType) Valid() bool {
	return o == OperatorSLTB || o == OperatorPrivate
}

// Route is a named, directed corridor between two cities
type Route struct {
	ID               int64     `json:"id"`
	RouteNumber      string    `json:"route_number"`
	FromCity         string    `json:"from_city"`
	ToCity           string    `json:"to_city"`
	DistanceKm       float64   `json:"distance_km"`
	EstimatedTimeHrs float64   `json:"estimated_time_hrs"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Segment is one consecutive leg of a route. SegmentOrder is 1-based.
type Segment struct {
	ID               int64   `json:"id"`
	RouteID          int64   `json:"route_id"`
	SegmentOrder     int     `json:"segment_order"`
	FromLocation     string  `json:"from_location"`
	ToLocation       string  `json:"to_location"`
	DistanceKm       float64 `json:"distance_km"`
	EstimatedTimeHrs float64 `json:"estimated_time_hrs"`
}

// Bus is a vehicle registered to an operator
type Bus struct {
	ID           string    `json:"id"`
	PlateNo      string    `json:"plate_no"`
	PermitNumber *string   `json:"permit_number"`
	OperatorID   string    `json:"operator_id"`
	OperatorType string    `json:"operator_type"`
	Capacity     int       `json:"capacity"`
	Type         string    `json:"type"`
	ServiceType  string    `json:"service_type"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Trip is a scheduled run of a route by a bus
type Trip struct {
	ID            string     `json:"id"`
	BusID         string     `json:"bus_id"`
	RouteID       int64      `json:"route_id"`
	Direction     string     `json:"direction"`
	ServiceType   string     `json:"service_type"`
	DepartureTime time.Time  `json:"departure_time"`
	ArrivalTime   time.Time  `json:"arrival_time"`
	IntervalMin   *int       `json:"interval_min"`
	Status        TripStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// OperatorID is the owner of the trip's bus. Only populated by single-trip lookups.
	OperatorID string `json:"-"`
}

// TripSegment is the per-trip instance of a route segment
type TripSegment struct {
	ID                   int64      `json:"id"`
	TripID               string     `json:"trip_id"`
	SegmentID            int64      `json:"segment_id"`
	SegmentOrder         int        `json:"segment_order"`
	FromLocation         string     `json:"from_location"`
	ToLocation           string     `json:"to_location"`
	ScheduledArrivalTime time.Time  `json:"scheduled_arrival_time"`
	ActualArrivalTime    *time.Time `json:"actual_arrival_time"`
	ProgressPercentage   *float64   `json:"progress_percentage"`
}

// Fare is the price between two segments of a route for one service type
type Fare struct {
	ID               int64      `json:"id"`
	RouteID          int64      `json:"route_id"`
	ServiceType      string     `json:"service_type"`
	FromSegmentID    int64      `json:"from_segment_id"`
	ToSegmentID      int64      `json:"to_segment_id"`
	FareAmount       float64    `json:"fare_amount"`
	Currency         string     `json:"currency"`
	EffectiveDate    time.Time  `json:"effective_date"`
	ExpiryDate       *time.Time `json:"expiry_date"`
	FromLocation     string     `json:"from_location"`
	ToLocation       string     `json:"to_location"`
	FromSegmentOrder int        `json:"from_segment_order"`
	ToSegmentOrder   int        `json:"to_segment_order"`
}

// SegmentProgress describes where on its current segment a bus is
type SegmentProgress struct {
	ID                    int64   `json:"id"`
	SegmentOrder          int     `json:"segment_order"`
	FromLocation          string  `json:"from_location"`
	ToLocation            string  `json:"to_location"`
	ProgressPercentage    float64 `json:"progress_percentage"`
	ProgressDescription   string  `json:"progress_description"`
	EstimatedDelayMinutes float64 `json:"estimated_delay_minutes"`
}

// LocationFix is one position report of a bus on a trip, enriched with progress
type LocationFix struct {
	TripID                       string           `json:"trip_id"`
	BusID                        string           `json:"bus_id"`
	Latitude                     float64          `json:"latitude"`
	Longitude                    float64          `json:"longitude"`
	SpeedKmh                     *float64         `json:"speed_kmh"`
	Timestamp                    time.Time        `json:"timestamp"`
	CurrentSegmentID             *int64           `json:"current_segment_id"`
	SegmentProgressPercentage    *float64         `json:"segment_progress_percentage"`
	TotalRouteProgressPercentage *float64         `json:"total_route_progress_percentage"`
	EstimatedDelayMinutes        *float64         `json:"estimated_delay_minutes"`
	DistanceFromLastFixKm        *float64         `json:"distance_from_last_fix_km,omitempty"`
	CurrentSegment               *SegmentProgress `json:"current_segment,omitempty"`
}

// User is a login identity
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         Role
	OperatorID   *string
	OperatorType *string
}
