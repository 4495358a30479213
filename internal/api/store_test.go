package api

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kusalkrp/bus-tracking-api/internal/db"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
	"github.com/kusalkrp/bus-tracking-api/internal/tracking"
)

// memStore is an in-memory Store that also satisfies tracking.Store
type memStore struct {
	mu           sync.Mutex
	users        []models.User
	routes       []models.Route
	segments     []models.Segment
	buses        []models.Bus
	trips        []models.Trip
	tripSegments []models.TripSegment
	fares        []models.Fare
	history      []models.LocationFix
}

var _ Store = (*memStore)(nil)
var _ tracking.Store = (*memStore)(nil)

func pageOf[T any](items []T, p db.Page) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].Email == email {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) ListRoutes(_ context.Context, f db.RouteFilter) ([]models.Route, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Route
	for _, r := range m.routes {
		if f.From != "" && !strings.Contains(strings.ToLower(r.FromCity), strings.ToLower(f.From)) {
			continue
		}
		if f.To != "" && !strings.Contains(strings.ToLower(r.ToCity), strings.ToLower(f.To)) {
			continue
		}
		out = append(out, r)
	}
	return pageOf(out, f.Page), len(out), nil
}

func (m *memStore) GetRoute(_ context.Context, id int64) (*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.routes {
		if m.routes[i].ID == id {
			r := m.routes[i]
			return &r, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) GetRouteByNumber(_ context.Context, number string) (*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.routes {
		if m.routes[i].RouteNumber == number && m.routes[i].IsActive {
			r := m.routes[i]
			return &r, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) CreateRoute(_ context.Context, in db.NewRoute) (*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.routes {
		if r.RouteNumber == in.RouteNumber {
			return nil, db.ErrConflict
		}
	}
	r := models.Route{
		ID:               int64(len(m.routes) + 1),
		RouteNumber:      in.RouteNumber,
		FromCity:         in.FromCity,
		ToCity:           in.ToCity,
		DistanceKm:       in.DistanceKm,
		EstimatedTimeHrs: in.EstimatedTimeHrs,
		IsActive:         true,
	}
	m.routes = append(m.routes, r)
	for _, seg := range in.Segments {
		m.appendSegment(r.ID, seg)
	}
	return &r, nil
}

func (m *memStore) UpdateRoute(_ context.Context, id int64, u db.RouteUpdate) (*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.routes {
		r := &m.routes[i]
		if r.ID != id {
			continue
		}
		if u.FromCity != nil {
			r.FromCity = *u.FromCity
		}
		if u.ToCity != nil {
			r.ToCity = *u.ToCity
		}
		if u.IsActive != nil {
			r.IsActive = *u.IsActive
		}
		out := *r
		return &out, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) DeleteRoute(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.routes {
		if m.routes[i].ID == id {
			m.routes = append(m.routes[:i], m.routes[i+1:]...)
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *memStore) ListSegments(_ context.Context, routeID int64) ([]models.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.segmentsOf(routeID), nil
}

func (m *memStore) segmentsOf(routeID int64) []models.Segment {
	var out []models.Segment
	for _, s := range m.segments {
		if s.RouteID == routeID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentOrder < out[j].SegmentOrder })
	return out
}

func (m *memStore) GetSegment(_ context.Context, id int64) (*models.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.segments {
		if m.segments[i].ID == id {
			s := m.segments[i]
			return &s, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) AppendSegment(_ context.Context, routeID int64, in db.NewSegment) (*models.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.appendSegment(routeID, in)
	return &s, nil
}

func (m *memStore) appendSegment(routeID int64, in db.NewSegment) models.Segment {
	s := models.Segment{
		ID:               int64(len(m.segments) + 1),
		RouteID:          routeID,
		SegmentOrder:     len(m.segmentsOf(routeID)) + 1,
		FromLocation:     in.FromLocation,
		ToLocation:       in.ToLocation,
		DistanceKm:       in.DistanceKm,
		EstimatedTimeHrs: in.EstimatedTimeHrs,
	}
	m.segments = append(m.segments, s)
	return s
}

func (m *memStore) ListBuses(_ context.Context, f db.BusFilter) ([]models.Bus, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Bus
	for _, b := range m.buses {
		if f.OperatorID != "" && b.OperatorID != f.OperatorID {
			continue
		}
		if f.ServiceType != "" && b.ServiceType != f.ServiceType {
			continue
		}
		out = append(out, b)
	}
	return pageOf(out, f.Page), len(out), nil
}

func (m *memStore) GetBus(_ context.Context, id string) (*models.Bus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.buses {
		if m.buses[i].ID == id {
			b := m.buses[i]
			return &b, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) CreateBus(_ context.Context, in db.NewBus) (*models.Bus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.buses {
		if b.PlateNo == in.PlateNo {
			return nil, db.ErrConflict
		}
	}
	b := models.Bus{
		ID:           fmt.Sprintf("BUS%03d", len(m.buses)+1),
		PlateNo:      in.PlateNo,
		PermitNumber: in.PermitNumber,
		OperatorID:   in.OperatorID,
		OperatorType: in.OperatorType,
		Capacity:     in.Capacity,
		Type:         in.Type,
		ServiceType:  in.ServiceType,
		IsActive:     true,
	}
	m.buses = append(m.buses, b)
	return &b, nil
}

func (m *memStore) UpdateBus(_ context.Context, id string, u db.BusUpdate) (*models.Bus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.buses {
		b := &m.buses[i]
		if b.ID != id {
			continue
		}
		if u.PermitNumber != nil {
			b.PermitNumber = u.PermitNumber
		}
		if u.Capacity != nil {
			b.Capacity = *u.Capacity
		}
		if u.IsActive != nil {
			b.IsActive = *u.IsActive
		}
		out := *b
		return &out, nil
	}
	return nil, db.ErrNotFound
}

func (m *memStore) DeleteBus(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.buses {
		if m.buses[i].ID == id {
			m.buses = append(m.buses[:i], m.buses[i+1:]...)
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *memStore) operatorOf(busID string) string {
	for _, b := range m.buses {
		if b.ID == busID {
			return b.OperatorID
		}
	}
	return ""
}

func (m *memStore) matchTrips(f db.TripFilter) []models.Trip {
	var out []models.Trip
	for _, t := range m.trips {
		if t.RouteID != f.RouteID {
			continue
		}
		if f.OperatorID != "" && m.operatorOf(t.BusID) != f.OperatorID {
			continue
		}
		if f.Direction != "" && t.Direction != f.Direction {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (m *memStore) ListTrips(_ context.Context, f db.TripFilter) ([]models.Trip, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.matchTrips(f)
	return pageOf(out, f.Page), len(out), nil
}

func (m *memStore) CountTrips(_ context.Context, f db.TripFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matchTrips(f)), nil
}

func (m *memStore) AverageDelayHours(_ context.Context, f db.TripFilter) (*float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trips := m.matchTrips(f)
	if len(trips) == 0 {
		return nil, nil
	}
	var sum float64
	for _, t := range trips {
		var routeHours float64
		for _, r := range m.routes {
			if r.ID == t.RouteID {
				routeHours = r.EstimatedTimeHrs
			}
		}
		sum += t.ArrivalTime.Sub(t.DepartureTime).Hours() - routeHours
	}
	avg := sum / float64(len(trips))
	return &avg, nil
}

func (m *memStore) GetTrip(_ context.Context, id string) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trips {
		if m.trips[i].ID == id {
			t := m.trips[i]
			t.OperatorID = m.operatorOf(t.BusID)
			return &t, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) CreateTrip(_ context.Context, in db.NewTrip) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trips {
		if t.BusID == in.BusID && t.DepartureTime.Equal(in.Departure) {
			return nil, db.ErrConflict
		}
	}
	var routeHours float64
	for _, r := range m.routes {
		if r.ID == in.RouteID {
			routeHours = r.EstimatedTimeHrs
		}
	}
	t := models.Trip{
		ID:            fmt.Sprintf("TRIP%03d", len(m.trips)+1),
		BusID:         in.BusID,
		RouteID:       in.RouteID,
		Direction:     in.Direction,
		ServiceType:   in.ServiceType,
		DepartureTime: in.Departure,
		ArrivalTime:   in.Departure.Add(tracking.HoursToDuration(routeHours)),
		IntervalMin:   in.IntervalMin,
		Status:        models.StatusScheduled,
	}
	m.trips = append(m.trips, t)

	chain := tracking.NewChain(m.segmentsOf(in.RouteID))
	for i, at := range chain.ScheduledArrivals(in.Departure) {
		seg := chain.At(i)
		m.tripSegments = append(m.tripSegments, models.TripSegment{
			ID:                   int64(len(m.tripSegments) + 1),
			TripID:               t.ID,
			SegmentID:            seg.ID,
			SegmentOrder:         seg.SegmentOrder,
			FromLocation:         seg.FromLocation,
			ToLocation:           seg.ToLocation,
			ScheduledArrivalTime: at,
		})
	}
	return &t, nil
}

func (m *memStore) UpdateTripStatus(_ context.Context, id string, from, to models.TripStatus) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trips {
		t := &m.trips[i]
		if t.ID != id {
			continue
		}
		if t.Status != from {
			return nil, db.ErrConflict
		}
		t.Status = to
		out := *t
		return &out, nil
	}
	return nil, db.ErrConflict
}

func (m *memStore) DeleteTrip(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trips {
		if m.trips[i].ID == id {
			m.trips = append(m.trips[:i], m.trips[i+1:]...)
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *memStore) ListTripSegments(_ context.Context, tripID string) ([]models.TripSegment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TripSegment
	for _, ts := range m.tripSegments {
		if ts.TripID == tripID {
			out = append(out, ts)
		}
	}
	return out, nil
}

func (m *memStore) ListFares(_ context.Context, f db.FareFilter) ([]models.Fare, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var routeID int64
	for _, r := range m.routes {
		if r.RouteNumber == f.RouteNumber {
			routeID = r.ID
		}
	}
	var out []models.Fare
	for _, fare := range m.fares {
		if fare.RouteID != routeID || fare.EffectiveDate.After(f.AsOf) {
			continue
		}
		if f.ServiceType != "" && fare.ServiceType != f.ServiceType {
			continue
		}
		out = append(out, fare)
	}
	return pageOf(out, f.Page), len(out), nil
}

func (m *memStore) CreateFare(_ context.Context, in db.NewFare) (*models.Fare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.fares {
		if f.RouteID == in.RouteID && f.ServiceType == in.ServiceType &&
			f.FromSegmentID == in.FromSegmentID && f.ToSegmentID == in.ToSegmentID {
			return nil, db.ErrConflict
		}
	}
	fare := models.Fare{
		ID:            int64(len(m.fares) + 1),
		RouteID:       in.RouteID,
		ServiceType:   in.ServiceType,
		FromSegmentID: in.FromSegmentID,
		ToSegmentID:   in.ToSegmentID,
		FareAmount:    in.FareAmount,
		Currency:      "LKR",
		EffectiveDate: in.EffectiveDate,
		ExpiryDate:    in.ExpiryDate,
	}
	for _, s := range m.segments {
		switch s.ID {
		case in.FromSegmentID:
			fare.FromLocation, fare.FromSegmentOrder = s.FromLocation, s.SegmentOrder
		case in.ToSegmentID:
			fare.ToLocation, fare.ToSegmentOrder = s.ToLocation, s.SegmentOrder
		}
	}
	m.fares = append(m.fares, fare)
	return &fare, nil
}

func (m *memStore) History(_ context.Context, f db.HistoryFilter) ([]models.LocationFix, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LocationFix
	for i := len(m.history) - 1; i >= 0; i-- {
		fix := m.history[i]
		if fix.BusID != f.BusID || (f.From != nil && fix.Timestamp.Before(*f.From)) {
			continue
		}
		out = append(out, fix)
	}
	return pageOf(out, f.Page), len(out), nil
}

func (m *memStore) ActiveTrip(_ context.Context, busID string, at time.Time) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var scheduled *models.Trip
	for i := range m.trips {
		t := m.trips[i]
		if t.BusID != busID {
			continue
		}
		if t.Status.IsActive() {
			return &t, nil
		}
		if t.Status == models.StatusScheduled && !t.DepartureTime.After(at) &&
			(scheduled == nil || t.DepartureTime.After(scheduled.DepartureTime)) {
			scheduled = &t
		}
	}
	return scheduled, nil
}

func (m *memStore) AppendFix(_ context.Context, fix *models.LocationFix) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *fix)
	return nil
}

func (m *memStore) UpdateTripProgress(_ context.Context, tripID string, segmentID int64, progress float64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tripSegments {
		ts := &m.tripSegments[i]
		if ts.TripID == tripID && ts.SegmentID == segmentID {
			p := progress
			ts.ProgressPercentage = &p
		}
	}
	return nil
}
