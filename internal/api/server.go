package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/auth"
	"github.com/kusalkrp/bus-tracking-api/internal/db"
	"github.com/kusalkrp/bus-tracking-api/internal/middleware"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
	"github.com/kusalkrp/bus-tracking-api/internal/tracking"
)

// RouteStore persists routes and their segments
type RouteStore interface {
	ListRoutes(ctx context.Context, f db.RouteFilter) ([]models.Route, int, error)
	GetRoute(ctx context.Context, id int64) (*models.Route, error)
	GetRouteByNumber(ctx context.Context, number string) (*models.Route, error)
	CreateRoute(ctx context.Context, in db.NewRoute) (*models.Route, error)
	UpdateRoute(ctx context.Context, id int64, u db.RouteUpdate) (*models.Route, error)
	DeleteRoute(ctx context.Context, id int64) error
	ListSegments(ctx context.Context, routeID int64) ([]models.Segment, error)
	GetSegment(ctx context.Context, id int64) (*models.Segment, error)
	AppendSegment(ctx context.Context, routeID int64, in db.NewSegment) (*models.Segment, error)
}

// BusStore persists buses
type BusStore interface {
	ListBuses(ctx context.Context, f db.BusFilter) ([]models.Bus, int, error)
	GetBus(ctx context.Context, id string) (*models.Bus, error)
	CreateBus(ctx context.Context, in db.NewBus) (*models.Bus, error)
	UpdateBus(ctx context.Context, id string, u db.BusUpdate) (*models.Bus, error)
	DeleteBus(ctx context.Context, id string) error
}

// TripStore persists trips and their segment schedules
type TripStore interface {
	ListTrips(ctx context.Context, f db.TripFilter) ([]models.Trip, int, error)
	CountTrips(ctx context.Context, f db.TripFilter) (int, error)
	AverageDelayHours(ctx context.Context, f db.TripFilter) (*float64, error)
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	CreateTrip(ctx context.Context, in db.NewTrip) (*models.Trip, error)
	UpdateTripStatus(ctx context.Context, id string, from, to models.TripStatus) (*models.Trip, error)
	DeleteTrip(ctx context.Context, id string) error
	ListTripSegments(ctx context.Context, tripID string) ([]models.TripSegment, error)
}

// FareStore persists fares
type FareStore interface {
	ListFares(ctx context.Context, f db.FareFilter) ([]models.Fare, int, error)
	CreateFare(ctx context.Context, in db.NewFare) (*models.Fare, error)
}

// HistoryStore reads the durable location history
type HistoryStore interface {
	History(ctx context.Context, f db.HistoryFilter) ([]models.LocationFix, int, error)
}

// UserStore looks up login identities
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Store is every persistence capability the handlers use
type Store interface {
	RouteStore
	BusStore
	TripStore
	FareStore
	HistoryStore
	UserStore
}

// LocationReader reads the latest cached fixes
type LocationReader interface {
	TripLocation(ctx context.Context, tripID string) (*models.LocationFix, error)
	BusLocation(ctx context.Context, busID string) (*models.LocationFix, error)
}

// LocationRecorder turns a position report into a stored fix
type LocationRecorder interface {
	Record(ctx context.Context, busID string, r tracking.Report) (*models.LocationFix, error)
}

// TokenService issues and verifies access tokens
type TokenService interface {
	Issue(u *models.User) (string, error)
	Verify(token string) (*auth.Claims, error)
}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators of the HTTP handlers
type Deps struct {
	Store     Store
	Locations LocationReader
	Recorder  LocationRecorder
	Tokens    TokenService
	// Checks are run by /health in name order
	Checks map[string]HealthCheck
	Logger *slog.Logger
	// Now defaults to time.Now
	Now func() time.Time
}

// Server holds the handlers of the bus tracking API
type Server struct {
	store     Store
	locations LocationReader
	recorder  LocationRecorder
	tokens    TokenService
	checks    map[string]HealthCheck
	logger    *slog.Logger
	now       func() time.Time
}

// NewServer creates the handlers over d
func NewServer(d Deps) *Server {
	s := &Server{
		store:     d.Store,
		locations: d.Locations,
		recorder:  d.Recorder,
		tokens:    d.Tokens,
		checks:    d.Checks,
		logger:    d.Logger,
		now:       d.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RouteOptions are the extra middleware mounted by Register
type RouteOptions struct {
	// AuthLimiter guards /auth. It may be nil.
	AuthLimiter fiber.Handler
}

// Register mounts every endpoint on r
func (s *Server) Register(r fiber.Router, opts RouteOptions) {
	authn := middleware.Authenticate(s.tokens)
	everyone := middleware.Authorize(models.RoleCommuter, models.RoleOperator, models.RoleAdmin)
	staff := middleware.Authorize(models.RoleOperator, models.RoleAdmin)
	admin := middleware.Authorize(models.RoleAdmin)
	permit := middleware.ValidatePermit(s.store)

	r.Get("/health", s.Health)

	authGroup := r.Group("/auth")
	if opts.AuthLimiter != nil {
		authGroup.Use(opts.AuthLimiter)
	}
	authGroup.Post("/login", s.Login)

	routes := r.Group("/routes", authn)
	routes.Get("/", everyone, s.ListRoutes)
	routes.Post("/", admin, s.CreateRoute)
	routes.Get("/:routeId", everyone, s.GetRoute)
	routes.Put("/:routeId", admin, s.UpdateRoute)
	routes.Delete("/:routeId", admin, s.DeleteRoute)
	routes.Get("/:routeId/segments", everyone, s.ListSegments)
	routes.Post("/:routeId/segments", admin, s.AppendSegment)
	routes.Get("/:routeNumber/trips", everyone, s.ListTrips)
	routes.Get("/:routeNumber/fares", everyone, s.ListFares)
	routes.Post("/:routeNumber/fares", admin, s.CreateFare)

	buses := r.Group("/buses", authn)
	buses.Get("/", staff, s.ListBuses)
	buses.Post("/", staff, s.CreateBus)
	buses.Get("/:busId", everyone, s.GetBus)
	buses.Put("/:busId", staff, s.UpdateBus)
	buses.Delete("/:busId", staff, s.DeleteBus)
	buses.Post("/:busId/location", staff, permit, s.PostLocation)
	buses.Get("/:busId/location", everyone, s.BusLocation)
	buses.Get("/:busId/locations/history", staff, s.LocationHistory)

	trips := r.Group("/trips", authn)
	trips.Post("/", staff, s.CreateTrip)
	trips.Get("/:tripId", everyone, s.GetTrip)
	trips.Put("/:tripId", staff, s.UpdateTrip)
	trips.Delete("/:tripId", staff, s.DeleteTrip)
	trips.Get("/:tripId/segments", everyone, s.ListTripSegments)
	trips.Get("/:tripId/location", everyone, s.TripLocation)
	trips.Get("/:tripId/location/detailed", everyone, s.DetailedTripLocation)
}
