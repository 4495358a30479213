package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kusalkrp/bus-tracking-api/internal/api"
	"github.com/kusalkrp/bus-tracking-api/internal/auth"
	"github.com/kusalkrp/bus-tracking-api/internal/cache"
	"github.com/kusalkrp/bus-tracking-api/internal/config"
	"github.com/kusalkrp/bus-tracking-api/internal/db"
	"github.com/kusalkrp/bus-tracking-api/internal/logging"
	"github.com/kusalkrp/bus-tracking-api/internal/metrics"
	"github.com/kusalkrp/bus-tracking-api/internal/middleware"
	"github.com/kusalkrp/bus-tracking-api/internal/publisher"
	"github.com/kusalkrp/bus-tracking-api/internal/tracking"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bus tracking api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewStructuredLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	ctx := context.Background()

	pool, err := db.Connect(ctx, db.LoadConfigFromEnv())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}
	logging.LogOperation(logger, "database_ready")

	rdb, err := cache.NewClient(ctx, cache.LoadConfigFromEnv())
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer rdb.Close()
	logging.LogOperation(logger, "redis_ready")

	collector := metrics.NewCollector()
	store := db.New(pool)
	locations := cache.NewLocationCache(rdb, cfg.LocationTTL)

	opts := []tracking.Option{tracking.WithMetrics(collector), tracking.WithLogger(logger)}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, collector, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer pub.Close()
		opts = append(opts, tracking.WithPublisher(pub))
		logging.LogOperation(logger, "nats_ready", slog.String("prefix", cfg.NATSSubjectPrefix))
	}

	srv := api.NewServer(api.Deps{
		Store:     store,
		Locations: locations,
		Recorder:  tracking.NewService(store, locations, opts...),
		Tokens:    auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Checks: map[string]api.HealthCheck{
			"database": func(ctx context.Context) error { return db.HealthCheck(ctx, pool) },
			"redis":    func(ctx context.Context) error { return cache.HealthCheck(ctx, rdb) },
		},
		Logger: logger,
	})

	app := fiber.New(fiber.Config{
		AppName:      "Bus Tracking API",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: customErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.RequestLogger(logger, collector))

	if cfg.MetricsEnabled {
		app.Get("/metrics", adaptor.HTTPHandler(collector.Handler()))
	}

	var routeOpts api.RouteOptions
	if cfg.EnableRateLimit {
		app.Use(middleware.RateLimit(rdb, middleware.RateLimitConfig{
			Scope:  "general",
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		}))
		routeOpts.AuthLimiter = middleware.RateLimit(rdb, middleware.RateLimitConfig{
			Scope:   "auth",
			Window:  cfg.RateLimitWindow,
			Max:     cfg.AuthRateLimitMax,
			Message: "Too many authentication attempts, please try again later.",
		})
	}
	srv.Register(app, routeOpts)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "Not found",
			"path":  c.Path(),
		})
	})

	shutdown := make(chan error, 1)
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logging.LogOperation(logger, "shutdown_started")
		shutdown <- app.ShutdownWithTimeout(30 * time.Second)
	}()

	logging.LogOperation(logger, "server_started",
		slog.String("port", cfg.Port),
		slog.Bool("rate_limit", cfg.EnableRateLimit),
		slog.Bool("metrics", cfg.MetricsEnabled),
		slog.Bool("nats", cfg.NATSURL != ""))

	if err := app.Listen(":" + cfg.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	if err := <-shutdown; err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}
	logging.LogOperation(logger, "shutdown_complete")
	return nil
}

// customErrorHandler handles errors returned from handlers. Messages of
// non-fiber errors are not exposed.
func customErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		if code >= 500 {
			logging.LogError(logging.FromContextOr(c.UserContext(), logger),
				fmt.Sprintf("%s %s failed", c.Method(), c.Path()), err)
		}
		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}
