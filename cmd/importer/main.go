package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kusalkrp/bus-tracking-api/internal/db"
	"github.com/kusalkrp/bus-tracking-api/internal/importer"
	"github.com/kusalkrp/bus-tracking-api/internal/logging"
)

func main() {
	dataDir := flag.String("data", "", "Directory containing routes.csv and segments.csv (required)")
	migrate := flag.Bool("migrate", false, "Apply the schema before importing")
	dryRun := flag.Bool("dry-run", false, "Parse and validate without writing to the database")
	flag.Parse()

	if *dataDir == "" {
		fmt.Println("Usage: bus-import --data=<dir> [--migrate] [--dry-run]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	_ = godotenv.Load()
	logger := logging.NewStructuredLogger(os.Stdout, logging.ParseLevel(os.Getenv("LOG_LEVEL")))

	if err := run(context.Background(), logger, *dataDir, *migrate, *dryRun); err != nil {
		logging.LogError(logger, "import failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, dataDir string, migrate, dryRun bool) error {
	startTime := time.Now()

	logger.Info("Step 1/3: Parsing route data", slog.String("dir", dataDir))
	feed, err := importer.ParseDir(dataDir, logger)
	if err != nil {
		return err
	}

	logger.Info("Step 2/3: Validating routes")
	routes := importer.ValidateAndCleanRoutes(importer.Assemble(feed, logger), logger)
	if len(routes) == 0 {
		return fmt.Errorf("no valid routes found in %s", dataDir)
	}

	if dryRun {
		logger.Info("dry run complete", slog.Int("routes", len(routes)))
		return nil
	}

	logger.Info("Step 3/3: Writing routes")
	pool, err := db.Connect(ctx, db.LoadConfigFromEnv())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if migrate {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	routeCount, segmentCount, err := db.New(pool).ImportRoutes(ctx, routes)
	if err != nil {
		return fmt.Errorf("failed to import routes: %w", err)
	}

	logging.LogOperation(logger, "import_complete",
		slog.Int("routes", routeCount),
		slog.Int("segments", segmentCount),
		slog.Duration("duration", time.Since(startTime)))
	return nil
}
