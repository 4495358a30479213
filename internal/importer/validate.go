package importer

import (
	"log/slog"
	"math"

	"github.com/kusalkrp/bus-tracking-api/internal/db"
)

// ValidateAndCleanRoutes removes routes the schema would reject: missing
// cities, non-positive distance or time, or a segment with non-positive
// distance or time. Duplicate route numbers keep the last occurrence.
func ValidateAndCleanRoutes(routes []db.NewRoute, logger *slog.Logger) []db.NewRoute {
	last := map[string]int{}
	for i, r := range routes {
		last[r.RouteNumber] = i
	}

	cleaned := []db.NewRoute{}
	for i, r := range routes {
		switch {
		case last[r.RouteNumber] != i:
			logger.Warn("duplicate route, keeping last row", slog.String("route_number", r.RouteNumber))
			continue
		case r.FromCity == "" || r.ToCity == "":
			logger.Warn("route is missing a city", slog.String("route_number", r.RouteNumber))
			continue
		case r.DistanceKm <= 0 || r.EstimatedTimeHrs <= 0:
			logger.Warn("route has non-positive distance or time", slog.String("route_number", r.RouteNumber))
			continue
		case !validSegments(r.Segments):
			logger.Warn("route has an invalid segment", slog.String("route_number", r.RouteNumber))
			continue
		}

		if len(r.Segments) > 0 {
			if hours := segmentHours(r.Segments); math.Abs(hours-r.EstimatedTimeHrs) > 0.01 {
				logger.Warn("segment times do not add up to route time",
					slog.String("route_number", r.RouteNumber),
					slog.Float64("route_hours", r.EstimatedTimeHrs),
					slog.Float64("segment_hours", hours))
			}
		}
		cleaned = append(cleaned, r)
	}

	if len(cleaned) < len(routes) {
		logger.Info("cleaned routes", slog.Int("removed", len(routes)-len(cleaned)))
	}
	return cleaned
}

func validSegments(segments []db.NewSegment) bool {
	for _, s := range segments {
		if s.FromLocation == "" || s.ToLocation == "" || s.DistanceKm <= 0 || s.EstimatedTimeHrs <= 0 {
			return false
		}
	}
	return true
}

func segmentHours(segments []db.NewSegment) float64 {
	var total float64
	for _, s := range segments {
		total += s.EstimatedTimeHrs
	}
	return total
}
