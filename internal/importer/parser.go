package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kusalkrp/bus-tracking-api/internal/db"
)

// SegmentRow is one line of segments.csv
type SegmentRow struct {
	RouteNumber string
	Order       int
	Segment     db.NewSegment
}

// Feed is a parsed route data directory
type Feed struct {
	Routes   []db.NewRoute
	Segments []SegmentRow
}

// ParseDir reads routes.csv (required) and segments.csv (optional) from dir
func ParseDir(dir string, logger *slog.Logger) (*Feed, error) {
	routesFile, err := os.Open(filepath.Join(dir, "routes.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to open routes (required): %w", err)
	}
	defer routesFile.Close()

	feed := &Feed{}
	if feed.Routes, err = ParseRoutes(routesFile, logger); err != nil {
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}
	logger.Info("parsed routes", slog.Int("count", len(feed.Routes)))

	segmentsFile, err := os.Open(filepath.Join(dir, "segments.csv"))
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("segments.csv not found, importing routes only")
		return feed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open segments: %w", err)
	}
	defer segmentsFile.Close()

	if feed.Segments, err = ParseSegments(segmentsFile, logger); err != nil {
		return nil, fmt.Errorf("failed to parse segments: %w", err)
	}
	logger.Info("parsed segments", slog.Int("count", len(feed.Segments)))
	return feed, nil
}

// ParseRoutes reads route_number, from_city, to_city, distance_km and
// estimated_time_hrs columns. Malformed rows are skipped with a warning.
func ParseRoutes(r io.Reader, logger *slog.Logger) ([]db.NewRoute, error) {
	var routes []db.NewRoute
	err := eachRecord(r, logger, "route", func(get func(string) string) error {
		number := get("route_number")
		if number == "" {
			return errors.New("missing route_number")
		}
		distance, err := strconv.ParseFloat(get("distance_km"), 64)
		if err != nil {
			return fmt.Errorf("invalid distance_km for route %s: %w", number, err)
		}
		hours, err := strconv.ParseFloat(get("estimated_time_hrs"), 64)
		if err != nil {
			return fmt.Errorf("invalid estimated_time_hrs for route %s: %w", number, err)
		}
		routes = append(routes, db.NewRoute{
			RouteNumber:      number,
			FromCity:         get("from_city"),
			ToCity:           get("to_city"),
			DistanceKm:       distance,
			EstimatedTimeHrs: hours,
		})
		return nil
	})
	return routes, err
}

// ParseSegments reads route_number, segment_order, from_location,
// to_location, distance_km and estimated_time_hrs columns.
func ParseSegments(r io.Reader, logger *slog.Logger) ([]SegmentRow, error) {
	var rows []SegmentRow
	err := eachRecord(r, logger, "segment", func(get func(string) string) error {
		number := get("route_number")
		order, err := strconv.Atoi(get("segment_order"))
		if err != nil {
			return fmt.Errorf("invalid segment_order for route %s: %w", number, err)
		}
		distance, err := strconv.ParseFloat(get("distance_km"), 64)
		if err != nil {
			return fmt.Errorf("invalid distance_km for route %s segment %d: %w", number, order, err)
		}
		hours, err := strconv.ParseFloat(get("estimated_time_hrs"), 64)
		if err != nil {
			return fmt.Errorf("invalid estimated_time_hrs for route %s segment %d: %w", number, order, err)
		}
		rows = append(rows, SegmentRow{
			RouteNumber: number,
			Order:       order,
			Segment: db.NewSegment{
				FromLocation:     get("from_location"),
				ToLocation:       get("to_location"),
				DistanceKm:       distance,
				EstimatedTimeHrs: hours,
			},
		})
		return nil
	})
	return rows, err
}

// eachRecord calls fn for every data row. Rows fn rejects are logged and skipped.
func eachRecord(r io.Reader, logger *slog.Logger, kind string, fn func(get func(string) string) error) error {
	csvReader := csv.NewReader(r)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	colMap := makeColumnMap(header)

	for line := 2; ; line++ {
		record, err := csvReader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			logger.Warn("skipping malformed "+kind+" row", slog.Int("line", line), slog.String("error", err.Error()))
			continue
		}
		get := func(name string) string { return getField(record, colMap, name) }
		if err := fn(get); err != nil {
			logger.Warn("skipping "+kind+" row", slog.Int("line", line), slog.String("error", err.Error()))
		}
	}
}

// Assemble attaches segments to their routes in segment_order. Segments of
// unknown routes are dropped.
func Assemble(feed *Feed, logger *slog.Logger) []db.NewRoute {
	byRoute := map[string][]SegmentRow{}
	for _, row := range feed.Segments {
		byRoute[row.RouteNumber] = append(byRoute[row.RouteNumber], row)
	}

	routes := make([]db.NewRoute, 0, len(feed.Routes))
	for _, r := range feed.Routes {
		rows := byRoute[r.RouteNumber]
		delete(byRoute, r.RouteNumber)
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Order < rows[j].Order })

		r.Segments = nil
		for _, row := range rows {
			r.Segments = append(r.Segments, row.Segment)
		}
		routes = append(routes, r)
	}

	for number, rows := range byRoute {
		logger.Warn("dropping segments of unknown route", slog.String("route_number", number), slog.Int("count", len(rows)))
	}
	return routes
}

func makeColumnMap(header []string) map[string]int {
	colMap := make(map[string]int)
	for i, col := range header {
		colMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return colMap
}

func getField(record []string, colMap map[string]int, fieldName string) string {
	if idx, ok := colMap[fieldName]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}
