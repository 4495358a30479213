package importer

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kusalkrp/bus-tracking-api/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const routesCSV = `route_number,from_city,to_city,distance_km,estimated_time_hrs
R1,Colombo,Kandy,115,3
R2, Colombo , Galle ,119,2.5
R3,Colombo,Jaffna,far,8
`

const segmentsCSV = `Route_Number,segment_order,from_location,to_location,distance_km,estimated_time_hrs
R1,2,Kadawatha,Kandy,57.5,1.5
R1,1,Colombo,Kadawatha,57.5,1.5
R9,1,Nowhere,Elsewhere,1,1
R2,x,Colombo,Galle,119,2.5
`

func TestParseRoutes(t *testing.T) {
	routes, err := ParseRoutes(strings.NewReader(routesCSV), quiet)
	require.NoError(t, err)
	require.Len(t, routes, 2)

	assert.Equal(t, db.NewRoute{RouteNumber: "R1", FromCity: "Colombo", ToCity: "Kandy", DistanceKm: 115, EstimatedTimeHrs: 3}, routes[0])
	assert.Equal(t, "Galle", routes[1].ToCity)
}

func TestParseRoutesWithoutHeader(t *testing.T) {
	_, err := ParseRoutes(strings.NewReader(""), quiet)
	assert.Error(t, err)
}

func TestAssemble(t *testing.T) {
	routes, err := ParseRoutes(strings.NewReader(routesCSV), quiet)
	require.NoError(t, err)
	segments, err := ParseSegments(strings.NewReader(segmentsCSV), quiet)
	require.NoError(t, err)
	assert.Len(t, segments, 3)

	assembled := Assemble(&Feed{Routes: routes, Segments: segments}, quiet)
	require.Len(t, assembled, 2)
	require.Len(t, assembled[0].Segments, 2)
	assert.Equal(t, "Colombo", assembled[0].Segments[0].FromLocation)
	assert.Equal(t, "Kandy", assembled[0].Segments[1].ToLocation)
	assert.Empty(t, assembled[1].Segments)
}

func TestParseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes.csv"), []byte(routesCSV), 0o644))

	t.Run("segments optional", func(t *testing.T) {
		feed, err := ParseDir(dir, quiet)
		require.NoError(t, err)
		assert.Len(t, feed.Routes, 2)
		assert.Empty(t, feed.Segments)
	})

	t.Run("with segments", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "segments.csv"), []byte(segmentsCSV), 0o644))
		feed, err := ParseDir(dir, quiet)
		require.NoError(t, err)
		assert.Len(t, feed.Segments, 3)
	})

	t.Run("routes required", func(t *testing.T) {
		_, err := ParseDir(t.TempDir(), quiet)
		assert.Error(t, err)
	})
}

func TestValidateAndCleanRoutes(t *testing.T) {
	valid := db.NewRoute{RouteNumber: "R1", FromCity: "Colombo", ToCity: "Kandy", DistanceKm: 115, EstimatedTimeHrs: 3}

	tests := []struct {
		name     string
		routes   []db.NewRoute
		expected int
	}{
		{"All valid routes", []db.NewRoute{valid}, 1},
		{"Filter missing city", []db.NewRoute{valid, {RouteNumber: "R2", FromCity: "Colombo", DistanceKm: 1, EstimatedTimeHrs: 1}}, 1},
		{"Filter zero time", []db.NewRoute{valid, {RouteNumber: "R2", FromCity: "A", ToCity: "B", DistanceKm: 1}}, 1},
		{"Filter bad segment", []db.NewRoute{valid, {RouteNumber: "R2", FromCity: "A", ToCity: "B", DistanceKm: 1, EstimatedTimeHrs: 1,
			Segments: []db.NewSegment{{FromLocation: "A", ToLocation: "B", DistanceKm: -1, EstimatedTimeHrs: 1}}}}, 1},
		{"Keep last duplicate", []db.NewRoute{valid, valid}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ValidateAndCleanRoutes(tt.routes, quiet), tt.expected)
		})
	}
}
