package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*LocationCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewLocationCache(rdb, ttl), mr
}

func testFix(tripID, busID string, progress float64) *models.LocationFix {
	return &models.LocationFix{
		TripID:                       tripID,
		BusID:                        busID,
		Latitude:                     6.9271,
		Longitude:                    79.8612,
		Timestamp:                    time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		TotalRouteProgressPercentage: &progress,
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "location:TRIP001", TripKey("TRIP001"))
	assert.Equal(t, "bus_location:BUS001", BusKey("BUS001"))
}

func TestLocationCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss returns nil", func(t *testing.T) {
		c, _ := newTestCache(t, time.Hour)
		fix, err := c.TripLocation(ctx, "TRIP404")
		require.NoError(t, err)
		assert.Nil(t, fix)
	})

	t.Run("store writes trip and bus keys with ttl", func(t *testing.T) {
		c, mr := newTestCache(t, time.Hour)
		require.NoError(t, c.StoreFix(ctx, testFix("TRIP001", "BUS001", 50)))

		assert.True(t, mr.Exists("location:TRIP001"))
		assert.True(t, mr.Exists("bus_location:BUS001"))
		assert.Equal(t, time.Hour, mr.TTL("location:TRIP001"))
		assert.Equal(t, time.Hour, mr.TTL("bus_location:BUS001"))

		byTrip, err := c.TripLocation(ctx, "TRIP001")
		require.NoError(t, err)
		byBus, err := c.BusLocation(ctx, "BUS001")
		require.NoError(t, err)
		assert.Equal(t, byTrip, byBus)
		assert.Equal(t, 50.0, *byTrip.TotalRouteProgressPercentage)
		assert.True(t, byTrip.Timestamp.Equal(time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)))
	})

	t.Run("entries expire", func(t *testing.T) {
		c, mr := newTestCache(t, time.Hour)
		require.NoError(t, c.StoreFix(ctx, testFix("TRIP001", "BUS001", 10)))
		mr.FastForward(time.Hour + time.Second)

		fix, err := c.TripLocation(ctx, "TRIP001")
		require.NoError(t, err)
		assert.Nil(t, fix)
	})

	t.Run("last writer wins", func(t *testing.T) {
		c, _ := newTestCache(t, time.Hour)
		newer := testFix("TRIP001", "BUS001", 60)
		older := testFix("TRIP001", "BUS001", 40)
		older.Timestamp = newer.Timestamp.Add(-time.Minute)

		require.NoError(t, c.StoreFix(ctx, newer))
		require.NoError(t, c.StoreFix(ctx, older))

		fix, err := c.TripLocation(ctx, "TRIP001")
		require.NoError(t, err)
		assert.Equal(t, 40.0, *fix.TotalRouteProgressPercentage)
	})

	t.Run("default ttl", func(t *testing.T) {
		c, _ := newTestCache(t, 0)
		assert.Equal(t, DefaultLocationTTL, c.ttl)
	})

	t.Run("corrupt entry is an error", func(t *testing.T) {
		c, mr := newTestCache(t, time.Hour)
		require.NoError(t, mr.Set("location:TRIP009", "{not json"))
		_, err := c.TripLocation(ctx, "TRIP009")
		assert.Error(t, err)
	})
}

func TestHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	assert.NoError(t, HealthCheck(context.Background(), rdb))

	mr.Close()
	assert.Error(t, HealthCheck(context.Background(), rdb))
	assert.Error(t, HealthCheck(context.Background(), nil))
}
