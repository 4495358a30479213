package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.ObserveFix(false, 12)
	c.ObserveFix(false, 0)
	c.ObserveFix(true, -5)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.LocationFixes.WithLabelValues("server")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LocationFixes.WithLabelValues("client")))

	c.ObserveHTTP("GET", "/routes", 200, 15*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/routes", "200")))

	c.NATSSetConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))
	c.NATSSetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.NATSConnected))

	c.NATSPublishedInc()
	c.NATSPublishErrInc()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublishErrs))
}

func TestHandlerExposesRegistry(t *testing.T) {
	c := NewCollector()
	c.ObserveFix(true, 3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `bus_tracking_location_fixes_total{source="client"} 1`)
	// Private registry: no default Go collectors
	assert.NotContains(t, string(body), "go_goroutines")
}
