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

func TestCollectorObservers(t *testing.T) {
	c := NewCollector(2 * time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.PollInterval))

	c.TrackedSet(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.TrackedVehicles))

	c.PollObserve(10*time.Millisecond, true)
	c.PollObserve(10*time.Millisecond, false)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Polls))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PollErrors))

	c.RoutingObserve("driving", true, time.Millisecond)
	c.RoutingObserve("foot", false, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RoutingRequests.WithLabelValues("driving", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RoutingRequests.WithLabelValues("foot", "error")))

	c.NATSSetConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))
	c.NATSSetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.NATSConnected))
	c.NATSPublishedInc()
	c.NATSPublishErrInc()
	c.PublishObserve(time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublishErrs))

	c.PlanObserve("ok")
	c.ETAObserve("arrived")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Plans.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ETAs.WithLabelValues("arrived")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(time.Second)
	c.PollObserve(time.Millisecond, true)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "shuttle_vehicle_polls_total 1")
	assert.Contains(t, string(body), "shuttle_poll_interval_seconds 1")
}
