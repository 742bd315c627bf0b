package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shuttle-tracker/internal/logging"
)

type Collector struct {
	reg *prometheus.Registry

	TrackedVehicles prometheus.Gauge
	Polls           prometheus.Counter
	PollErrors      prometheus.Counter
	PollDuration    prometheus.Histogram
	PollInterval    prometheus.Gauge // seconds

	Plans *prometheus.CounterVec // outcome label: ok|no_plan|invalid|routing
	ETAs  *prometheus.CounterVec // outcome label: en_route|arrived|passed|not_served|error

	RoutingRequests *prometheus.CounterVec // profile, result labels
	RoutingDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram
}

func NewCollector(pollInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TrackedVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttle_tracked_vehicles",
			Help: "Number of vehicles with a running polling loop.",
		}),
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_vehicle_polls_total",
			Help: "Total vehicle position polls.",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_vehicle_poll_errors_total",
			Help: "Total failed vehicle position polls.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shuttle_vehicle_poll_duration_seconds",
			Help:    "Duration of vehicle position fetches.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttle_poll_interval_seconds",
			Help: "Tracker poll interval in seconds.",
		}),
		Plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shuttle_plans_total",
			Help: "Trip planning requests by outcome.",
		}, []string{"outcome"}),
		ETAs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shuttle_eta_requests_total",
			Help: "ETA requests by outcome.",
		}, []string{"outcome"}),
		RoutingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shuttle_routing_requests_total",
			Help: "Routing collaborator requests by profile and result.",
		}, []string{"profile", "result"}),
		RoutingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shuttle_routing_duration_seconds",
			Help:    "Duration of routing collaborator requests.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shuttle_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shuttle_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shuttle_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.TrackedVehicles, c.Polls, c.PollErrors, c.PollDuration, c.PollInterval,
		c.Plans, c.ETAs,
		c.RoutingRequests, c.RoutingDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
	)

	c.PollInterval.Set(pollInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.LogError(logger, "metrics server error", err)
		}
	}()
	logging.LogOperation(logger, "metrics listening", slog.String("addr", addr))
	return srv
}

// tracker.Metrics

func (c *Collector) TrackedSet(n int) { c.TrackedVehicles.Set(float64(n)) }

func (c *Collector) PollObserve(d time.Duration, ok bool) {
	c.Polls.Inc()
	if !ok {
		c.PollErrors.Inc()
	}
	c.PollDuration.Observe(d.Seconds())
}

// routing.Metrics

func (c *Collector) RoutingObserve(profile string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.RoutingRequests.WithLabelValues(profile, result).Inc()
	c.RoutingDuration.Observe(d.Seconds())
}

// publisher.PublisherMetrics

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

// api.Metrics

func (c *Collector) PlanObserve(outcome string) { c.Plans.WithLabelValues(outcome).Inc() }
func (c *Collector) ETAObserve(outcome string)  { c.ETAs.WithLabelValues(outcome).Inc() }
