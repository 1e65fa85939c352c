package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service metrics on its own registry.
// It implements the pipeline observer and the publisher metrics interfaces.
type Collector struct {
	reg *prometheus.Registry

	Outcomes           *prometheus.CounterVec   // kind, source, reason
	GenerationDuration *prometheus.HistogramVec // kind
	GenerationErrors   *prometheus.CounterVec   // kind

	EventsPublished  prometheus.Counter
	EventPublishErrs prometheus.Counter
	EventsConnected  prometheus.Gauge
	PublishDuration  prometheus.Histogram

	HTTPRequests *prometheus.CounterVec   // method, route, status
	HTTPDuration *prometheus.HistogramVec // method, route

	BudgetLimit prometheus.Gauge
	budgetOnce  sync.Once
}

// NewCollector creates and registers all metrics
func NewCollector(dailyLimit int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insights_outcomes_total",
			Help: "Pipeline outcomes by task kind, source and fallback reason.",
		}, []string{"kind", "source", "reason"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insights_generation_duration_seconds",
			Help:    "Duration of model calls.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		GenerationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insights_generation_errors_total",
			Help: "Model calls that returned an error.",
		}, []string{"kind"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insights_events_published_total",
			Help: "Total recommendation events published.",
		}),
		EventPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insights_event_publish_errors_total",
			Help: "Total recommendation event publish errors.",
		}),
		EventsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "insights_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "insights_publish_duration_seconds",
			Help:    "Duration to marshal and publish an event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		BudgetLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "insights_ai_budget_limit",
			Help: "Model calls allowed per budget window.",
		}),
	}

	reg.MustRegister(
		c.Outcomes, c.GenerationDuration, c.GenerationErrors,
		c.EventsPublished, c.EventPublishErrs, c.EventsConnected, c.PublishDuration,
		c.HTTPRequests, c.HTTPDuration, c.BudgetLimit,
	)
	c.BudgetLimit.Set(float64(dailyLimit))

	return c
}

// TrackBudgetUsage exposes the calls used in the current window. Only the first call registers.
func (c *Collector) TrackBudgetUsage(used func() int) {
	c.budgetOnce.Do(func() {
		c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "insights_ai_budget_used",
			Help: "Model calls used in the current budget window.",
		}, func() float64 { return float64(used()) }))
	})
}

// ObserveOutcome records one pipeline outcome
func (c *Collector) ObserveOutcome(kind, source, reason string) {
	if reason == "" {
		reason = "none"
	}
	c.Outcomes.WithLabelValues(kind, source, reason).Inc()
}

// ObserveGeneration records one model call
func (c *Collector) ObserveGeneration(kind string, d time.Duration, err error) {
	c.GenerationDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		c.GenerationErrors.WithLabelValues(kind).Inc()
	}
}

// ObserveRequest records one HTTP request
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) EventPublishedInc()             { c.EventsPublished.Inc() }
func (c *Collector) EventPublishErrInc()            { c.EventPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) SetConnected(connected bool) {
	if connected {
		c.EventsConnected.Set(1)
	} else {
		c.EventsConnected.Set(0)
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }
