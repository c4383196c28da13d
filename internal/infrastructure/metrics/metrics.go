package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torrecontrole/sentinela/internal/core/domain/refresh"
)

const namespace = "sentinela"

// Metrics holds every collector the service exports.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	cacheRequests  *prometheus.CounterVec
	cacheEvictions prometheus.Counter
	cacheExpired   prometheus.Counter
	reloads        *prometheus.CounterVec
	reloadDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// private registry, which keeps tests independent of each other.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "The total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "The HTTP request latencies in seconds",
			},
			[]string{"method", "endpoint"},
		),
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "requests_total",
				Help:      "Expiring cache lookups by result",
			},
			[]string{"result"},
		),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted because the cache was full",
		}),
		cacheExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "expired_total",
			Help:      "Entries removed after their TTL elapsed",
		}),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "reloads_total",
				Help:      "Refresh coordinator firings by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		reloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "reload_duration_seconds",
				Help:      "Duration of reloads that reached the data source",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"trigger"},
		),
		gatherer: reg,
	}
	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.cacheRequests,
		m.cacheEvictions,
		m.cacheExpired,
		m.reloads,
		m.reloadDuration,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RegisterSessionGauge exports the number of open sessions as read by count.
func (m *Metrics) RegisterSessionGauge(reg *prometheus.Registry, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_sessions",
		Help:      "Dashboard sessions currently open",
	}, func() float64 { return float64(count()) }))
}

// CacheObserver feeds the expiring cache counters.
func (m *Metrics) CacheObserver() *CacheObserver {
	return &CacheObserver{m: m}
}

// ObserveReload implements services.RefreshObserver.
func (m *Metrics) ObserveReload(trigger refresh.Trigger, outcome string, took time.Duration) {
	m.reloads.WithLabelValues(string(trigger), outcome).Inc()
	if took > 0 {
		m.reloadDuration.WithLabelValues(string(trigger)).Observe(took.Seconds())
	}
}

// CacheObserver implements memcache.Observer.
type CacheObserver struct{ m *Metrics }

func (o *CacheObserver) Hit()     { o.m.cacheRequests.WithLabelValues("hit").Inc() }
func (o *CacheObserver) Miss()    { o.m.cacheRequests.WithLabelValues("miss").Inc() }
func (o *CacheObserver) Evicted() { o.m.cacheEvictions.Inc() }
func (o *CacheObserver) Expired(n int) {
	if n > 0 {
		o.m.cacheExpired.Add(float64(n))
	}
}
