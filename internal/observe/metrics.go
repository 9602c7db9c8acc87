package observe

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"envload/internal/events"
)

const namespace = "envload"

// Metrics exports run statistics on a registry owned by one run.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	faults   *prometheus.CounterVec

	mu     sync.Mutex
	active func() map[string]int
}

// NewMetrics registers the run metrics. Dropped events are read from bus
// at scrape time.
func NewMetrics(bus *events.Bus) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.requests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Completed actions by class, action and result.",
	}, []string{"class", "action", "result"})

	m.latency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Latency of completed actions.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"action"})

	m.faults = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actor_faults_total",
		Help:      "Actor faults by class.",
	}, []string{"class"})

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Events dropped because the bus queue was full.",
	}, func() float64 { return float64(bus.Dropped()) })

	reg.MustRegister(&activeCollector{
		desc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "active_users"),
			"Running virtual users by class.", []string{"class"}, nil),
		metrics: m,
	})
	return m
}

// Attach subscribes the metrics to request and fault events.
func (m *Metrics) Attach(bus *events.Bus) {
	bus.Subscribe(events.RequestCompleted, func(ev events.Event) {
		o := ev.Outcome
		result := "success"
		if !o.Success {
			result = "failure"
		}
		m.requests.WithLabelValues(o.Class, o.Action, result).Inc()
		m.latency.WithLabelValues(o.Action).Observe(o.Latency.Seconds())
	})
	bus.Subscribe(events.ActorFaulted, func(ev events.Event) {
		m.faults.WithLabelValues(ev.Class).Inc()
	})
}

// TrackActive sets the source of the active users gauge, typically the
// ActiveByClass method of a running scheduler handle.
func (m *Metrics) TrackActive(fn func() map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = fn
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type activeCollector struct {
	desc    *prometheus.Desc
	metrics *Metrics
}

func (c *activeCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *activeCollector) Collect(ch chan<- prometheus.Metric) {
	c.metrics.mu.Lock()
	fn := c.metrics.active
	c.metrics.mu.Unlock()
	if fn == nil {
		return
	}
	for class, n := range fn() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), class)
	}
}
