package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carepos"

var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000}

// Metrics holds the API's Prometheus collectors.
type Metrics struct {
	Requests        *prometheus.CounterVec
	LatencyMS       *prometheus.HistogramVec
	Runs            *prometheus.CounterVec
	SubTransactions *prometheus.CounterVec
	Calls           *prometheus.CounterVec
	CallLatencyMS   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"route"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "runs_total",
			Help:      "Checkout attempts by terminal state.",
		}, []string{"state"}),
		SubTransactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "sub_transactions_total",
			Help:      "Sub-transactions by type and outcome.",
		}, []string{"type", "outcome"}),
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txapi",
			Name:      "calls_total",
			Help:      "Calls to the transaction API by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		CallLatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "txapi",
			Name:      "call_duration_ms",
			Help:      "Transaction API call latency in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"endpoint"}),
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.Runs, m.SubTransactions, m.Calls, m.CallLatencyMS)
	return m
}

func (m *Metrics) RunFinished(state string) {
	m.Runs.WithLabelValues(state).Inc()
}

func (m *Metrics) SubTransaction(kind, outcome string) {
	m.SubTransactions.WithLabelValues(kind, outcome).Inc()
}

// ObserveCall records one transaction API call.
func (m *Metrics) ObserveCall(endpoint string, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Calls.WithLabelValues(endpoint, outcome).Inc()
	m.CallLatencyMS.WithLabelValues(endpoint).Observe(float64(d.Milliseconds()))
}

// Middleware records request count and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
