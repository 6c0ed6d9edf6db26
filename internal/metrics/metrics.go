package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tick metrics

	TickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recurring",
		Name:      "tick_duration_seconds",
		Help:      "Duration of one cadence tick, from load to persisted metadata.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"result"})

	TicksInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recurring",
		Name:      "ticks_in_flight",
		Help:      "Number of ticks currently being processed.",
	})

	TicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recurring",
		Name:      "ticks_total",
		Help:      "Total ticks processed, by result.",
	}, []string{"result"})

	TicksSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recurring",
		Name:      "ticks_skipped_total",
		Help:      "Ticks dropped by the trigger before reaching the processor.",
	}, []string{"reason"})

	AutoPausesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recurring",
		Name:      "auto_pauses_total",
		Help:      "Schedules paused after exhausting their retries.",
	})

	RegisteredCadences = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recurring",
		Name:      "registered_cadences",
		Help:      "Number of cadences currently registered with the trigger.",
	})

	// Notification metrics

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recurring",
		Name:      "notifications_total",
		Help:      "Notification delivery attempts, by channel and outcome.",
	}, []string{"channel", "outcome"})

	// Sweeper metrics

	SweeperResumedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recurring",
		Name:      "sweeper_resumed_total",
		Help:      "Total schedules whose timed pause was lifted by the sweeper.",
	})

	SweeperCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "recurring",
		Name:      "sweeper_cycle_duration_seconds",
		Help:      "Time taken for one sweeper cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// Process lifecycle

	StartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recurring",
		Name:      "start_time_seconds",
		Help:      "Unix timestamp when the process started.",
	})

	ShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recurring",
		Name:      "shutdowns_total",
		Help:      "Number of times the process has shut down.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recurring",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recurring",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		TickDuration,
		TicksInFlight,
		TicksTotal,
		TicksSkippedTotal,
		AutoPausesTotal,
		RegisteredCadences,
		NotificationsTotal,
		SweeperResumedTotal,
		SweeperCycleDuration,
		StartTime,
		ShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// HealthHandlers is implemented by *health.Checker.
type HealthHandlers interface {
	LivenessHandler(w http.ResponseWriter, r *http.Request)
	ReadinessHandler(w http.ResponseWriter, r *http.Request)
}

func NewServer(addr string, health HealthHandlers) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
