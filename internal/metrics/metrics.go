// Package metrics provides Prometheus instrumentation for Kavach.
package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kavach",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kavach",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AssessmentsTotal counts risk assessments by level.
	AssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kavach",
			Name:      "assessments_total",
			Help:      "Total risk assessments by risk level.",
		},
		[]string{"level"},
	)

	// RiskScore observes the distribution of risk scores.
	RiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kavach",
		Name:      "risk_score",
		Help:      "Distribution of transaction risk scores.",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	// AnomaliesTotal counts transactions flagged by the behavioral detector.
	AnomaliesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kavach",
		Name:      "anomalies_total",
		Help:      "Total transactions flagged as behaviorally anomalous.",
	})

	// AlertsTotal counts published alerts.
	AlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kavach",
		Name:      "alerts_total",
		Help:      "Total alerts published.",
	})

	// ProfileStoreErrors counts failed profile store operations by op.
	ProfileStoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kavach",
			Name:      "profile_store_errors_total",
			Help:      "Total profile store failures by operation.",
		},
		[]string{"op"},
	)

	// PipelineDuration observes end-to-end pipeline latency.
	PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kavach",
		Name:      "pipeline_duration_seconds",
		Help:      "Time spent scoring one transaction end to end.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// FraudCasesTotal counts user feedback by case status.
	FraudCasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kavach",
			Name:      "fraud_cases_total",
			Help:      "Total fraud cases by status.",
		},
		[]string{"status"},
	)

	// RulesLoaded tracks the number of compiled operator rules.
	RulesLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kavach",
		Name:      "rules_loaded",
		Help:      "Number of operator rules currently loaded.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kavach", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kavach", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kavach", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AssessmentsTotal,
		RiskScore,
		AnomaliesTotal,
		AlertsTotal,
		ProfileStoreErrors,
		PipelineDuration,
		FraudCasesTotal,
		RulesLoaded,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// ObserveAssessment records one scored transaction.
func ObserveAssessment(level string, score int, anomalous, alert bool, took time.Duration) {
	AssessmentsTotal.WithLabelValues(level).Inc()
	RiskScore.Observe(float64(score))
	PipelineDuration.Observe(took.Seconds())
	if anomalous {
		AnomaliesTotal.Inc()
	}
	if alert {
		AlertsTotal.Inc()
	}
}

// StoreError records a failed profile store operation. Its signature
// matches behavior.Config.OnStoreError.
func StoreError(op string) {
	ProfileStoreErrors.WithLabelValues(op).Inc()
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware records request metrics. The chi route pattern is used as the
// path label to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := routePattern(r)
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(status)).Inc()
	})
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
