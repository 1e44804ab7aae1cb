package observability

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	BrowndogRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browndog_requests_total",
			Help: "Total number of Brown Dog API calls by operation and status class",
		},
		[]string{"operation", "status"},
	)
	BrowndogRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "browndog_request_duration_seconds",
			Help:    "Brown Dog API call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browndog_jobs_total",
			Help: "Jobs that reached a terminal state",
		},
		[]string{"kind", "state"},
	)
	PollAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "browndog_poll_attempts",
			Help:    "Attempts needed before a poll loop ended",
			Buckets: []float64{1, 2, 3, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)
	DownloadedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "browndog_downloaded_bytes_total",
			Help: "Bytes written by the streaming downloader",
		},
	)

	ReportSinkTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_sink_total",
			Help: "Report deliveries by sink and result",
		},
		[]string{"sink", "result"},
	)
)

var registerOnce sync.Once

// InitMetrics registers every collector with the default registry. Later
// calls are no-ops.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(BrowndogRequestsTotal)
		prometheus.MustRegister(BrowndogRequestDuration)
		prometheus.MustRegister(JobsTotal)
		prometheus.MustRegister(PollAttempts)
		prometheus.MustRegister(DownloadedBytes)
		prometheus.MustRegister(ReportSinkTotal)
	})
}

// WriteMetricsFile snapshots the default registry to path in the text
// exposition format, for processes that exit before any scrape.
func WriteMetricsFile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("op=observability.WriteMetricsFile: %w", err)
	}
	return nil
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// StatusClass buckets an HTTP status for metric labels; 0 means no response.
func StatusClass(status int) string {
	switch {
	case status == 0:
		return "transport_error"
	case status == http.StatusNotFound:
		return "not_ready"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// ObserveBrowndogCall records one API call.
func ObserveBrowndogCall(operation string, status int, d time.Duration) {
	BrowndogRequestsTotal.WithLabelValues(operation, StatusClass(status)).Inc()
	BrowndogRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordJob counts a job that reached a terminal state.
func RecordJob(kind, state string, attempts int) {
	JobsTotal.WithLabelValues(kind, state).Inc()
	if attempts > 0 {
		PollAttempts.WithLabelValues(kind).Observe(float64(attempts))
	}
}

// AddDownloadedBytes counts bytes written to disk.
func AddDownloadedBytes(n int64) {
	if n > 0 {
		DownloadedBytes.Add(float64(n))
	}
}

// RecordSink counts a report delivery attempt.
func RecordSink(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ReportSinkTotal.WithLabelValues(sink, result).Inc()
}
