package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ingestTotal     *prometheus.CounterVec
	ingestDuration  *prometheus.HistogramVec
	dedupHitsTotal  *prometheus.CounterVec
	uploadBytes     *prometheus.HistogramVec
	exportsTotal    *prometheus.CounterVec
	reprocessQueued *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pf",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pf",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pf",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pf",
			Subsystem: "closet",
			Name:      "ingest_total",
			Help:      "Total ingestion attempts by outcome.",
		},
		[]string{"service", "outcome"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pf",
			Subsystem: "closet",
			Name:      "ingest_duration_seconds",
			Help:      "End-to-end ingestion duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
		},
		[]string{"service"},
	)
	dedupHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pf",
			Subsystem: "closet",
			Name:      "dedup_hits_total",
			Help:      "Total uploads resolved by fingerprint match instead of inference.",
		},
		[]string{"service"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pf",
			Subsystem: "closet",
			Name:      "upload_bytes",
			Help:      "Distribution of accepted upload sizes in bytes.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
		},
		[]string{"service"},
	)
	exportsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pf",
			Subsystem: "closet",
			Name:      "exports_total",
			Help:      "Total wardrobe workbook exports.",
		},
		[]string{"service"},
	)
	reprocessQueued := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pf",
			Subsystem: "closet",
			Name:      "reprocess_queued_total",
			Help:      "Total reprocess jobs published to the queue.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ingestTotal,
		ingestDuration,
		dedupHitsTotal,
		uploadBytes,
		exportsTotal,
		reprocessQueued,
	)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		ingestTotal:     ingestTotal,
		ingestDuration:  ingestDuration,
		dedupHitsTotal:  dedupHitsTotal,
		uploadBytes:     uploadBytes,
		exportsTotal:    exportsTotal,
		reprocessQueued: reprocessQueued,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/user/closet/items/"):
		return "/api/user/closet/items/{item_id}"
	default:
		return path
	}
}

// PipelineMetrics binds the ingestion pipeline's counters to one service
// label so the usecase layer never sees prometheus types.
type PipelineMetrics struct {
	service string
	server  *HTTPServerMetrics
}

func (m *HTTPServerMetrics) Pipeline(service string) *PipelineMetrics {
	return &PipelineMetrics{service: service, server: m}
}

func (p *PipelineMetrics) IngestFinished(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	p.server.ingestTotal.WithLabelValues(p.service, outcome).Inc()
}

func (p *PipelineMetrics) DedupHit() {
	p.server.dedupHitsTotal.WithLabelValues(p.service).Inc()
}

func (m *HTTPServerMetrics) ObserveIngestDuration(service string, duration time.Duration) {
	m.ingestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveUploadBytes(service string, size int64) {
	if size <= 0 {
		return
	}
	m.uploadBytes.WithLabelValues(service).Observe(float64(size))
}

func (m *HTTPServerMetrics) RecordExport(service string) {
	m.exportsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordReprocessQueued(service string) {
	m.reprocessQueued.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
