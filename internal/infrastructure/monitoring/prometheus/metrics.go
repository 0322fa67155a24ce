package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every metric the service records.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Fingerprint computation
	FingerprintsTotal   CounterVec
	FingerprintFailures CounterVec
	FingerprintDuration HistogramVec
	FingerprintOnBits   HistogramVec
	BatchSize           HistogramVec
	BatchInFlight       GaugeVec

	// Infrastructure
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	DBQueryDuration        HistogramVec
	MessageProcessDuration HistogramVec
	ErrorsTotal            CounterVec
}

var (
	DefaultHTTPDurationBuckets        = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultFingerprintDurationBuckets = []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .5}
	DefaultOnBitBuckets               = []float64{10, 25, 50, 100, 150, 200, 300, 400, 600}
	DefaultBatchSizeBuckets           = []float64{1, 10, 50, 100, 250, 500, 1000, 5000}
	DefaultDBDurationBuckets          = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")

	m.FingerprintsTotal = collector.RegisterCounter("fingerprints_total", "Fingerprints computed", "source")
	m.FingerprintFailures = collector.RegisterCounter("fingerprint_failures_total", "Fingerprint computations that failed", "code")
	m.FingerprintDuration = collector.RegisterHistogram("fingerprint_duration_seconds", "Time to compute one fingerprint", DefaultFingerprintDurationBuckets, "source")
	m.FingerprintOnBits = collector.RegisterHistogram("fingerprint_on_bits", "Set bits per fingerprint", DefaultOnBitBuckets)
	m.BatchSize = collector.RegisterHistogram("fingerprint_batch_size", "Molecules per batch request", DefaultBatchSizeBuckets)
	m.BatchInFlight = collector.RegisterGauge("fingerprint_batch_in_flight", "Molecules currently being computed by batches")

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "db", "operation")
	m.MessageProcessDuration = collector.RegisterHistogram("mq_process_duration_seconds", "Message processing duration", DefaultHTTPDurationBuckets, "topic")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type")

	return m
}

// NewNoopMetrics returns AppMetrics that record nothing.
func NewNoopMetrics() *AppMetrics {
	return NewAppMetrics(NewNoopCollector())
}

func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFingerprint records one successful computation.
func RecordFingerprint(m *AppMetrics, source string, onBits int, duration time.Duration) {
	m.FingerprintsTotal.WithLabelValues(source).Inc()
	m.FingerprintDuration.WithLabelValues(source).Observe(duration.Seconds())
	m.FingerprintOnBits.WithLabelValues().Observe(float64(onBits))
}

func RecordFingerprintFailure(m *AppMetrics, code string) {
	m.FingerprintFailures.WithLabelValues(code).Inc()
}

func RecordCacheAccess(m *AppMetrics, cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordDBQuery(m *AppMetrics, db, operation string, duration time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(db, operation).Observe(duration.Seconds())
	if err != nil {
		m.ErrorsTotal.WithLabelValues(db, "query_error").Inc()
	}
}

func RecordError(m *AppMetrics, component, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
