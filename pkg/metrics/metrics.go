package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Forecast ingestion metrics
	ForecastSamplesTotal    *prometheus.CounterVec
	BlocksWrittenTotal      prometheus.Counter
	BlocksSynthesizedTotal  prometheus.Counter
	IngestionsTotal         *prometheus.CounterVec
	IngestionDuration       prometheus.Histogram
	IngestionErrorsTotal    *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec

	// Spray prediction metrics
	PredictionsTotal       *prometheus.CounterVec
	ClassifierErrorsTotal  *prometheus.CounterVec
	SelectedWindowsTotal   prometheus.Counter
	WindowSelectionLatency prometheus.Histogram

	// Upload and diagnosis metrics
	UploadsTotal   *prometheus.CounterVec
	DiagnosesTotal *prometheus.CounterVec

	// Database Metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec
}

// NewCollector creates a new metrics collector registered on reg.
// Passing prometheus.DefaultRegisterer exposes the metrics on promhttp.Handler.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		ForecastSamplesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_samples_total",
				Help:      "Forecast samples seen during ingestion by outcome",
			},
			[]string{"outcome"}, // "accepted", "rejected"
		),

		BlocksWrittenTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_blocks_written_total",
				Help:      "Total number of operational blocks upserted",
			},
		),

		BlocksSynthesizedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_blocks_synthesized_total",
				Help:      "Operational blocks emitted with placeholder values because no sample fell in them",
			},
		),

		IngestionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestions_total",
				Help:      "Forecast ingestions by status",
			},
			[]string{"status"}, // "success", "empty", "failed"
		),

		IngestionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingestion_duration_seconds",
				Help:      "Duration of forecast ingestion in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),

		IngestionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestion_errors_total",
				Help:      "Total number of ingestion errors by type",
			},
			[]string{"error_type"},
		),

		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Forecast provider request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "status"},
		),

		PredictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spray_predictions_total",
				Help:      "Spray predictions stored by status label",
			},
			[]string{"status"},
		),

		ClassifierErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifier_errors_total",
				Help:      "Spray classifier failures by classifier",
			},
			[]string{"classifier"},
		),

		SelectedWindowsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spray_windows_selected_total",
				Help:      "Spray windows returned to clients",
			},
		),

		WindowSelectionLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "window_selection_duration_seconds",
				Help:      "Duration of best spray time lookups in seconds",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0},
			},
		),

		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "image_uploads_total",
				Help:      "Plant image uploads by outcome",
			},
			[]string{"outcome"},
		),

		DiagnosesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "crop_diagnoses_total",
				Help:      "Crop disease diagnosis requests by outcome",
			},
			[]string{"outcome"}, // "diagnosed", "crop_mismatch", "low_confidence", "failed"
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),
	}
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordIngestion increments the ingestion counter for status
func (c *Collector) RecordIngestion(status string) {
	c.IngestionsTotal.WithLabelValues(status).Inc()
}

// RecordIngestionError increments ingestion error counter
func (c *Collector) RecordIngestionError(errorType string) {
	c.IngestionErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordSamples adds partitioning outcomes for one ingestion
func (c *Collector) RecordSamples(accepted, rejected int) {
	c.ForecastSamplesTotal.WithLabelValues("accepted").Add(float64(accepted))
	c.ForecastSamplesTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordPrediction increments the prediction counter for a status label
func (c *Collector) RecordPrediction(status string) {
	c.PredictionsTotal.WithLabelValues(status).Inc()
}

// RecordClassifierError increments classifier error counter
func (c *Collector) RecordClassifierError(classifier string) {
	c.ClassifierErrorsTotal.WithLabelValues(classifier).Inc()
}

// RecordUpload increments the upload counter for outcome
func (c *Collector) RecordUpload(outcome string) {
	c.UploadsTotal.WithLabelValues(outcome).Inc()
}

// RecordDiagnosis increments the diagnosis counter for outcome
func (c *Collector) RecordDiagnosis(outcome string) {
	c.DiagnosesTotal.WithLabelValues(outcome).Inc()
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
