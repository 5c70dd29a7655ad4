package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures metric labels.
type Config struct {
	ServiceName string
	Environment string
}

const (
	RecalcOutcomeApplied   = "applied"
	RecalcOutcomeUnchanged = "unchanged"
	RecalcOutcomeSkipped   = "skipped"
	RecalcOutcomeFailed    = "failed"
)

// Metrics captures the fulfillment and placement engine signals.
type Metrics struct {
	sequenceIssued      *prometheus.CounterVec
	sequenceConflicts   *prometheus.CounterVec
	sequenceExhausted   *prometheus.CounterVec
	sequenceDuration    *prometheus.HistogramVec
	stateTransitions    *prometheus.CounterVec
	volumeRejections    prometheus.Counter
	recalculationItems  *prometheus.CounterVec
	placementDisposals  *prometheus.CounterVec
	ledgerEntries       *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	jobRuns             *prometheus.CounterVec
	jobErrors           *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Default returns the singleton registered on the default registerer.
func Default() *Metrics {
	return WithConfig(Config{})
}

// WithConfig returns the singleton using config labels.
func WithConfig(cfg Config) *Metrics {
	metricsOnce.Do(func() {
		metrics = New(prometheus.DefaultRegisterer, cfg)
	})
	return metrics
}

// ResetForTest resets the singleton for tests.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metrics = nil
}

func New(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "fuelledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		sequenceIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fuelledger_sequence_issued_total",
			Help:        "Control numbers issued by document type.",
			ConstLabels: constLabels,
		}, []string{"document_type"}),
		sequenceConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fuelledger_sequence_conflicts_total",
			Help:        "Control number attempts lost to a concurrent writer.",
			ConstLabels: constLabels,
		}, []string{"document_type"}),
		sequenceExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fuelledger_sequence_exhausted_total",
			Help:        "Control number issuance that ran out of attempts.",
			ConstLabels: constLabels,
		}, []string{"document_type"}),
		sequenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "fuelledger_sequence_issue_duration_seconds",
			Help:        "Latency of control number issuance including retries.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			ConstLabels: constLabels,
		}, []string{"document_type"}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fuelledger_state_transitions_total",
			Help:        "Document lifecycle transitions.",
			ConstLabels: constLabels,
		}, []string{"machine", "from", "to"}),
		volumeRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fuelledger_volume_rejections_total",
			Help:        "Receipts rejected for exceeding the remaining ordered volume.",
			ConstLabels: constLabels,
		}),
		recalculationItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fuelledger_recalculation_items_total",
			Help:        "Receipts processed by price recalculation by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		placementDisposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fuelledger_placement_dispositions_total",
			Help:        "Placement maturity dispositions.",
			ConstLabels: constLabels,
		}, []string{"disposition"}),
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fuelledger_ledger_entries_total",
			Help:        "Ledger entries appended by entry type.",
			ConstLabels: constLabels,
		}, []string{"entry_type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fuelledger_http_requests_total",
			Help:        "HTTP requests by route and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "fuelledger_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fuelledger_scheduler_job_runs_total",
			Help:        "Scheduler job executions.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fuelledger_scheduler_job_errors_total",
			Help:        "Scheduler job executions that returned an error.",
			ConstLabels: constLabels,
		}, []string{"job", "kind"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "fuelledger_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	registerer.MustRegister(
		m.sequenceIssued,
		m.sequenceConflicts,
		m.sequenceExhausted,
		m.sequenceDuration,
		m.stateTransitions,
		m.volumeRejections,
		m.recalculationItems,
		m.placementDisposals,
		m.ledgerEntries,
		m.httpRequests,
		m.httpRequestDuration,
		m.jobRuns,
		m.jobErrors,
		m.jobDuration,
	)
	return m
}

func (m *Metrics) IncSequenceIssued(documentType string) {
	if m == nil {
		return
	}
	m.sequenceIssued.WithLabelValues(documentType).Inc()
}

func (m *Metrics) IncSequenceConflict(documentType string) {
	if m == nil {
		return
	}
	m.sequenceConflicts.WithLabelValues(documentType).Inc()
}

func (m *Metrics) IncSequenceExhausted(documentType string) {
	if m == nil {
		return
	}
	m.sequenceExhausted.WithLabelValues(documentType).Inc()
}

func (m *Metrics) ObserveSequenceDuration(documentType string, d time.Duration) {
	if m == nil {
		return
	}
	m.sequenceDuration.WithLabelValues(documentType).Observe(d.Seconds())
}

func (m *Metrics) IncStateTransition(machine, from, to string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(machine, from, to).Inc()
}

func (m *Metrics) IncVolumeRejection() {
	if m == nil {
		return
	}
	m.volumeRejections.Inc()
}

func (m *Metrics) IncRecalculationItem(outcome string) {
	if m == nil {
		return
	}
	m.recalculationItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncPlacementDisposition(disposition string) {
	if m == nil {
		return
	}
	m.placementDisposals.WithLabelValues(disposition).Inc()
}

func (m *Metrics) AddLedgerEntries(entryType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerEntries.WithLabelValues(entryType).Add(float64(n))
}

func (m *Metrics) ObserveHTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// IncJobError records a failed run. kind is "timeout" or "error".
func (m *Metrics) IncJobError(job, kind string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, kind).Inc()
}

func (m *Metrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
