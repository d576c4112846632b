package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medibook"

// Outcome labels shared by the booking and lock counters.
const (
	OutcomeSuccess      = "success"
	OutcomeSlotFull     = "slot_full"
	OutcomeTimeConflict = "time_conflict"
	OutcomeNotFound     = "not_found"
	OutcomeInvalid      = "invalid"
	OutcomeError        = "error"
	OutcomeGranted      = "granted"
	OutcomeDenied       = "denied"
)

// BookingMetrics exposes counters and histograms for the booking core.
// A nil *BookingMetrics is valid and records nothing.
type BookingMetrics struct {
	commitsTotal       *prometheus.CounterVec
	commitLatency      *prometheus.HistogramVec
	cancellationsTotal *prometheus.CounterVec
	lockAcquireTotal   *prometheus.CounterVec
	locksSweptTotal    prometheus.Counter
	slotsGenerated     *prometheus.CounterVec
	availabilityLookup prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "commits_total",
			Help:      "Booking commit attempts by binding and outcome",
		}, []string{"binding", "outcome"}),
		commitLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "commit_latency_seconds",
			Help:      "Latency of the commit transaction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"binding"}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "cancellations_total",
			Help:      "Appointment cancellations by outcome",
		}, []string{"outcome"}),
		lockAcquireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "locks",
			Name:      "acquire_total",
			Help:      "Reservation lock acquisitions by outcome",
		}, []string{"outcome"}),
		locksSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "locks",
			Name:      "swept_total",
			Help:      "Expired reservation locks removed by the sweeper",
		}),
		slotsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "generated_total",
			Help:      "Slots created by generation mode",
		}, []string{"mode"}),
		availabilityLookup: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "availability_query_seconds",
			Help:      "Latency of availability queries",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.commitsTotal,
		m.commitLatency,
		m.cancellationsTotal,
		m.lockAcquireTotal,
		m.locksSweptTotal,
		m.slotsGenerated,
		m.availabilityLookup,
	)
	return m
}

func (m *BookingMetrics) ObserveCommit(binding, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(binding, outcome).Inc()
	m.commitLatency.WithLabelValues(binding).Observe(seconds)
}

func (m *BookingMetrics) ObserveCancellation(outcome string) {
	if m == nil {
		return
	}
	m.cancellationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveLockAcquire(outcome string) {
	if m == nil {
		return
	}
	m.lockAcquireTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveLocksSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.locksSweptTotal.Add(float64(n))
}

func (m *BookingMetrics) ObserveSlotsGenerated(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.slotsGenerated.WithLabelValues(mode).Add(float64(n))
}

func (m *BookingMetrics) ObserveAvailabilityQuery(seconds float64) {
	if m == nil {
		return
	}
	m.availabilityLookup.Observe(seconds)
}

// Handler serves the given gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
