package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	namespace = "smartgrid"

	telemetryEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_events_total",
			Help:      "Telemetry events processed by the monitor, by operational status",
		},
		[]string{"status"},
	)

	dispatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Repair episodes dispatched",
		},
	)

	duplicateDispatchTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_dispatch_total",
			Help:      "Dispatch attempts rejected because a repair was already active for the turbine",
		},
	)

	persistenceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Telemetry events that could not be persisted",
		},
		[]string{"backend"},
	)

	engineersAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engineers_available",
			Help:      "Engineer slots currently free",
		},
	)

	pendingRepairs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_repairs",
			Help:      "Repair tickets waiting for an engineer",
		},
	)

	repairDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "repair_duration_seconds",
			Help:      "Time an engineer spent on a repair",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 30},
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Telemetry events waiting in the ingress queue",
		},
	)

	transportRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_retries_total",
			Help:      "Telemetry submissions retried after a transport failure",
		},
		[]string{"transport"},
	)

	deviceFaultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_faults_total",
			Help:      "Turbine loop pairs torn down by a fault",
		},
	)
)

func RecordTelemetryEvent(status string) {
	telemetryEventsTotal.WithLabelValues(status).Inc()
}

func RecordDispatch() {
	dispatchesTotal.Inc()
}

func RecordDuplicateDispatch() {
	duplicateDispatchTotal.Inc()
}

func RecordPersistenceFailure(backend string) {
	persistenceFailuresTotal.WithLabelValues(backend).Inc()
}

func SetEngineersAvailable(n int64) {
	engineersAvailable.Set(float64(n))
}

func SetPendingRepairs(n int) {
	pendingRepairs.Set(float64(n))
}

func ObserveRepairDuration(seconds float64) {
	repairDuration.Observe(seconds)
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func RecordTransportRetry(transport string) {
	transportRetriesTotal.WithLabelValues(transport).Inc()
}

func RecordDeviceFault() {
	deviceFaultsTotal.Inc()
}
