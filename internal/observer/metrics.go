package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true

	sourceLabels  = []string{"source"}
	dbOpLabels    = []string{"operation", "entity", "status"}
	importOutcome = []string{"outcome"}

	// EventsReceivedTotal counts ingestion events accepted for processing,
	// labeled by provenance (webhook, echo, history, import).
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_meter_events_received_total",
			Help: "Total number of ingestion events received, labeled by source.",
		},
		sourceLabels,
	)
	// EventsFailedTotal counts events dropped after acknowledgment (bad
	// signature, malformed payload, storage failure).
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_meter_events_failed_total",
			Help: "Total number of ingestion events that failed processing.",
		},
		[]string{"source", "reason"},
	)
	// RecordsInsertedTotal counts canonical records durably inserted.
	RecordsInsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_meter_records_inserted_total",
			Help: "Total number of canonical metadata records inserted.",
		},
		sourceLabels,
	)
	// RecordsDuplicateTotal counts idempotent duplicate-ID skips.
	RecordsDuplicateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_meter_records_duplicate_total",
			Help: "Total number of records skipped because their ID was already stored.",
		},
		sourceLabels,
	)
	// ImportLinesTotal counts transcript lines by parse outcome.
	ImportLinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_meter_import_lines_total",
			Help: "Total transcript lines seen, labeled parsed or skipped.",
		},
		importOutcome,
	)

	// DbOperationDurationSeconds observes store operation latency.
	DbOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_meter_db_operation_duration_seconds",
			Help:    "Histogram of metadata store operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		dbOpLabels,
	)

	// Store totals refreshed by the keepalive loop.
	StoreMessagesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wa_meter_store_messages",
		Help: "Current number of stored message records.",
	})
	StoreChatsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wa_meter_store_chats",
		Help: "Current number of distinct chats.",
	})
	StoreContactsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wa_meter_store_contacts",
		Help: "Current number of known contacts.",
	})
)

// InitMetrics toggles metric collection. Call once at startup.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IncEventsReceived increments the received counter for a source.
func IncEventsReceived(source string) {
	if !metricsEnabled {
		return
	}
	EventsReceivedTotal.WithLabelValues(source).Inc()
}

// IncEventsFailed increments the failed counter for a source and reason.
func IncEventsFailed(source, reason string) {
	if !metricsEnabled {
		return
	}
	EventsFailedTotal.WithLabelValues(source, reason).Inc()
}

// IncRecordsInserted increments the inserted counter for a source.
func IncRecordsInserted(source string) {
	if !metricsEnabled {
		return
	}
	RecordsInsertedTotal.WithLabelValues(source).Inc()
}

// IncRecordsDuplicate increments the duplicate-skip counter for a source.
func IncRecordsDuplicate(source string) {
	if !metricsEnabled {
		return
	}
	RecordsDuplicateTotal.WithLabelValues(source).Inc()
}

// IncImportLines adds to the transcript line counter for an outcome.
func IncImportLines(outcome string, n int) {
	if !metricsEnabled || n <= 0 {
		return
	}
	ImportLinesTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveDbOperationDuration records the latency of a store operation.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DbOperationDurationSeconds.WithLabelValues(operation, entity, status).Observe(duration.Seconds())
}

// SetStoreTotals refreshes the store gauges.
func SetStoreTotals(messages, chats, contacts int64) {
	if !metricsEnabled {
		return
	}
	StoreMessagesGauge.Set(float64(messages))
	StoreChatsGauge.Set(float64(chats))
	StoreContactsGauge.Set(float64(contacts))
}
