package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	// TransfersProcessed counts transfers by terminal status and source kind.
	TransfersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "transfers_processed_total",
			Help:      "Total number of transfer items processed",
		},
		[]string{"status", "source"},
	)

	// ActiveTransfers tracks the number of items currently in flight.
	ActiveTransfers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "active_transfers",
			Help:      "Number of transfer items currently being processed",
		},
	)

	// QueueDepth tracks pending items per owner.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "queue_depth",
			Help:      "Number of pending transfer items per owner",
		},
		[]string{"owner"},
	)

	// DownloadDuration tracks the time taken to materialize source bytes.
	DownloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "download_duration_seconds",
			Help:      "Time taken to download source bytes to staging",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// UploadDuration tracks the time taken to push staged bytes to the store.
	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "upload_duration_seconds",
			Help:      "Time taken to upload staged bytes to the asset store",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// BytesDownloaded counts bytes read from all sources.
	BytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "bytes_downloaded_total",
			Help:      "Total bytes downloaded from sources",
		},
	)

	// BytesUploaded counts bytes written to the asset store.
	BytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "bytes_uploaded_total",
			Help:      "Total bytes uploaded to the asset store",
		},
	)

	// AdminStops counts global stop commands.
	AdminStops = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "admin_stops_total",
			Help:      "Total number of admin stop commands",
		},
	)
)

// Link proxy metrics
var (
	// ProxyRedirects counts signed-link redirects by outcome.
	ProxyRedirects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "proxy",
			Name:      "redirects_total",
			Help:      "Total number of signed-link redirect requests",
		},
		[]string{"outcome"},
	)

	// ProxyRequestDuration tracks redirect request duration.
	ProxyRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "proxy",
			Name:      "request_duration_seconds",
			Help:      "Signed-link request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// RecordSuccess records a successfully completed transfer.
func RecordSuccess(source string) {
	TransfersProcessed.WithLabelValues("success", source).Inc()
}

// RecordFailure records a failed transfer.
func RecordFailure(source string) {
	TransfersProcessed.WithLabelValues("failed", source).Inc()
}

// RecordStopped records a transfer aborted by an admin stop.
func RecordStopped(source string) {
	TransfersProcessed.WithLabelValues("stopped", source).Inc()
}
