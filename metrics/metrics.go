package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SubmissionsTotal counts finished submissions by result
	// (success, validation_failed, upload_failed, store_failed).
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "road_reports",
		Subsystem: "workflow",
		Name:      "submissions_total",
		Help:      "Total number of report submissions, labeled by result.",
	}, []string{"result"})

	// StageDurationSeconds is the time spent in each external call of a submission.
	StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "road_reports",
		Subsystem: "workflow",
		Name:      "stage_duration_seconds",
		Help:      "Time spent per submission stage (upload, persist, refresh).",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	// FeedRefreshFailuresTotal counts refreshes that failed and left the feed stale.
	FeedRefreshFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "road_reports",
		Subsystem: "feed",
		Name:      "refresh_failures_total",
		Help:      "Total number of failed report feed refreshes.",
	})

	// FeedSize is the number of reports in the current feed view.
	FeedSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "road_reports",
		Subsystem: "feed",
		Name:      "size",
		Help:      "Number of reports held by the in-memory feed.",
	})

	// UploadBytes is the size of stored images after normalisation.
	UploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "road_reports",
		Subsystem: "uploader",
		Name:      "upload_bytes",
		Help:      "Size in bytes of images written to the object store.",
		Buckets:   prometheus.ExponentialBuckets(16<<10, 2, 10),
	})

	// EventPublishErrorsTotal counts report.created events that could not be published.
	EventPublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "road_reports",
		Subsystem: "events",
		Name:      "publish_errors_total",
		Help:      "Total number of report events that failed to publish.",
	})
)

// Register registers the service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionsTotal,
			StageDurationSeconds,
			FeedRefreshFailuresTotal,
			FeedSize,
			UploadBytes,
			EventPublishErrorsTotal,
		)
	})
}
