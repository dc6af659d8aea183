// Prometheus instrumentation for the upload and processing paths.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "numzy_uploads_total",
		Help: "Accepted receipt uploads by content type.",
	}, []string{"content_type"})

	ProcessingTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "numzy_processing_tasks_total",
		Help: "Finished processing tasks by result.",
	}, []string{"result"})

	ProcessingInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "numzy_processing_in_flight",
		Help: "Receipts currently being processed.",
	})

	CompressionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "numzy_compression_duration_seconds",
		Help:    "Wall time of a single image compression.",
		Buckets: prometheus.DefBuckets,
	})

	CompressionOutputBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "numzy_compression_output_bytes",
		Help:    "Size of the compressed payload.",
		Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
