// Package metrics holds the prometheus counters exported by the recording core.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "littlemic_uploads_total",
		Help: "Upload attempts by result (uploaded, failed, skipped)",
	}, []string{"result"})

	UploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "littlemic_upload_bytes_total",
		Help: "Payload bytes accepted by the remote backing store",
	})

	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "littlemic_resolutions_total",
		Help: "Audio source resolutions by outcome (remote, local, unavailable)",
	}, []string{"source"})

	DemotionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "littlemic_demotions_total",
		Help: "Uploaded recordings demoted after a failed existence probe",
	})

	ReconcileDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "littlemic_reconcile_deleted_total",
		Help: "Local recordings removed by reconciliation by reason (orphan, stale)",
	}, []string{"reason"})

	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "littlemic_captures_total",
		Help: "Capture attempts by result (saved, capacity, capability, busy, error)",
	}, []string{"result"})

	BusDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "littlemic_bus_dropped_total",
		Help: "Status-change notifications dropped because a subscriber was full",
	})
)

// IncUpload records the result of one upload attempt.
func IncUpload(result string) {
	if result == "" {
		result = "unknown"
	}
	UploadsTotal.WithLabelValues(result).Inc()
}

// IncResolution records where a resolution found audio.
func IncResolution(source string) {
	if source == "" {
		source = "unknown"
	}
	ResolutionsTotal.WithLabelValues(source).Inc()
}

// IncCapture records the outcome of a capture attempt.
func IncCapture(result string) {
	if result == "" {
		result = "unknown"
	}
	CapturesTotal.WithLabelValues(result).Inc()
}

// AddReconcileDeleted records removals made by reconciliation.
func AddReconcileDeleted(reason string, n int) {
	if n <= 0 {
		return
	}
	ReconcileDeletedTotal.WithLabelValues(reason).Add(float64(n))
}

// WriteTextfile dumps the default registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
