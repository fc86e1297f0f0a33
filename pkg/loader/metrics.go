package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// batchesSubmitted counts backend calls that succeeded.
	batchesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoimport_batches_submitted_total",
			Help: "Total number of batches accepted by the backend",
		},
		[]string{"target"},
	)

	// recordsSubmitted counts records carried by successful batches.
	recordsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoimport_records_submitted_total",
			Help: "Total number of records submitted in successful batches",
		},
		[]string{"target"},
	)

	// batchFailures counts batches that aborted a load.
	batchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoimport_batch_failures_total",
			Help: "Total number of batches that failed formatting or submission",
		},
		[]string{"target"},
	)

	// loadProgress is the last reported fraction per target.
	loadProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geoimport_load_progress_ratio",
			Help: "Completed fraction of the current load per target",
		},
		[]string{"target"},
	)
)
