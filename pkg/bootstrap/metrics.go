package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tablesCreated counts successful EnsureTable calls.
	tablesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoimport_tables_created_total",
			Help: "Total number of tables created, recreated ones included",
		},
		[]string{"table"},
	)

	// deleteAttempts counts delete calls issued while resolving conflicts.
	deleteAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoimport_table_delete_attempts_total",
			Help: "Total number of delete calls issued for conflicting tables",
		},
		[]string{"table"},
	)
)
