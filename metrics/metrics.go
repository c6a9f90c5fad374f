// Package metrics provides Prometheus metrics for the dbutils facade.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbutils_operations_total",
			Help: "Total number of facade operations",
		},
		[]string{"group", "operation", "status"},
	)

	mountRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbutils_mount_refreshes_total",
			Help: "Total number of mount table refresh broadcasts",
		},
		[]string{"reason"},
	)

	notebookRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbutils_notebook_runs_total",
			Help: "Total number of notebook runs",
		},
		[]string{"status"},
	)
)

// RecordOperation counts one facade call. err decides the status label.
func RecordOperation(group, operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	operationsTotal.WithLabelValues(group, operation, status).Inc()
}

func RecordMountRefresh(reason string) {
	mountRefreshesTotal.WithLabelValues(reason).Inc()
}

// RecordNotebookRun counts a notebook run, status is one of "ok", "exit",
// "timeout" or "error".
func RecordNotebookRun(status string) {
	notebookRunsTotal.WithLabelValues(status).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
