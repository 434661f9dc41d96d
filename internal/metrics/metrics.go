// Package metrics exposes Prometheus instrumentation for monitor mode.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScanCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diskwatch_scan_cycles_total",
		Help: "Completed disk health scan cycles.",
	})

	ScanCycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diskwatch_scan_cycle_errors_total",
		Help: "Scan cycles that aborted with an internal error.",
	})

	DevicesBySeverity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "diskwatch_devices",
		Help: "Devices observed in the last cycle, by assessed severity.",
	}, []string{"severity"})

	AlertsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diskwatch_alerts_sent_total",
		Help: "Alert emails delivered successfully.",
	})

	AlertSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diskwatch_alert_send_failures_total",
		Help: "Alert emails that failed after the in-cycle retry.",
	})

	RepairAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diskwatch_repair_attempts_total",
		Help: "Repair attempts by terminal outcome.",
	}, []string{"outcome"})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
