package editor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	operationSave  = "save"
	operationReset = "reset"

	outcomeSuccess = "success"
	outcomeError   = "error"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_setting_operations_total",
		Help: "Total number of setting save/reset operations by outcome.",
	}, []string{"operation", "outcome"})
	snapshotsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "admin_setting_snapshots_applied_total",
		Help: "Total number of setting snapshots applied to editors.",
	})
	openSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "admin_setting_editor_sessions",
		Help: "Number of open setting editor sessions.",
	})
	sessionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "admin_setting_editor_sessions_rejected_total",
		Help: "Total number of sessions refused because the registry was full.",
	})
)
