package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var editsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "admin_setting_edits_rejected_total",
	Help: "Total number of setting edits rejected before saving.",
})
