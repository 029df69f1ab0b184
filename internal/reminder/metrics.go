package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_notifications_total",
			Help: "Total reminder notification attempts by status.",
		},
		[]string{"status"},
	)
	marksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_marks_total",
			Help: "Total reminder-flag patch attempts by status.",
		},
		[]string{"status"},
	)
	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reminder_run_duration_seconds",
			Help:    "Duration of full reminder pipeline runs.",
			Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)
