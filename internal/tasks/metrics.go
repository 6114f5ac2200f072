package tasks

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postflight_tasks_scheduled_total",
			Help: "Total number of deferred tasks registered by handlers.",
		},
		[]string{"task"},
	)

	tasksFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postflight_tasks_finished_total",
			Help: "Total number of deferred tasks that reached a terminal state.",
		},
		[]string{"task", "status"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postflight_task_duration_seconds",
			Help:    "Deferred task execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)
)

func init() {
	prometheus.MustRegister(tasksScheduled)
	prometheus.MustRegister(tasksFinished)
	prometheus.MustRegister(taskDuration)
}
