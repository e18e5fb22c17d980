package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_pushed_total",
			Help: "Jobs enqueued by handler",
		},
		[]string{"queue", "handler"},
	)
	processed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_processed_total",
			Help: "Job executions by outcome",
		},
		[]string{"queue", "handler", "outcome"}, // done, retried, buried, unknown
	)
	duration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_job_duration_seconds",
			Help:    "Handler execution time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue", "handler"},
	)
)
