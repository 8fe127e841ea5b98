package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attachguard_attachments_processed_total",
		Help: "Attachments run through the pipeline by outcome.",
	}, []string{"outcome"})

	batchJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attachguard_batch_jobs_total",
		Help: "Site batch jobs started by mode.",
	}, []string{"mode"})
)
