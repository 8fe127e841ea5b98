package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var detectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "attachguard_sensitive_detected_total",
	Help: "Detections of sensitive data by category.",
}, []string{"category"})
