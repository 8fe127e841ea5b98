package extractor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ocrRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "attachguard_ocr_requests_total",
	Help: "OCR recognitions by engine and result.",
}, []string{"engine", "result"})
