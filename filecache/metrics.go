package filecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "attachguard_cache_downloads_total",
	Help: "Attachment cache lookups by result (hit, downloaded, failed).",
}, []string{"result"})
