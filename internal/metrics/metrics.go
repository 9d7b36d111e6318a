package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the fetch/normalize
// pipeline. Collectors register on the default registry; exposing them is
// the host process's concern.
type Metrics struct {
	PagesTotal    prometheus.Counter
	RetriesTotal  prometheus.Counter
	LinesTotal    prometheus.Counter
	RecordsTotal  *prometheus.CounterVec
	WarningsTotal *prometheus.CounterVec
}

var (
	once sync.Once
	def  *Metrics
)

// Default returns the process-wide Metrics instance, creating and
// registering it on first use.
func Default() *Metrics {
	once.Do(func() {
		def = &Metrics{
			PagesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "convtrail",
				Subsystem: "fetch",
				Name:      "pages_total",
				Help:      "Total number of log store pages fetched.",
			}),
			RetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "convtrail",
				Subsystem: "fetch",
				Name:      "retries_total",
				Help:      "Total number of throttled page fetches retried.",
			}),
			LinesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "convtrail",
				Subsystem: "pipeline",
				Name:      "lines_total",
				Help:      "Total number of raw log lines consumed.",
			}),
			RecordsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "convtrail",
				Subsystem: "pipeline",
				Name:      "records_total",
				Help:      "Total number of invocation records emitted by wire shape.",
			}, []string{"shape"}),
			WarningsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "convtrail",
				Subsystem: "pipeline",
				Name:      "warnings_total",
				Help:      "Total number of skipped or degraded log lines by reason.",
			}, []string{"reason"}),
		}
	})
	return def
}
