package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "faultline"

// Registry is the Prometheus registry for all service metrics.
var Registry = prometheus.NewRegistry()

// AppInfo exposes version information as labels (value is always 1).
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit"},
)

// EventsIngested counts accepted events by project.
var EventsIngested = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_ingested_total",
		Help:      "Total number of events accepted by the store endpoint",
	},
	[]string{"project"},
)

// GroupsCreated counts new issues minted by ingestion.
var GroupsCreated = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "groups_created_total",
		Help:      "Total number of new issues created by ingestion",
	},
)

// SudoChecksDenied counts requests rejected by the sudo guard.
var SudoChecksDenied = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sudo_checks_denied_total",
		Help:      "Total number of requests rejected for missing sudo elevation",
	},
)

// SessionsPurged counts expired sessions removed by the cleanup job.
var SessionsPurged = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_purged_total",
		Help:      "Total number of expired sessions removed by the cleanup job",
	},
)

// Init registers build information and runtime collectors.
func Init(version, commit string) {
	AppInfo.WithLabelValues(version, commit).Set(1)
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
