package updates

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetpatch_update_jobs_total",
			Help: "Update jobs by kind and terminal status.",
		},
		[]string{"kind", "status"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetpatch_remote_sessions_active",
			Help: "Remote sessions currently holding a governor slot.",
		},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetpatch_remote_command_duration_seconds",
			Help:    "Remote command wall time by operation kind.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"kind"},
	)
	staleCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetpatch_update_cache_stale_entries",
			Help: "Cached check results older than the configured TTL.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal)
	prometheus.MustRegister(activeSessions)
	prometheus.MustRegister(commandDuration)
	prometheus.MustRegister(staleCacheEntries)
}
