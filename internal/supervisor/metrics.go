package supervisor

import "github.com/prometheus/client_golang/prometheus"

var (
	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llamagate",
			Subsystem: "supervisor",
			Name:      "state",
			Help:      "Current llama-server lifecycle state (1 for the active state)",
		},
		[]string{"state"},
	)

	startupDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "llamagate",
			Subsystem: "supervisor",
			Name:      "startup_duration_seconds",
			Help:      "Time from spawn until llama-server became ready",
		},
	)
)

func init() {
	prometheus.MustRegister(stateGauge, startupDuration)
}

func observeState(s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		stateGauge.WithLabelValues(string(st)).Set(v)
	}
}
