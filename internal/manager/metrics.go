package manager

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "manager",
			Name:      "state",
			Help:      "1 for the current lifecycle state, 0 otherwise",
		},
		[]string{"state"},
	)

	queueDepthGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "manager",
			Name:      "queue_depth",
			Help:      "Generation requests waiting behind the in-flight one",
		},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "manager",
			Name:      "generations_total",
			Help:      "Completed generations by backend and result",
		},
		[]string{"backend", "result"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "manager",
			Name:      "generation_duration_seconds",
			Help:      "Engine time per generation",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"backend"},
	)

	lifecycleOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "manager",
			Name:      "lifecycle_ops_total",
			Help:      "Lifecycle operations by op and result",
		},
		[]string{"op", "result"},
	)
)

func init() {
	prometheus.MustRegister(stateGauge, queueDepthGauge, generationsTotal, generationDuration, lifecycleOpsTotal)
}

var allStates = []State{StateUnloaded, StateInitializing, StateDownloading, StateReady, StateFailed}

func observeState(s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		stateGauge.WithLabelValues(string(st)).Set(v)
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
