package mirror

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "windlass"
	promSubsystem = "mirror"
)

var (
	eventLabels  = []string{"kind", "outcome"}
	eventsFolded = prom.NewCounterVec(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "events_total",
		Help:      "job and task events folded into the local snapshot",
	}, eventLabels)
	inconsistencies = prom.NewCounter(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "inconsistencies_total",
		Help:      "structural inconsistencies detected in the update stream",
	})
	resyncs = prom.NewCounter(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "resyncs_total",
		Help:      "full census bootstraps folded into the mirror",
	})
	jobsMirrored = prom.NewGauge(prom.GaugeOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "jobs",
		Help:      "jobs in the current snapshot",
	})
	tasksMirrored = prom.NewGauge(prom.GaugeOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "tasks",
		Help:      "tasks in the current snapshot",
	})
)

func init() {
	prom.MustRegister(eventsFolded)
	prom.MustRegister(inconsistencies)
	prom.MustRegister(resyncs)
	prom.MustRegister(jobsMirrored)
	prom.MustRegister(tasksMirrored)
}
