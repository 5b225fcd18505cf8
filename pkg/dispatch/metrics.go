package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subsidyctl",
		Subsystem: "dispatch",
		Name:      "actions_total",
		Help:      "Remote review actions sent, broken down by action, mode and result.",
	}, []string{"action", "mode", "result"})
)

// ObserveOutcome counts one remote call.
func ObserveOutcome(o Outcome) {
	mode := "single"
	if o.Bulk {
		mode = "bulk"
	}
	result := "ok"
	if o.Err != nil {
		result = "error"
	}
	actionsTotal.WithLabelValues(string(o.Action), mode, result).Inc()
}

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
