package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionStates lists the values of the state label, in machine order.
var SessionStates = []string{"scanning", "connecting", "active"}

var (
	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "session",
		Name:      "state",
		Help:      "1 for the current session state, 0 otherwise",
	}, []string{"state"})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session state transitions",
	}, []string{"from", "to"})

	connectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "session",
		Name:      "connect_attempts_total",
		Help:      "Boot delays scheduled for a candidate device",
	})

	connectAborts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "session",
		Name:      "connect_aborts_total",
		Help:      "Connect attempts abandoned before a graph was built",
	}, []string{"reason"})

	bindFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "session",
		Name:      "bind_failures_total",
		Help:      "Inputs or outputs the capture graph refused",
	}, []string{"media"})

	graphsBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "session",
		Name:      "graphs_built_total",
		Help:      "Capture graphs created",
	})

	graphsTornDown = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "session",
		Name:      "graphs_torn_down_total",
		Help:      "Capture graphs released",
	})
)

// SetSessionState marks state as current.
func SetSessionState(state string) {
	for _, s := range SessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(s).Set(v)
	}
}

// RecordTransition counts a state change.
func RecordTransition(from, to string) {
	sessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordConnectAttempt counts a scheduled boot delay.
func RecordConnectAttempt() {
	connectAttempts.Inc()
}

// RecordConnectAbort counts an abandoned connect attempt.
func RecordConnectAbort(reason string) {
	connectAborts.WithLabelValues(reason).Inc()
}

// RecordBindFailure counts a refused graph input or output.
func RecordBindFailure(media string) {
	bindFailures.WithLabelValues(media).Inc()
}

// RecordGraphBuilt counts a created capture graph.
func RecordGraphBuilt() {
	graphsBuilt.Inc()
}

// RecordGraphTornDown counts a released capture graph.
func RecordGraphTornDown() {
	graphsTornDown.Inc()
}
