package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "travelquiz"

var (
	answersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_submitted_total",
		Help:      "Answer submissions by outcome: correct, incorrect, replayed, timeout.",
	}, []string{"outcome"})

	roundAdvances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "round_advances_total",
		Help:      "Round advance attempts by result: applied or noop.",
	}, []string{"result"})

	syncApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_applies_total",
		Help:      "Snapshots applied to client views by path and result.",
	}, []string{"path", "result"})
)

func AnswerSubmitted(outcome string) {
	answersSubmitted.WithLabelValues(outcome).Inc()
}

func RoundAdvanced(applied bool) {
	roundAdvances.WithLabelValues(result(applied, "applied", "noop")).Inc()
}

func SyncApplied(path string, applied bool) {
	syncApplies.WithLabelValues(path, result(applied, "applied", "ignored")).Inc()
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
