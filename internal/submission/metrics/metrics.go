// Package metrics exposes the vote pipeline counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VotesAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofpals_votes_accepted_total",
		Help: "Accepted votes by kind",
	}, []string{"kind"})

	VotesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofpals_votes_rejected_total",
		Help: "Rejected votes by reason",
	}, []string{"reason"})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofpals_submission_transitions_total",
		Help: "Submission status transitions by resulting status",
	}, []string{"status"})
)
