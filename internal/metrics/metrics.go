// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubmissionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoproof_submissions_created_total",
			Help: "Submissions accepted, by whether a challenge gated them",
		},
		[]string{"challenge"},
	)

	VoteOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoproof_vote_operations_total",
			Help: "Vote operations by kind and result",
		},
		[]string{"op", "result"},
	)

	Finalizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoproof_finalizations_total",
			Help: "Submission finalizations by resulting status",
		},
		[]string{"status"},
	)

	RewardOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoproof_reward_outcomes_total",
			Help: "Reward attempts by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	TransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecoproof_ledger_transfer_duration_seconds",
			Help:    "Latency of ledger transfer calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	WeatherFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoproof_weather_fetches_total",
			Help: "Outbound weather fetches by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		SubmissionsCreated,
		VoteOperations,
		Finalizations,
		RewardOutcomes,
		TransferDuration,
		WeatherFetches,
	)
}
