package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics, exported on the daemon's /metrics endpoint. Labels are
// kept low-cardinality: resource is "summary" or "thread", outcome is
// "ok", "error" or "skipped".

var (
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgsync_polls_total",
		Help: "Poll ticks by resource and outcome.",
	}, []string{"resource", "outcome"})

	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "msgsync_poll_duration_seconds",
		Help:    "Wall time of a poll fetch+merge by resource.",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource"})

	MergesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgsync_merges_applied_total",
		Help: "Merges that changed store state, by store.",
	}, []string{"store"})

	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgsync_sends_total",
		Help: "Optimistic sends by outcome.",
	}, []string{"outcome"})

	MarkReadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgsync_mark_read_total",
		Help: "Mark-read requests by outcome.",
	}, []string{"outcome"})

	UnreadBadge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msgsync_unread_badge",
		Help: "Last unread total reported by the server.",
	})
)

// ObservePoll records one poll tick.
func ObservePoll(resource, outcome string, elapsed time.Duration) {
	PollsTotal.WithLabelValues(resource, outcome).Inc()
	if outcome == "ok" {
		PollDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
	}
}
