// Package metrics holds the Prometheus collectors of the sync engine.
package metrics

import (
	"context"
	"time"

	"chain_sync/internal/pkg/scheduler"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SyncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_sync",
		Name:      "runs_total",
		Help:      "Sync runs by adapter, operation and outcome (ok, error, skipped).",
	}, []string{"adapter", "operation", "outcome"})

	SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chain_sync",
		Name:      "run_duration_seconds",
		Help:      "Duration of sync runs.",
		Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"adapter", "operation"})

	Reconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_sync",
		Name:      "entities_reconciled_total",
		Help:      "Entities written by kind (token, holder, transaction).",
	}, []string{"adapter", "kind"})

	Skipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_sync",
		Name:      "entities_skipped_total",
		Help:      "Candidates or items skipped by reason.",
	}, []string{"adapter", "reason"})

	SchedulerQueued = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chain_sync",
		Name:      "scheduler_queued",
		Help:      "Tasks waiting in an upstream scheduler.",
	}, []string{"scheduler"})

	SchedulerRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chain_sync",
		Name:      "scheduler_running",
		Help:      "Tasks in flight in an upstream scheduler.",
	}, []string{"scheduler"})
)

// MustRegister registers every collector on reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(SyncRuns, SyncDuration, Reconciled, Skipped, SchedulerQueued, SchedulerRunning)
}

// WatchSchedulers samples the queue and in-flight counts of every scheduler
// until ctx is done.
func WatchSchedulers(ctx context.Context, every time.Duration, schedulers map[string]*scheduler.Scheduler) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		for name, s := range schedulers {
			st := s.Stats()
			SchedulerQueued.WithLabelValues(name).Set(float64(st.Queued))
			SchedulerRunning.WithLabelValues(name).Set(float64(st.Running))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
