// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the orchestration metrics: per-task dispatch
// outcomes, round and run durations, arbiter calls, and final confidence.
type Collector struct {
	tasksTotal       *prometheus.CounterVec
	taskFailures     *prometheus.CounterVec
	roundsTotal      prometheus.Counter
	roundDuration    prometheus.Histogram
	arbiterCalls     *prometheus.CounterVec
	arbiterDuration  prometheus.Histogram
	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	runRounds        prometheus.Histogram
	finalConfidence  prometheus.Histogram
	recordsDropped   prometheus.Counter

	logger *zap.Logger
}

// NewCollector registers the consortium metrics with the given registerer
// (nil uses the default registry).
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.tasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tasks_total",
			Help:      "Total number of dispatched agent tasks",
		},
		[]string{"agent"},
	)

	c.taskFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_task_failures_total",
			Help:      "Total number of failed agent tasks",
		},
		[]string{"agent", "code"},
	)

	c.roundsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Total number of completed consensus rounds",
		},
	)

	c.roundDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Duration of one dispatch+synthesis round",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	c.arbiterCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arbiter_calls_total",
			Help:      "Total number of arbiter invocations",
		},
		[]string{"status"},
	)

	c.arbiterDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "arbiter_call_duration_seconds",
			Help:      "Duration of arbiter invocations",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of orchestration runs by terminal outcome",
		},
		[]string{"outcome"},
	)

	c.runDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of orchestration runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	c.runRounds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_rounds",
			Help:      "Number of rounds per orchestration run",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)

	c.finalConfidence = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "final_confidence",
			Help:      "Arbiter confidence of completed runs",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	c.recordsDropped = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_records_dropped_total",
			Help:      "Iteration records dropped by the async interaction log",
		},
	)

	return c
}

// RecordTask counts one dispatched task; code is empty for success.
func (c *Collector) RecordTask(agentID string, code string) {
	c.tasksTotal.WithLabelValues(agentID).Inc()
	if code != "" {
		c.taskFailures.WithLabelValues(agentID, code).Inc()
	}
}

// RecordRound counts one completed round and its duration.
func (c *Collector) RecordRound(d time.Duration) {
	c.roundsTotal.Inc()
	c.roundDuration.Observe(d.Seconds())
}

// RecordArbiter counts one arbiter invocation with status ok or error.
func (c *Collector) RecordArbiter(status string, d time.Duration) {
	c.arbiterCalls.WithLabelValues(status).Inc()
	c.arbiterDuration.Observe(d.Seconds())
}

// RecordRun counts one terminal run outcome.
func (c *Collector) RecordRun(outcome string, confidence float64, rounds int, d time.Duration) {
	c.runsTotal.WithLabelValues(outcome).Inc()
	c.runDuration.Observe(d.Seconds())
	c.runRounds.Observe(float64(rounds))
	if outcome == "done" {
		c.finalConfidence.Observe(confidence)
	}
}

// RecordDroppedRecord counts an iteration record the async log discarded.
func (c *Collector) RecordDroppedRecord() {
	c.recordsDropped.Inc()
}
