// Package metrics provides Prometheus-based instrumentation for the
// message bus, task runner, context store, and skill engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder groups the counters and histograms for all four subsystems.
// A nil *Recorder is valid: every method on it is a no-op.
type Recorder struct {
	busQueueDepth      *prometheus.GaugeVec
	busMessagesTotal   *prometheus.CounterVec
	busDispatchLatency *prometheus.HistogramVec

	taskOutcomesTotal *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	taskRetries       *prometheus.CounterVec

	contextTokenEstimate *prometheus.HistogramVec
	contextCompressions  *prometheus.CounterVec

	skillStepDuration *prometheus.HistogramVec
	skillOutcomesTotal *prometheus.CounterVec
}

// New registers and returns a Recorder against the default Prometheus
// registry. Call it once per process.
func New() *Recorder {
	return &Recorder{
		busQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bus_queue_depth",
				Help: "Number of messages currently queued per agent",
			},
			[]string{"agent"},
		),
		busMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bus_messages_total",
				Help: "Total messages sent through the bus by target kind and outcome",
			},
			[]string{"target_kind", "outcome"},
		),
		busDispatchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bus_dispatch_duration_seconds",
				Help:    "Time spent dispatching a Send call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"target_kind"},
		),
		taskOutcomesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskrunner_task_outcomes_total",
				Help: "Total completed tasks by final status",
			},
			[]string{"status"},
		),
		taskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskrunner_task_duration_seconds",
				Help:    "Duration of individual task executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task_type"},
		),
		taskRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskrunner_retries_total",
				Help: "Total retry attempts across all tasks",
			},
			[]string{"task_type"},
		),
		contextTokenEstimate: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contextmgr_token_estimate",
				Help:    "Estimated token count of contexts at creation or update",
				Buckets: []float64{100, 500, 1000, 2000, 4000, 8000, 16000, 32000},
			},
			[]string{"op"},
		),
		contextCompressions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextmgr_compressions_total",
				Help: "Total compression passes that summarized history",
			},
			[]string{"summarized"},
		),
		skillStepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skill_step_duration_seconds",
				Help:    "Duration of individual workflow step executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		skillOutcomesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skill_outcomes_total",
				Help: "Total skill executions by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
	}
}

// ObserveBusSend records the outcome and latency of a single Send call.
func (r *Recorder) ObserveBusSend(targetKind string, success bool, duration time.Duration) {
	if r == nil {
		return
	}
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	r.busMessagesTotal.WithLabelValues(targetKind, outcome).Inc()
	r.busDispatchLatency.WithLabelValues(targetKind).Observe(duration.Seconds())
}

// SetBusQueueDepth records the current queue depth for agent.
func (r *Recorder) SetBusQueueDepth(agent string, depth int) {
	if r == nil {
		return
	}
	r.busQueueDepth.WithLabelValues(agent).Set(float64(depth))
}

// ObserveTask records a completed task's final status, duration, and retry count.
func (r *Recorder) ObserveTask(taskType, status string, duration time.Duration, retries int) {
	if r == nil {
		return
	}
	r.taskOutcomesTotal.WithLabelValues(status).Inc()
	r.taskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
	if retries > 0 {
		r.taskRetries.WithLabelValues(taskType).Add(float64(retries))
	}
}

// ObserveContextTokens records a token estimate produced during op
// ("create", "update", "compress").
func (r *Recorder) ObserveContextTokens(op string, tokens int) {
	if r == nil {
		return
	}
	r.contextTokenEstimate.WithLabelValues(op).Observe(float64(tokens))
}

// ObserveContextCompression records whether a compression pass summarized history.
func (r *Recorder) ObserveContextCompression(summarized bool) {
	if r == nil {
		return
	}
	label := "false"
	if summarized {
		label = "true"
	}
	r.contextCompressions.WithLabelValues(label).Inc()
}

// ObserveSkillStep records a workflow step's duration for the given mode.
func (r *Recorder) ObserveSkillStep(mode string, duration time.Duration) {
	if r == nil {
		return
	}
	r.skillStepDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveSkillOutcome records a completed skill execution's final outcome.
func (r *Recorder) ObserveSkillOutcome(mode string, success bool) {
	if r == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.skillOutcomesTotal.WithLabelValues(mode, outcome).Inc()
}
