package metrics

import (
	"context"
	"time"

	"orchestrator-core/pkg/bus"
	"orchestrator-core/pkg/taskrunner"
)

// InstrumentedBus wraps a *bus.Bus, recording metrics around each call
// without the bus package itself depending on Prometheus.
type InstrumentedBus struct {
	*bus.Bus
	rec *Recorder
}

// WrapBus returns b decorated with rec. A nil rec makes every recorded
// call a no-op, so WrapBus(b, nil) is safe.
func WrapBus(b *bus.Bus, rec *Recorder) *InstrumentedBus {
	return &InstrumentedBus{Bus: b, rec: rec}
}

// Send instruments bus.Send, recording latency and outcome by target kind.
func (w *InstrumentedBus) Send(message bus.Message) error {
	start := time.Now()
	err := w.Bus.Send(message)
	w.rec.ObserveBusSend(targetKindLabel(message.Target.Kind), err == nil, time.Since(start))
	return err
}

// Dequeue instruments bus.Dequeue, recording the resulting queue depth.
func (w *InstrumentedBus) Dequeue(agent string, n int) []bus.Message {
	msgs := w.Bus.Dequeue(agent, n)
	w.rec.SetBusQueueDepth(agent, len(w.Bus.GetQueue(agent)))
	return msgs
}

func targetKindLabel(k bus.TargetKind) string {
	switch k {
	case bus.TargetSingle:
		return "single"
	case bus.TargetMulti:
		return "multi"
	case bus.TargetBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// InstrumentedRunner wraps a *taskrunner.Runner's Run call, recording
// per-task outcome metrics after the batch completes.
type InstrumentedRunner struct {
	runner *taskrunner.Runner
	rec    *Recorder
}

// WrapRunner returns r decorated with rec.
func WrapRunner(r *taskrunner.Runner, rec *Recorder) *InstrumentedRunner {
	return &InstrumentedRunner{runner: r, rec: rec}
}

// Run delegates to the wrapped Runner and records one observation per
// completed AgentResult.
func (w *InstrumentedRunner) Run(ctx context.Context, tasks []taskrunner.AgentTask, op taskrunner.Operation) (taskrunner.MergedResult, error) {
	byID := make(map[string]string, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t.Type
	}

	merged, err := w.runner.Run(ctx, tasks, op)
	for _, res := range merged.Results {
		status := "completed"
		if !res.Success {
			status = "failed"
		}
		w.rec.ObserveTask(byID[res.TaskID], status, res.Duration, res.Retries)
	}
	return merged, err
}
