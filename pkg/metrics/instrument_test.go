package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator-core/pkg/bus"
	"orchestrator-core/pkg/taskrunner"
)

// testRecorder is shared by every test in this package: New registers its
// collectors with the default Prometheus registry, which rejects a second
// registration of the same names.
var testRecorder = New()

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestWrapBusSendWithNilRecorderIsSafe(t *testing.T) {
	b := bus.New(bus.DefaultConfig())
	wrapped := WrapBus(b, nil)

	b.Subscribe("alice", nil)
	msg := bus.NewMessage("system", "ping", bus.SingleTarget("alice"), "hi", 0)
	require.NoError(t, wrapped.Send(msg))

	got := wrapped.Dequeue("alice", 10)
	require.Len(t, got, 1)
}

func TestWrapBusSendRecordsMetrics(t *testing.T) {
	b := bus.New(bus.DefaultConfig())
	rec := testRecorder
	wrapped := WrapBus(b, rec)
	sent := rec.busMessagesTotal.WithLabelValues("single", "ok")
	before := counterValue(t, sent)

	b.Subscribe("alice", nil)
	msg := bus.NewMessage("system", "ping", bus.SingleTarget("alice"), "hi", 0)
	require.NoError(t, wrapped.Send(msg))
	assert.Equal(t, before+1, counterValue(t, sent))
}

func TestWrapRunnerRecordsOutcomes(t *testing.T) {
	r := taskrunner.New(taskrunner.DefaultConfig())
	rec := testRecorder
	wrapped := WrapRunner(r, rec)
	completed := rec.taskOutcomesTotal.WithLabelValues("completed")
	before := counterValue(t, completed)

	tasks := []taskrunner.AgentTask{
		{ID: "t1", Type: "noop"},
	}
	op := func(_ context.Context, _ taskrunner.AgentTask) (any, error) {
		return "ok", nil
	}

	merged, err := wrapped.Run(context.Background(), tasks, op)
	require.NoError(t, err)
	assert.Equal(t, 1, merged.Successful)
	assert.Equal(t, before+1, counterValue(t, completed))
}
