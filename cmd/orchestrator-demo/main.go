// orchestrator-demo wires the message bus, task runner, context store, and
// skill engine together end to end against a stubbed LLM backend, to
// exercise the four subsystems as a single process would.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"orchestrator-core/pkg/bus"
	"orchestrator-core/pkg/config"
	"orchestrator-core/pkg/contextmgr"
	"orchestrator-core/pkg/logx"
	"orchestrator-core/pkg/metrics"
	"orchestrator-core/pkg/skill"
	"orchestrator-core/pkg/skill/skillfile"
	"orchestrator-core/pkg/taskrunner"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional, defaults applied otherwise)")
	skillPath := flag.String("skill", "", "path to a markdown skill file to run (optional)")
	flag.Parse()

	logger := logx.NewLogger("orchestrator-demo")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	rec := metrics.New()

	if err := runBusDemo(cfg, rec, logger); err != nil {
		logger.Error("bus demo failed: %v", err)
		os.Exit(1)
	}
	if err := runTaskRunnerDemo(cfg, rec, logger); err != nil {
		logger.Error("taskrunner demo failed: %v", err)
		os.Exit(1)
	}
	if err := runContextDemo(logger); err != nil {
		logger.Error("contextmgr demo failed: %v", err)
		os.Exit(1)
	}
	if err := runSkillDemo(*skillPath, logger); err != nil {
		logger.Error("skill demo failed: %v", err)
		os.Exit(1)
	}
}

func runBusDemo(cfg *config.Config, rec *metrics.Recorder, logger *logx.Logger) error {
	b := metrics.WrapBus(bus.New(cfg.BusConfig()), rec)

	b.Subscribe("worker-1", nil)
	b.Subscribe("worker-2", nil)

	for i, priority := range []uint8{1, 10, 5, 20} {
		msg := bus.NewMessage("dispatcher", "task_assignment", bus.SingleTarget("worker-1"),
			fmt.Sprintf("job-%d", i), priority)
		if err := b.Send(msg); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}

	ready := b.Dequeue("worker-1", 10)
	logger.Info("bus demo: dequeued %d messages in priority order", len(ready))
	for _, m := range ready {
		logger.Info("  priority=%d payload=%v", m.Priority, m.Payload)
	}
	return nil
}

func runTaskRunnerDemo(cfg *config.Config, rec *metrics.Recorder, logger *logx.Logger) error {
	runner := metrics.WrapRunner(taskrunner.New(cfg.TaskRunnerConfig()), rec)

	tasks := []taskrunner.AgentTask{
		{ID: "fetch", Type: "fetch", Priority: 10},
		{ID: "transform", Type: "transform", Priority: 5, DependsOn: []string{"fetch"}},
		{ID: "report", Type: "report", Priority: 1, DependsOn: []string{"transform"}},
	}

	op := func(_ context.Context, task taskrunner.AgentTask) (any, error) {
		return fmt.Sprintf("%s done", task.ID), nil
	}

	merged, err := runner.Run(context.Background(), tasks, op)
	if err != nil {
		return err
	}
	logger.Info("taskrunner demo: %s", merged.Summary)
	return nil
}

func runContextDemo(logger *logx.Logger) error {
	store := contextmgr.New("")
	parent := store.Create(nil, nil)

	update := contextmgr.Update{
		AppendHistory: []contextmgr.Message{{Role: "user", Content: "summarize the repo"}},
	}
	if _, err := store.Update(parent.ID, update); err != nil {
		return err
	}

	child := store.Inherit(parent, contextmgr.InheritanceConfig{
		Type:           contextmgr.InheritShallow,
		InheritHistory: true,
	})

	logger.Info("contextmgr demo: child inherited %d history entries, ~%d tokens",
		len(child.History), store.EstimateTokenCount(child))
	return nil
}

type stubBackend struct{}

func (stubBackend) Chat(_ context.Context, systemPrompt, userMessage string, _ *string) (string, error) {
	return "stub response to: " + userMessage, nil
}

func runSkillDemo(path string, logger *logx.Logger) error {
	var def skill.SkillDefinition
	if path != "" {
		loaded, err := skillfile.Load(path)
		if err != nil {
			return err
		}
		def = loaded
	} else {
		def = skill.SkillDefinition{
			Name: "demo-prompt",
			Mode: skill.ModePrompt,
			Body: "You are a helpful assistant.",
		}
	}

	engine := skill.New(stubBackend{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result := engine.Execute(ctx, def, "hello from the demo binary", skill.NoopCallback{})
	if !result.Success {
		return result.Error
	}
	if result.Output != nil {
		logger.Info("skill demo: %s", *result.Output)
	}
	return nil
}
